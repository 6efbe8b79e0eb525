package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/morezero/cadastro-incidental/pkg/cadastro"
	"github.com/morezero/cadastro-incidental/pkg/db"
	"github.com/morezero/cadastro-incidental/pkg/matching"
	"github.com/morezero/cadastro-incidental/pkg/portal"
)

const logPrefix = "dispatcher:dispatch"

// Registrar is the registration surface the dispatcher drives.
type Registrar interface {
	Register(ctx context.Context, req *cadastro.Request) (*cadastro.Result, error)
	VerifyParties(ctx context.Context, processNumber int64, expected matching.Buckets) (matching.Outcome, cadastro.RegisteredParties, error)
}

// Journal answers history queries.
type Journal interface {
	History(ctx context.Context, npj string, limit int) ([]db.Registration, error)
}

// HealthCheck reports a dependency's health; nil means healthy.
type HealthCheck func(ctx context.Context) error

// Dispatcher routes COMMS requests to registration methods.
type Dispatcher struct {
	registrar Registrar
	journal   Journal
	checks    map[string]HealthCheck
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Registrar Registrar
	Journal   Journal
	Checks    map[string]HealthCheck
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	return &Dispatcher{
		registrar: params.Registrar,
		journal:   params.Journal,
		checks:    params.Checks,
	}
}

// Dispatch routes a request to the appropriate method and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *CadastroRequest) *CadastroResponse {
	userID := "system"
	if req.Ctx != nil && req.Ctx.UserID != "" {
		userID = req.Ctx.UserID
	}
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s user=%s", logPrefix, req.Method, req.ID, userID))

	if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Ctx.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	switch req.Method {
	case "register":
		return d.handleRegister(ctx, req, userID)
	case "verifyParties":
		return d.handleVerifyParties(ctx, req)
	case "history":
		return d.handleHistory(ctx, req)
	case "health":
		return d.handleHealth(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method), false)
	}
}

func (d *Dispatcher) handleRegister(ctx context.Context, req *CadastroRequest, userID string) *CadastroResponse {
	var input cadastro.Request
	if err := json.Unmarshal(req.Params, &input); err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse register params", false)
	}
	if d.registrar == nil {
		return errorResponse(req.ID, CodeInternal, "registrar not configured", false)
	}

	slog.Info(fmt.Sprintf("%s - register npj=%s requested by %s", logPrefix, input.NPJ, userID))
	result, err := d.registrar.Register(ctx, &input)
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	return &CadastroResponse{ID: req.ID, Ok: true, Result: result}
}

// VerifyPartiesResult is the result of the verifyParties method.
type VerifyPartiesResult struct {
	Verified   bool                       `json:"verified"`
	Outcome    matching.Outcome           `json:"outcome"`
	Registered cadastro.RegisteredParties `json:"registered"`
}

func (d *Dispatcher) handleVerifyParties(ctx context.Context, req *CadastroRequest) *CadastroResponse {
	var input VerifyPartiesParams
	if err := json.Unmarshal(req.Params, &input); err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse verifyParties params", false)
	}
	if d.registrar == nil {
		return errorResponse(req.ID, CodeInternal, "registrar not configured", false)
	}

	outcome, registered, err := d.registrar.VerifyParties(ctx, input.ProcessNumber, input.Parties)
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	return &CadastroResponse{ID: req.ID, Ok: true, Result: VerifyPartiesResult{
		Verified:   outcome.Verified(),
		Outcome:    outcome,
		Registered: registered,
	}}
}

// HistoryResult is the result of the history method.
type HistoryResult struct {
	NPJ           string            `json:"npj"`
	Registrations []db.Registration `json:"registrations"`
}

func (d *Dispatcher) handleHistory(ctx context.Context, req *CadastroRequest) *CadastroResponse {
	var input HistoryParams
	if err := json.Unmarshal(req.Params, &input); err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse history params", false)
	}
	if input.NPJ == "" {
		return errorResponse(req.ID, CodeInvalidArgument, "npj is required", false)
	}
	if d.journal == nil {
		return errorResponse(req.ID, CodeInternal, "journal not configured", false)
	}

	npj := cadastro.NormalizeNPJ(input.NPJ)
	list, err := d.journal.History(ctx, npj, input.Limit)
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	if list == nil {
		list = []db.Registration{}
	}
	return &CadastroResponse{ID: req.ID, Ok: true, Result: HistoryResult{NPJ: npj, Registrations: list}}
}

// HealthResult is the result of the health method.
type HealthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (d *Dispatcher) handleHealth(ctx context.Context, req *CadastroRequest) *CadastroResponse {
	return &CadastroResponse{ID: req.ID, Ok: true, Result: d.Health(ctx)}
}

// Health runs every configured check. Status is "ok" only when all pass.
func (d *Dispatcher) Health(ctx context.Context) HealthResult {
	result := HealthResult{Status: "ok", Checks: make(map[string]string, len(d.checks))}

	names := make([]string, 0, len(d.checks))
	for name := range d.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := d.checks[name](ctx); err != nil {
			result.Status = "degraded"
			result.Checks[name] = err.Error()
			continue
		}
		result.Checks[name] = "ok"
	}
	return result
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *CadastroResponse {
	return &CadastroResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

// errorToResponse maps registration errors to wire codes. Nothing that may
// have touched the portal is marked retryable: registration is not idempotent.
func errorToResponse(id string, err error) *CadastroResponse {
	var validation *cadastro.ValidationError
	var phase *cadastro.PhaseError
	var transport *portal.TransportError

	detail := &ErrorDetail{Code: CodeInternal, Message: err.Error(), Retryable: true}
	switch {
	case errors.As(err, &validation):
		detail.Code = CodeInvalidArgument
		detail.Retryable = false
		detail.Details = map[string]string{"field": validation.Field}
	case errors.Is(err, cadastro.ErrRegistrationInFlight):
		detail.Code = CodeConflict
		detail.Retryable = false
	case errors.As(err, &phase):
		detail.Code = CodePhaseFailed
		if errors.As(err, &transport) {
			detail.Code = CodeTransportFailed
		}
		detail.Retryable = false
		detail.Details = map[string]string{
			"phase":  phase.Phase.String(),
			"step":   phase.Step,
			"status": phase.Status,
		}
	case errors.As(err, &transport):
		detail.Code = CodeTransportFailed
		detail.Retryable = false
		detail.Details = map[string]interface{}{"url": transport.URL, "attempts": transport.Attempts}
	}
	return &CadastroResponse{ID: id, Ok: false, Error: detail}
}
