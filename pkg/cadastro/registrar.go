// Package cadastro registers an incidental lawsuit in the legal portal by
// walking the portal's nine-phase registration wizard.
package cadastro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/cadastro-incidental/pkg/events"
	"github.com/morezero/cadastro-incidental/pkg/matching"
	"github.com/morezero/cadastro-incidental/pkg/metrics"
	"github.com/morezero/cadastro-incidental/pkg/portal"
)

const logPrefix = "cadastro:registrar"

const defaultPause = time.Second

// Office is the organizational unit that owns every incidental registered by this service.
type Office struct {
	Prefix int
	Unit   int
	Name   string
	UF     string
	Phone  string
	City   string
}

// DefaultOffice returns the legal department unit the portal expects.
func DefaultOffice() Office {
	return Office{
		Prefix: 8553,
		Unit:   18908,
		Name:   "DIJUR-JURIDICA",
		UF:     "DF",
		Phone:  "34932312",
		City:   "BRASILIA",
	}
}

// Config holds registrar configuration.
type Config struct {
	// Pause separates consecutive phases so the portal can settle.
	Pause  time.Duration
	Office Office
}

// DefaultConfig returns a one second pause and the default office.
func DefaultConfig() Config {
	return Config{Pause: defaultPause, Office: DefaultOffice()}
}

// Journal records registration progress for operators. It is write-only from
// the registrar's side; nothing is ever resumed from it.
type Journal interface {
	// Begin returns ErrRegistrationInFlight when another run holds the npj.
	Begin(ctx context.Context, id string, req *Request) error
	PhaseCompleted(ctx context.Context, id string, phase Phase, processNumber int64) error
	Complete(ctx context.Context, id string, res *Result) error
	Fail(ctx context.Context, id string, phase Phase, processNumber int64, cause error) error
}

// Result is what a finished registration hands back.
type Result struct {
	ID              string           `json:"id"`
	NPJ             string           `json:"npj"`
	ProcessNumber   int64            `json:"processNumber"`
	PartiesVerified bool             `json:"partiesVerified"`
	Parties         matching.Outcome `json:"parties"`
}

// Registrar runs registrations against the portal.
type Registrar struct {
	transport portal.Transport
	journal   Journal
	publisher events.EventPublisher
	metrics   *metrics.Metrics
	config    Config
	sleep     func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewRegistrarParams holds parameters for NewRegistrar.
type NewRegistrarParams struct {
	Transport portal.Transport
	Journal   Journal
	Publisher events.EventPublisher
	Metrics   *metrics.Metrics
	Config    Config
	// Sleep replaces the pause between phases. Nil waits on a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRegistrar creates a Registrar. Transport is required.
func NewRegistrar(params NewRegistrarParams) (*Registrar, error) {
	if params.Transport == nil {
		return nil, fmt.Errorf("%s - transport is required", logPrefix)
	}

	cfg := params.Config
	if cfg.Pause == 0 {
		cfg.Pause = defaultPause
	}
	if cfg.Office == (Office{}) {
		cfg.Office = DefaultOffice()
	}

	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}

	sleep := params.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Registrar{
		transport: params.Transport,
		journal:   params.Journal,
		publisher: pub,
		metrics:   params.Metrics,
		config:    cfg,
		sleep:     sleep,
		inflight:  make(map[string]struct{}),
	}, nil
}

type step struct {
	phase Phase
	run   func(ctx context.Context, st State) (State, error)
}

func (r *Registrar) steps() []step {
	return []step{
		{PhaseInitialData, r.initialData},
		{PhaseNumbers, r.numbers},
		{PhaseParties, r.parties},
		{PhaseRouting, r.routing},
		{PhaseAttorney, r.attorney},
		{PhaseDependencies, r.dependencies},
		{PhaseSynopsis, r.synopsis},
		{PhaseActionType, r.actionType},
		{PhaseClassCNJ, r.classCNJ},
	}
}

// stepNotStarted marks a phase abandoned before its first portal call.
const stepNotStarted = "cancelled before start"

// Register runs all nine phases in order and returns the created process
// number with the party check outcome. The first fatal phase aborts the run;
// phases already applied on the portal stay applied.
func (r *Registrar) Register(ctx context.Context, req *Request) (*Result, error) {
	res, err := req.resolve()
	if err != nil {
		return nil, err
	}

	if !r.acquire(res.npj) {
		return nil, ErrRegistrationInFlight
	}
	defer r.release(res.npj)

	id := uuid.NewString()
	if r.journal != nil {
		if err := r.journal.Begin(ctx, id, req); err != nil {
			if errors.Is(err, ErrRegistrationInFlight) {
				return nil, err
			}
			slog.Warn(fmt.Sprintf("%s - journal begin failed for %s: %v", logPrefix, id, err))
		}
	}

	slog.Info(fmt.Sprintf("%s - Registration %s started for npj=%s tribunal=%s", logPrefix, id, res.npj, res.tribunal))

	st := newState(req, res)
	for i, s := range r.steps() {
		if i > 0 {
			if err := r.sleep(ctx, r.config.Pause); err != nil {
				// The wizard already points at s.phase; none of its calls were made.
				return nil, r.fail(ctx, id, st, &PhaseError{Phase: s.phase, Step: stepNotStarted, Err: err})
			}
		}

		start := time.Now()
		next, err := s.run(ctx, st)
		r.metrics.ObservePhase(s.phase.String(), time.Since(start))
		if err != nil {
			return nil, r.fail(ctx, id, next, err)
		}
		if next, err = next.advance(s.phase); err != nil {
			return nil, r.fail(ctx, id, next, &PhaseError{Phase: s.phase, Step: "state", Err: err})
		}
		st = next

		slog.Debug(fmt.Sprintf("%s - Registration %s completed %s (process %d)", logPrefix, id, s.phase, st.ProcessNumber()))
		if r.journal != nil {
			if err := r.journal.PhaseCompleted(ctx, id, s.phase, st.ProcessNumber()); err != nil {
				slog.Warn(fmt.Sprintf("%s - journal phase update failed for %s: %v", logPrefix, id, err))
			}
		}
	}

	result := &Result{
		ID:              id,
		NPJ:             res.npj,
		ProcessNumber:   st.ProcessNumber(),
		PartiesVerified: st.Parties().Verified(),
		Parties:         st.Parties(),
	}
	r.complete(ctx, result)
	return result, nil
}

func (r *Registrar) complete(ctx context.Context, result *Result) {
	ctx = context.WithoutCancel(ctx)

	slog.Info(fmt.Sprintf("%s - Registration %s completed: process=%d partiesVerified=%t",
		logPrefix, result.ID, result.ProcessNumber, result.PartiesVerified))
	if !result.PartiesVerified {
		slog.Warn(fmt.Sprintf("%s - Registration %s parties not verified: %+v", logPrefix, result.ID, result.Parties))
	}

	r.metrics.RegistrationCompleted(result.PartiesVerified)
	if r.journal != nil {
		if err := r.journal.Complete(ctx, result.ID, result); err != nil {
			slog.Warn(fmt.Sprintf("%s - journal complete failed for %s: %v", logPrefix, result.ID, err))
		}
	}
	r.publish(ctx, &events.RegistrationEvent{
		ID:              result.ID,
		NPJ:             result.NPJ,
		Status:          events.StatusCompleted,
		ProcessNumber:   result.ProcessNumber,
		PartiesVerified: result.PartiesVerified,
	})
}

func (r *Registrar) fail(ctx context.Context, id string, st State, err error) error {
	ctx = context.WithoutCancel(ctx)
	phase := FailedPhase(err)

	slog.Error(fmt.Sprintf("%s - Registration %s failed at %s (process %d): %v", logPrefix, id, phase, st.ProcessNumber(), err))

	r.metrics.RegistrationFailed(phase.String())
	if r.journal != nil {
		if jerr := r.journal.Fail(ctx, id, phase, st.ProcessNumber(), err); jerr != nil {
			slog.Warn(fmt.Sprintf("%s - journal fail update failed for %s: %v", logPrefix, id, jerr))
		}
	}
	r.publish(ctx, &events.RegistrationEvent{
		ID:            id,
		NPJ:           st.res.npj,
		Status:        events.StatusFailed,
		ProcessNumber: st.ProcessNumber(),
		FailedPhase:   phase.String(),
		Error:         err.Error(),
	})

	return fmt.Errorf("%s - registration %s failed: %w", logPrefix, id, err)
}

func (r *Registrar) publish(ctx context.Context, event *events.RegistrationEvent) {
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if err := r.publisher.PublishRegistration(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event for %s: %v", logPrefix, event.Status, event.ID, err))
	}
}

func (r *Registrar) acquire(npj string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[npj]; busy {
		return false
	}
	r.inflight[npj] = struct{}{}
	return true
}

func (r *Registrar) release(npj string) {
	r.mu.Lock()
	delete(r.inflight, npj)
	r.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
