// Package server orchestrates all components: NATS client, DB journal, browser session, dispatcher, HTTP pages.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/cadastro-incidental/internal/config"
	"github.com/morezero/cadastro-incidental/pkg/cadastro"
	"github.com/morezero/cadastro-incidental/pkg/commsutil"
	"github.com/morezero/cadastro-incidental/pkg/db"
	"github.com/morezero/cadastro-incidental/pkg/dispatcher"
	"github.com/morezero/cadastro-incidental/pkg/events"
	"github.com/morezero/cadastro-incidental/pkg/metrics"
	"github.com/morezero/cadastro-incidental/pkg/portal"
)

const logPrefix = "server:server"

// recentLimit is how many journal rows the home page shows.
const recentLimit = 100

// journalForServer is the journal surface the HTTP pages read.
type journalForServer interface {
	ListRecent(ctx context.Context, limit int) ([]db.Registration, error)
	Get(ctx context.Context, id string) (*db.Registration, error)
}

// healthForServer reports dependency health.
type healthForServer interface {
	Health(ctx context.Context) dispatcher.HealthResult
}

// Server is the cadastro-incidental orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	journal    journalForServer
	health     healthForServer
	gatherer   prometheus.Gatherer
}

// SetLogLevel installs the default slog text handler at the named level.
func SetLogLevel(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetLogLevel(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting cadastro-incidental", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	cadastroSubject := cfg.CadastroSubject
	if cadastroSubject == "" {
		cadastroSubject = commsutil.SubjectCadastro
	}
	slog.Info(fmt.Sprintf("%s - Cadastro subject: %s", logPrefix, cadastroSubject))

	// Step 1: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 2: Connect to database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		nc.Close()
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if cfg.RunMigrations {
		if err := db.ApplyMigrations(ctx, pool, cfg.MigrationPath); err != nil {
			pool.Close()
			nc.Close()
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	repo := db.NewRepository(pool)
	if _, err := repo.AbandonStale(ctx, cfg.JournalStaleAfter); err != nil {
		slog.Warn(fmt.Sprintf("%s - could not release stale registrations: %v", logPrefix, err))
	}
	s.journal = repo

	// Step 3: Browser session and portal client
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	s.gatherer = registry

	exec := portal.NewRodExecutor(portal.RodOptions{
		ControlURL:        cfg.BrowserURL,
		PageURLPattern:    cfg.PageURLPattern,
		VersionConstraint: cfg.BrowserConstraint,
	})
	if err := exec.Connect(ctx); err != nil {
		slog.Warn(fmt.Sprintf("%s - browser not attached yet, will retry on first call: %v", logPrefix, err))
	}
	client, err := portal.NewClient(exec, portal.ClientOptions{
		BaseURL:  cfg.PortalBaseURL,
		Retry:    cfg.RetryPolicy(),
		Observer: m,
	})
	if err != nil {
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to create portal client: %w", logPrefix, err)
	}

	// Step 4: Registrar
	publisher := events.NewCommsPublisher(nc, &events.CommsPublisherOpts{EventSubject: cfg.EventSubject})
	registrar, err := cadastro.NewRegistrar(cadastro.NewRegistrarParams{
		Transport: client,
		Journal:   repo,
		Publisher: publisher,
		Metrics:   m,
		Config:    cadastro.Config{Pause: cfg.PhasePause, Office: cfg.Office()},
	})
	if err != nil {
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to create registrar: %w", logPrefix, err)
	}

	// Step 5: Create dispatcher and subscribe
	disp := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registrar: registrar,
		Journal:   repo,
		Checks: map[string]dispatcher.HealthCheck{
			"database": repo.Ping,
			"browser":  exec.Ping,
		},
	})
	s.health = disp

	requestTimeout := cfg.RequestTimeout
	sub, err := nc.Subscribe(cadastroSubject, func(msg *comms.Msg) {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		data := handleMessage(reqCtx, disp, msg.Data)
		if data == nil {
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond: %v", logPrefix, err))
		}
	})
	if err != nil {
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, cadastroSubject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, cadastroSubject))

	// Step 6: Start HTTP server
	httpAddr := cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = fmt.Sprintf(":%d", cfg.HTTPPort)
	}
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - cadastro-incidental is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	sub.Unsubscribe()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	exec.Close()
	nc.Drain()
	pool.Close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// handleMessage decodes one COMMS request, dispatches it and encodes the reply.
// A nil return means nothing could be encoded.
func handleMessage(ctx context.Context, disp *dispatcher.Dispatcher, data []byte) []byte {
	var req dispatcher.CadastroRequest
	var resp *dispatcher.CadastroResponse
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		resp = &dispatcher.CadastroResponse{
			Ok: false,
			Error: &dispatcher.ErrorDetail{
				Code:    dispatcher.CodeInvalidRequest,
				Message: "Failed to decode request",
			},
		}
	} else {
		resp = disp.Dispatch(ctx, &req)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		return nil
	}
	return out
}

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/registration/", s.handleRegistrationDetail())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.health.Health(ctx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	}
}

var pageFuncs = template.FuncMap{
	"deref": func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	},
	"process": func(p *int64) string {
		if p == nil {
			return "-"
		}
		return fmt.Sprintf("%d", *p)
	},
	"verified": func(p *bool) string {
		switch {
		case p == nil:
			return "-"
		case *p:
			return "yes"
		default:
			return "no"
		}
	},
	"elapsed": func(r db.Registration) string {
		return r.Duration(time.Now()).Round(time.Second).String()
	},
	"json": func(raw json.RawMessage) string {
		if len(raw) == 0 {
			return ""
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return string(raw)
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return string(raw)
		}
		return string(b)
	},
}

// homePageTemplate lists health and the newest registrations.
const homePageTemplate = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Cadastro Incidental</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 1100px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .state-completed { color: #0066cc; font-weight: bold; }
    .state-failed, .error { color: #cc0000; font-weight: bold; }
    .state-running { color: #996600; font-weight: bold; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>Cadastro Incidental</h1>

  <section>
    <h2>Health</h2>
    <p>Status: <strong>{{.Health.Status}}</strong></p>
    <table>
      <thead><tr><th>Check</th><th>Result</th></tr></thead>
      <tbody>
      {{range $name, $result := .Health.Checks}}
        <tr><td>{{$name}}</td><td>{{$result}}</td></tr>
      {{end}}
      </tbody>
    </table>
  </section>

  <section>
    <h2>Recent registrations</h2>
    {{if .ListError}}
    <p class="error">Could not load the journal: {{.ListError}}</p>
    {{else if not .Registrations}}
    <p>No registrations yet.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>NPJ</th><th>State</th><th>Last phase</th><th>Process</th><th>Parties verified</th><th>Started</th><th>Duration</th></tr>
      </thead>
      <tbody>
        {{range .Registrations}}
        <tr>
          <td><a href="/registration/{{.ID}}">{{.NPJ}}</a></td>
          <td class="state-{{.State}}">{{.State}}{{with deref .FailedPhase}} at {{.}}{{end}}</td>
          <td>{{.LastPhase}}</td>
          <td>{{process .ProcessNumber}}</td>
          <td>{{verified .PartiesVerified}}</td>
          <td>{{.Started.Format "2006-01-02 15:04:05"}}</td>
          <td>{{elapsed .}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// registrationPageTemplate shows one journal row.
const registrationPageTemplate = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
  <meta charset="UTF-8">
  <title>{{.NPJ}} - Cadastro Incidental</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; max-width: 900px; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; width: 160px; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; font-size: 0.85rem; border: 1px solid #eee; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <p><a href="/">&larr; Back</a></p>
  <h1>{{.NPJ}}</h1>
  <table>
    <tr><th>ID</th><td>{{.ID}}</td></tr>
    <tr><th>State</th><td>{{.State}}</td></tr>
    <tr><th>Last phase</th><td>{{.LastPhase}}</td></tr>
    <tr><th>Process</th><td>{{process .ProcessNumber}}</td></tr>
    <tr><th>Parties verified</th><td>{{verified .PartiesVerified}}</td></tr>
    {{with deref .FailedPhase}}<tr><th>Failed phase</th><td>{{.}}</td></tr>{{end}}
    {{with deref .Error}}<tr><th>Error</th><td class="error">{{.}}</td></tr>{{end}}
    <tr><th>Started</th><td>{{.Started.Format "2006-01-02 15:04:05"}}</td></tr>
    <tr><th>Duration</th><td>{{elapsed .}}</td></tr>
  </table>
  <h2>Request</h2>
  <pre>{{json .Request}}</pre>
  {{with json .Parties}}<h2>Party check</h2><pre>{{.}}</pre>{{end}}
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health        dispatcher.HealthResult
	Registrations []db.Registration
	ListError     string
}

// handleHome returns an HTTP handler for the home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Funcs(pageFuncs).Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Health: s.health.Health(ctx)}
		regs, err := s.journal.ListRecent(ctx, recentLimit)
		if err != nil {
			data.ListError = err.Error()
		} else {
			data.Registrations = regs
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// handleRegistrationDetail returns an HTTP handler for /registration/{id}.
func (s *Server) handleRegistrationDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("registration").Funcs(pageFuncs).Parse(registrationPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/registration/"), "/")
		if id == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		if _, err := uuid.Parse(id); err != nil {
			http.NotFound(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		reg, err := s.journal.Get(ctx, id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if reg == nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, reg); err != nil {
			slog.Error(fmt.Sprintf("%s - registration template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
