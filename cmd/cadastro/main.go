// Package main is the entrypoint for cadastro-incidental.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/cadastro-incidental/internal/config"
	"github.com/morezero/cadastro-incidental/internal/server"
	"github.com/morezero/cadastro-incidental/pkg/batch"
	"github.com/morezero/cadastro-incidental/pkg/cadastro"
	"github.com/morezero/cadastro-incidental/pkg/commsutil"
	"github.com/morezero/cadastro-incidental/pkg/db"
	"github.com/morezero/cadastro-incidental/pkg/dispatcher"
	"github.com/morezero/cadastro-incidental/pkg/portal"
)

const usage = `Usage: cadastro [command]
       cadastro serve                     Start the service (NATS, HTTP, journal, browser session).
       cadastro register <file> [--stop-on-error]
                                          Register the requests in file through the local browser session.
       cadastro submit <file>             Send the requests in file to a running service over NATS.
       cadastro parties <process>         List the parties registered on a process.
       cadastro history <npj> [limit]     Show journal rows for an npj.
       cadastro migrate up                Run database migrations.
       cadastro migrate down              Roll back the journal migration.
       cadastro migrate status            Show migration status.
       cadastro ensure-db [name]          Create database if missing (default name: cadastro_test). Uses DATABASE_URL host/user.
       cadastro clear                     Truncate the registration journal; schema is preserved.

Commands:
  serve           (default) Start the service.
  register        Run registrations one after another; file holds one request or an array. Exit status 1 if any failed.
  submit          Same file format as register, executed by the service listening on CADASTRO_SUBJECT.
  parties         Read-only party listing for a process number.
  history         Journal rows, newest first.
  migrate         Journal schema management.
  ensure-db       Create the database named on the same host as DATABASE_URL.
  clear           Truncate journal data.

Environment: DATABASE_URL, COMMS_URL, BROWSER_URL, PORTAL_BASE_URL, CADASTRO_BATCH_FILE, MIGRATION_PATH,
CADASTRO_HTTP_ADDR (default :8080). See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "register":
		file, stopOnError := parseRegisterArgs(args[1:])
		ok, err := runRegister(file, stopOnError)
		if err != nil {
			log.Fatalf("cadastro register: %v", err)
		}
		if !ok {
			os.Exit(1)
		}
		return
	case "submit":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		ok, err := runSubmit(file)
		if err != nil {
			log.Fatalf("cadastro submit: %v", err)
		}
		if !ok {
			os.Exit(1)
		}
		return
	case "parties":
		if len(args) < 2 {
			log.Fatalf("cadastro parties: require a process number")
		}
		process, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			log.Fatalf("cadastro parties: invalid process number %q", args[1])
		}
		if err := runParties(process); err != nil {
			log.Fatalf("cadastro parties: %v", err)
		}
		return
	case "history":
		if len(args) < 2 {
			log.Fatalf("cadastro history: require an npj")
		}
		limit := 0
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				log.Fatalf("cadastro history: invalid limit %q", args[2])
			}
			limit = n
		}
		if err := runHistory(args[1], limit); err != nil {
			log.Fatalf("cadastro history: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("cadastro migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("cadastro migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("cadastro migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("cadastro migrate down: %v", err)
			}
		default:
			log.Fatalf("cadastro migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("cadastro clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "cadastro_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("cadastro ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("cadastro: %v", err)
	}
}

func parseRegisterArgs(args []string) (file string, stopOnError bool) {
	for _, a := range args {
		switch a {
		case "--stop-on-error", "-x":
			stopOnError = true
		default:
			if file == "" {
				file = a
			}
		}
	}
	return file, stopOnError
}

// signalContext is cancelled on SIGINT or SIGTERM so a batch stops between registrations.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadRequests(file string) ([]cadastro.Request, error) {
	reqs, _, err := batch.Load(file)
	if err != nil {
		return nil, err
	}
	if err := batch.Validate(reqs); err != nil {
		return nil, fmt.Errorf("invalid requests:\n%w", err)
	}
	return reqs, nil
}

// localRegistrar wires a registrar against the browser session. The journal is
// used when the database answers; otherwise the run goes unjournaled.
func localRegistrar(ctx context.Context, cfg *config.Config) (*cadastro.Registrar, func(), error) {
	if err := cfg.ValidateForRegister(); err != nil {
		return nil, nil, err
	}

	exec := portal.NewRodExecutor(portal.RodOptions{
		ControlURL:        cfg.BrowserURL,
		PageURLPattern:    cfg.PageURLPattern,
		VersionConstraint: cfg.BrowserConstraint,
	})
	if err := exec.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("attach browser: %w", err)
	}
	client, err := portal.NewClient(exec, portal.ClientOptions{BaseURL: cfg.PortalBaseURL, Retry: cfg.RetryPolicy()})
	if err != nil {
		exec.Close()
		return nil, nil, err
	}

	params := cadastro.NewRegistrarParams{
		Transport: client,
		Config:    cadastro.Config{Pause: cfg.PhasePause, Office: cfg.Office()},
	}
	cleanup := exec.Close
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("cadastro: journal unavailable, running without it: %v", err)
		} else {
			params.Journal = db.NewRepository(pool)
			cleanup = func() {
				exec.Close()
				pool.Close()
			}
		}
	}

	reg, err := cadastro.NewRegistrar(params)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return reg, cleanup, nil
}

func runRegister(file string, stopOnError bool) (bool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return false, fmt.Errorf("load config: %w", err)
	}
	server.SetLogLevel(cfg.LogLevel)

	reqs, err := loadRequests(file)
	if err != nil {
		return false, err
	}

	ctx, stop := signalContext()
	defer stop()

	reg, cleanup, err := localRegistrar(ctx, cfg)
	if err != nil {
		return false, err
	}
	defer cleanup()

	sum := batch.Run(ctx, reg, reqs, batch.Options{StopOnError: stopOnError})
	if err := printJSON(sum); err != nil {
		return false, err
	}
	return sum.OK(), nil
}

// submitEnvelope wraps one request for the service's register method.
func submitEnvelope(req *cadastro.Request, user string, timeout time.Duration) (*dispatcher.CadastroRequest, error) {
	params, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &dispatcher.CadastroRequest{
		ID:     id,
		Type:   "request",
		Method: "register",
		Params: params,
		Ctx: &dispatcher.InvocationContext{
			UserID:    user,
			RequestID: id,
			TimeoutMs: int(timeout / time.Millisecond),
		},
	}, nil
}

func runSubmit(file string) (bool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return false, fmt.Errorf("load config: %w", err)
	}
	server.SetLogLevel(cfg.LogLevel)

	reqs, err := loadRequests(file)
	if err != nil {
		return false, err
	}

	subject := cfg.CadastroSubject
	if subject == "" {
		subject = commsutil.SubjectCadastro
	}
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-submit")
	if err != nil {
		return false, err
	}
	defer nc.Close()

	ctx, stop := signalContext()
	defer stop()

	user := os.Getenv("USER")
	ok := true
	responses := make([]*dispatcher.CadastroResponse, 0, len(reqs))
	for i := range reqs {
		env, err := submitEnvelope(&reqs[i], user, cfg.RequestTimeout)
		if err != nil {
			return false, err
		}
		reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout+5*time.Second)
		var resp dispatcher.CadastroResponse
		err = commsutil.RequestJSON(reqCtx, nc, subject, env, &resp)
		cancel()
		if err != nil {
			return false, fmt.Errorf("request %d (npj %s): %w", i, reqs[i].NPJ, err)
		}
		if !resp.Ok {
			ok = false
		}
		responses = append(responses, &resp)
	}
	return ok, printJSON(responses)
}

func runParties(process int64) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetLogLevel(cfg.LogLevel)
	cfg.DatabaseURL = ""

	ctx, stop := signalContext()
	defer stop()

	reg, cleanup, err := localRegistrar(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	parties, err := reg.RegisteredParties(ctx, process)
	if err != nil {
		return err
	}
	return printJSON(parties)
}

func runHistory(npj string, limit int) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	rows, err := db.NewRepository(pool).History(ctx, npj, limit)
	if err != nil {
		return err
	}
	return printJSON(rows)
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, cfg.MigrationPath); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runMigrateDown() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationDown(ctx, pool, cfg.MigrationPath)
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearJournal(ctx, pool); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	targetURL, err := db.WithDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
