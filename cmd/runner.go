package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/chatmigrate/internal/notify"
	"github.com/desertthunder/chatmigrate/internal/repositories"
	"github.com/desertthunder/chatmigrate/internal/runs"
	"github.com/desertthunder/chatmigrate/internal/services"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Platform clients and the history database are created on first use so that commands which
// need neither (setup, history) work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	source     services.SourceReader
	target     services.TargetWriter
	httpClient *http.Client
	db         *sql.DB
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Source     services.SourceReader
	Target     services.TargetWriter
	HTTPClient *http.Client
	DB         *sql.DB
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		source:     opts.Source,
		target:     opts.Target,
		httpClient: opts.HTTPClient,
		db:         opts.DB,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, migrateCommand, historyCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Before loads the configuration file named by --config and applies environment overrides and log level flags.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	switch {
	case cmd.Bool("verbose"):
		shared.SetLogLevel(r.logger, log.DebugLevel)
	case cmd.Bool("quiet"):
		shared.SetLogLevel(r.logger, log.WarnLevel)
	}

	r.configPath = cmd.String("config")
	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	r.config.ApplyEnv(os.Getenv)
	return ctx, nil
}

// Close releases the history database if it was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// clients returns the platform clients, creating them from the configuration when none were injected.
func (r *Runner) clients() (services.SourceReader, services.TargetWriter, error) {
	if r.source != nil && r.target != nil {
		return r.source, r.target, nil
	}
	if err := r.config.Validate(); err != nil {
		return nil, nil, err
	}

	if r.source == nil {
		r.source = services.NewSourceClient(r.config.Source, r.httpClient, r.logger)
	}
	if r.target == nil {
		r.target = services.NewTargetClient(r.config.Target, r.httpClient, r.logger)
	}
	return r.source, r.target, nil
}

// database opens the run history database on first use.
func (r *Runner) database(ctx context.Context) (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("%w: run history: %v", shared.ErrServiceUnavailable, err)
	}
	r.db = db
	return db, nil
}

// service assembles the run pipeline. A history database that cannot be opened only disables history.
func (r *Runner) service(ctx context.Context, logger *log.Logger) (*runs.Service, error) {
	source, target, err := r.clients()
	if err != nil {
		return nil, err
	}

	opts := runs.Opts{
		Source:      source,
		Target:      target,
		Logger:      logger,
		Concurrency: r.config.Migration.Concurrency,
		MaxPageSize: r.config.Migration.MaxPageSize,
		LogDir:      r.config.Migration.LogDir,
	}

	if db, err := r.database(ctx); err != nil {
		logger.Warn("run history unavailable", "error", err)
	} else {
		opts.Runs = repositories.NewRunRepository(db)
		opts.Outcomes = repositories.NewOutcomeRepository(db)
	}

	if notifier := notify.NewSlackNotifier(r.config.Notify, logger); notifier.Enabled() {
		opts.Notifier = notifier
	}

	return runs.NewService(opts), nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
