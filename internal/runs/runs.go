// package runs executes migration operations end to end: run record, journal, migrator, statistics and notification
package runs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/chatmigrate/internal/journal"
	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/services"
	"github.com/desertthunder/chatmigrate/internal/shared"
	"github.com/desertthunder/chatmigrate/internal/tasks"
)

// Store persists run records. [repositories.RunRepository] implements it.
type Store interface {
	Create(run *models.MigrationRun) error
	Update(run *models.MigrationRun) error
}

// Notifier announces finished runs. [notify.SlackNotifier] implements it.
type Notifier interface {
	Notify(ctx context.Context, run *models.MigrationRun) error
}

// Request describes one invocation of a migration operation.
type Request struct {
	Operation models.RunOperation
	TargetID  string // account id or channel identifier for single-entity operations
	Window    tasks.Window
	Limit     int
	PageSize  int
	LogToFile bool
	// IDs replaces the listing of users or channels with explicit identifiers, migrated one by one.
	IDs BatchSource
}

// Execution is the outcome of [Service.Execute].
type Execution struct {
	Run        *models.MigrationRun
	Result     *tasks.MigrationResult
	Statistics string
	LogFiles   []string
}

// Opts configures a [Service]. Source and Target are required.
type Opts struct {
	Source      services.SourceReader
	Target      services.TargetWriter
	Runs        Store
	Outcomes    journal.Recorder
	Notifier    Notifier
	Logger      *log.Logger
	Concurrency int
	MaxPageSize int // page sizes above it fall back to the default
	LogDir      string
}

// Service runs migrations and keeps their history.
type Service struct {
	opts   Opts
	logger *log.Logger
}

// NewService creates a [Service].
func NewService(opts Opts) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(os.Stderr)
	}
	if opts.LogDir == "" {
		opts.LogDir = journal.DefaultDir
	}
	return &Service{opts: opts, logger: logger}
}

// Execute runs req to completion. Progress updates are sent to progress when it is non-nil.
//
// History, log file and notification failures are logged and never fail the run. The returned error is the
// error of the migration operation itself; the execution is returned alongside it whenever a run was started.
func (s *Service) Execute(ctx context.Context, req Request, progress chan<- tasks.ProgressUpdate) (*Execution, error) {
	if !req.Operation.Valid() {
		return nil, goerr.Wrap(shared.ErrInvalidArgument, "unknown operation",
			goerr.V("operation", string(req.Operation)), goerr.T(tasks.ErrTagValidation))
	}

	if maxSize := s.opts.MaxPageSize; maxSize > 0 && req.PageSize > maxSize {
		s.logger.Warn("page size too large, using default", "page_size", req.PageSize, "max", maxSize, "default", tasks.DefaultPageSize)
		req.PageSize = 0
	}

	run := models.NewMigrationRun(req.Operation, strings.TrimSpace(req.TargetID))
	run.SetWindow(req.Window.Before, req.Window.After)
	run.SetPaging(req.PageSize, req.Limit)

	runID := ""
	if s.opts.Runs != nil {
		if err := s.opts.Runs.Create(run); err != nil {
			s.logger.Warn("run history unavailable", "operation", req.Operation, "error", err)
		} else {
			runID = run.ID()
		}
	}

	logger := shared.WithLogger(s.logger, "operation", string(req.Operation))
	j := journal.New(journal.Opts{
		Dir:      s.opts.LogDir,
		ToFile:   req.LogToFile,
		Logger:   logger,
		Recorder: s.opts.Outcomes,
		RunID:    runID,
	})
	j.Init()
	defer j.Flush()

	migrator := tasks.NewMigrator(tasks.MigratorOpts{
		Source:      s.opts.Source,
		Target:      s.opts.Target,
		Sink:        j,
		Logger:      logger,
		Concurrency: s.opts.Concurrency,
		Progress:    progress,
	})

	result, err := s.dispatch(ctx, migrator, req)
	if result == nil {
		result = tasks.NewMigrationResult()
	}

	exec := &Execution{
		Run:        run,
		Result:     result,
		Statistics: j.FinalStatistics(result.Users, result.Channels),
		LogFiles:   j.Paths(),
	}

	message := result.Message
	if err != nil && message == "" {
		message = err.Error()
	}
	run.Finish(result.Users, result.Channels, message, len(result.ErrorMessages))
	if err != nil {
		run.SetStatus(models.RunStatusFailed)
	}

	if runID != "" {
		if uerr := s.opts.Runs.Update(run); uerr != nil {
			s.logger.Warn("failed to store run", "run_id", runID, "error", uerr)
		}
	}
	if s.opts.Notifier != nil {
		if nerr := s.opts.Notifier.Notify(ctx, run); nerr != nil {
			s.logger.Warn("run notification failed", "run_id", run.ID(), "error", nerr)
		}
	}

	return exec, err
}

func (s *Service) dispatch(ctx context.Context, m *tasks.Migrator, req Request) (*tasks.MigrationResult, error) {
	if req.IDs != nil {
		switch req.Operation {
		case models.OperationUsers, models.OperationChannels:
			return s.migrateIDs(ctx, m, req)
		}
	}

	switch req.Operation {
	case models.OperationUsers:
		return m.MigrateUsers(ctx, req.Window, req.Limit, req.PageSize)
	case models.OperationChannels:
		return m.MigrateChannels(ctx, req.Window, req.Limit, req.PageSize)
	case models.OperationAccount:
		id, err := ParseAccountID(req.TargetID)
		if err != nil {
			return nil, err
		}
		return m.MigrateSingleAccount(ctx, req.Window, id, req.Limit, req.PageSize)
	default:
		return m.MigrateSingleChannel(ctx, req.Window, req.TargetID)
	}
}

// migrateIDs runs the single-entity operation for every identifier, one batch at a time.
// Entities of a batch run concurrently; their results are merged in file order.
func (s *Service) migrateIDs(ctx context.Context, m *tasks.Migrator, req Request) (*tasks.MigrationResult, error) {
	total := tasks.NewMigrationResult()
	done := 0

	for batch, err := range req.IDs {
		if err != nil {
			total.AddError("identifier file aborted: %v", err)
			total.Message = "identifier file could not be read; result is partial"
			return total, nil
		}
		if ctx.Err() != nil {
			total.AddError("%s migration interrupted: %v", req.Operation, ctx.Err())
			break
		}

		if req.Limit > 0 && done+len(batch) > req.Limit {
			batch = batch[:req.Limit-done]
		}

		results := make([]*tasks.MigrationResult, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.Concurrency())
		for i, id := range batch {
			g.Go(func() error {
				results[i] = s.migrateOne(gctx, m, req, id)
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			total.Merge(r)
		}
		done += len(batch)
		if req.Limit > 0 && done >= req.Limit {
			break
		}
	}

	if total.Message == "" {
		total.Message = fmt.Sprintf("%s migration from file finished", req.Operation)
	}
	return total, nil
}

func (s *Service) migrateOne(ctx context.Context, m *tasks.Migrator, req Request, id string) *tasks.MigrationResult {
	if req.Operation == models.OperationChannels {
		result, err := m.MigrateSingleChannel(ctx, req.Window, id)
		if err != nil && len(result.ErrorMessages) == 0 {
			result.AddError("channel %s: %v", id, err)
		}
		return result
	}

	accountID, err := ParseAccountID(id)
	if err != nil {
		result := tasks.NewMigrationResult()
		result.AddError("user %s: %v", id, err)
		return result
	}
	result, err := m.MigrateSingleAccount(ctx, req.Window, accountID, 0, req.PageSize)
	if err != nil {
		result.AddError("user %s: %v", id, err)
	}
	return result
}

// ParseAccountID converts a numeric account identifier, rejecting anything that is not a positive integer.
func ParseAccountID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, goerr.Wrap(shared.ErrInvalidArgument, "account id must be a positive integer",
			goerr.V("account_id", s), goerr.T(tasks.ErrTagValidation))
	}
	return id, nil
}
