package tasks

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/services"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

const (
	DefaultPageSize = 100
	MaxConcurrency  = 10
)

// ErrTagValidation marks errors caused by invalid operation arguments. No platform call is made for them.
var ErrTagValidation = goerr.NewTag("validation")

// Sink receives the log lines and per-entity dispositions of a migration.
//
// Implementations must be safe for concurrent use; the chunk driver records from several goroutines.
type Sink interface {
	Log(msg string, keyvals ...any)
	Record(kind models.EntityKind, id string, d models.Disposition, reason string)
}

type nopSink struct{}

func (nopSink) Log(string, ...any)                                           {}
func (nopSink) Record(models.EntityKind, string, models.Disposition, string) {}

// MigratorOpts configures a [Migrator]. Source and Target are required.
type MigratorOpts struct {
	Source      services.SourceReader
	Target      services.TargetWriter
	Sink        Sink
	Logger      *log.Logger
	Concurrency int
	Progress    chan<- ProgressUpdate
}

// Migrator moves users and channels from a [services.SourceReader] to a [services.TargetWriter].
type Migrator struct {
	source      services.SourceReader
	target      services.TargetWriter
	sink        Sink
	logger      *log.Logger
	concurrency int
	progress    chan<- ProgressUpdate
}

// NewMigrator creates a [Migrator]. Concurrency is clamped to 1..[MaxConcurrency]; zero means the maximum.
func NewMigrator(opts MigratorOpts) *Migrator {
	m := &Migrator{
		source:      opts.Source,
		target:      opts.Target,
		sink:        opts.Sink,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
		progress:    opts.Progress,
	}
	if m.sink == nil {
		m.sink = nopSink{}
	}
	if m.logger == nil {
		m.logger = shared.NewLogger(io.Discard)
	}
	if m.concurrency <= 0 || m.concurrency > MaxConcurrency {
		m.concurrency = MaxConcurrency
	}
	return m
}

// Concurrency returns the number of chunks migrated in parallel.
func (m *Migrator) Concurrency() int {
	return m.concurrency
}

// sendProgress sends a progress update through the channel without blocking.
func (m *Migrator) sendProgress(update ProgressUpdate) {
	if m.progress == nil {
		return
	}

	select {
	case m.progress <- update:
	default:
	}
}

// record counts the disposition of a fetched entity and forwards it to the sink.
func (m *Migrator) record(result *MigrationResult, kind models.EntityKind, id string, d models.Disposition, reason string) models.Disposition {
	result.Increase(kind, d)
	m.sink.Record(kind, id, d, reason)
	m.logger.Debug("entity processed", "kind", kind.Singular(), "id", id, "disposition", d, "reason", reason)
	return d
}

func invalidArgument(msg, key string, value any) error {
	return goerr.Wrap(shared.ErrInvalidArgument, msg, goerr.V(key, value), goerr.T(ErrTagValidation))
}

func normalizePageSize(pageSize int) int {
	if pageSize <= 0 {
		return DefaultPageSize
	}
	return pageSize
}

func validatePaging(limit, pageSize int) error {
	if limit < 0 {
		return invalidArgument("limit must not be negative", "limit", limit)
	}
	if pageSize < 0 {
		return invalidArgument("page size must not be negative", "page_size", pageSize)
	}
	return nil
}
