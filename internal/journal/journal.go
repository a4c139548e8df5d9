// package journal records migration progress to the console, to per-run log files and to the run history
package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/chatmigrate/internal/formatter"
	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
	"github.com/desertthunder/chatmigrate/internal/tasks"
)

// StampLayout formats the timestamp embedded in log file names.
const StampLayout = "2006_01_02_15_04_05"

// DefaultDir is used when no directory is configured.
const DefaultDir = "Logs"

// Recorder persists entity outcomes, typically to the run history database.
type Recorder interface {
	Create(outcome *models.EntityOutcome) error
}

// Opts configures a [Journal].
type Opts struct {
	Dir      string           // Directory for log files, defaults to [DefaultDir]
	ToFile   bool             // Write the main log and per-disposition identifier files
	Logger   *log.Logger      // Console logger, defaults to stderr
	Recorder Recorder         // Optional outcome sink
	RunID    string           // Run the recorded outcomes belong to
	Now      func() time.Time // Clock used for file names
}

// Journal is the logging sink of a migration run.
//
// Call [Journal.Init] before the run and [Journal.Flush] after it. File and recorder failures are logged
// as warnings and never interrupt the migration.
type Journal struct {
	mu       sync.Mutex
	opts     Opts
	logger   *log.Logger
	stamp    string
	main     *os.File
	mainLog  *log.Logger
	entities map[models.Disposition]*os.File
}

// New creates a [Journal]. Nothing is written until [Journal.Init].
func New(opts Opts) *Journal {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(os.Stderr)
	}
	return &Journal{opts: opts, logger: logger, entities: make(map[models.Disposition]*os.File)}
}

// Init creates the log directory and opens the main log file when file output is enabled.
func (j *Journal) Init() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stamp = j.opts.Now().Format(StampLayout)
	if !j.opts.ToFile {
		return
	}

	if err := os.MkdirAll(j.opts.Dir, 0755); err != nil {
		j.logger.Warn("file logging disabled", "dir", j.opts.Dir, "error", err)
		j.opts.ToFile = false
		return
	}

	path := filepath.Join(j.opts.Dir, fmt.Sprintf("migration_log_%s.txt", j.stamp))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		j.logger.Warn("main log file unavailable", "path", path, "error", err)
		return
	}
	j.main = f
	j.mainLog = log.NewWithOptions(f, log.Options{ReportTimestamp: true})
}

// Log writes msg to the console and, when enabled, to the main log file.
func (j *Journal) Log(msg string, keyvals ...any) {
	if strings.TrimSpace(msg) == "" {
		return
	}
	j.logger.Info(msg, keyvals...)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.mainLog != nil {
		j.mainLog.Info(msg, keyvals...)
	}
}

// Record appends id to the identifier file of d and forwards the outcome to the recorder.
func (j *Journal) Record(kind models.EntityKind, id string, d models.Disposition, reason string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	j.writeEntity(d, id)

	if j.opts.Recorder == nil || j.opts.RunID == "" {
		return
	}
	if err := j.opts.Recorder.Create(models.NewEntityOutcome(j.opts.RunID, kind, id, d, reason)); err != nil {
		j.logger.Warn("failed to record outcome", "kind", kind, "id", id, "disposition", d, "error", err)
	}
}

func (j *Journal) writeEntity(d models.Disposition, id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.opts.ToFile {
		return
	}

	f, ok := j.entities[d]
	if !ok {
		path := filepath.Join(j.opts.Dir, entityFileName(d, j.stamp))
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			j.logger.Warn("identifier file unavailable", "path", path, "error", err)
			f = nil
		}
		j.entities[d] = f
	}
	if f == nil {
		return
	}
	if _, err := io.WriteString(f, id+"\n"); err != nil {
		j.logger.Warn("failed to write identifier", "path", f.Name(), "error", err)
	}
}

func entityFileName(d models.Disposition, stamp string) string {
	switch d {
	case models.Success:
		return fmt.Sprintf("successful_entities_%s.log", stamp)
	case models.Failure:
		return fmt.Sprintf("failed_entities_%s.log", stamp)
	default:
		return fmt.Sprintf("skipped_entities_%s.log", stamp)
	}
}

// FinalStatistics logs the statistics block of a finished run and returns it.
func (j *Journal) FinalStatistics(users, channels models.Counters) string {
	block := formatter.StatisticsBlock(users, channels)
	j.logger.Print(block)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.main != nil {
		if _, err := io.WriteString(j.main, block); err != nil {
			j.logger.Warn("failed to write statistics", "path", j.main.Name(), "error", err)
		}
	}
	return block
}

// Paths lists the files the journal has opened, sorted.
func (j *Journal) Paths() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	var paths []string
	if j.main != nil {
		paths = append(paths, j.main.Name())
	}
	for _, f := range j.entities {
		if f != nil {
			paths = append(paths, f.Name())
		}
	}
	sort.Strings(paths)
	return paths
}

// Flush syncs and closes every open file. It is safe to call more than once.
func (j *Journal) Flush() {
	j.mu.Lock()
	defer j.mu.Unlock()

	closeFile := func(f *os.File) {
		if f == nil {
			return
		}
		if err := f.Sync(); err != nil {
			j.logger.Warn("failed to sync log file", "path", f.Name(), "error", err)
		}
		if err := f.Close(); err != nil {
			j.logger.Warn("failed to close log file", "path", f.Name(), "error", err)
		}
	}

	closeFile(j.main)
	j.main, j.mainLog = nil, nil
	for d, f := range j.entities {
		closeFile(f)
		delete(j.entities, d)
	}
}

var _ tasks.Sink = (*Journal)(nil)
