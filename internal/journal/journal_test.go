package journal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
	tu "github.com/desertthunder/chatmigrate/internal/testing"
)

type memoryRecorder struct {
	mu       sync.Mutex
	outcomes []*models.EntityOutcome
	err      error
}

func (r *memoryRecorder) Create(o *models.EntityOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.outcomes = append(r.outcomes, o)
	return nil
}

func fixedClock(t *testing.T) func() time.Time {
	ts := tu.MustParseTime(t, "2024-03-04T05:06:07Z")
	return func() time.Time { return ts }
}

func TestJournal(t *testing.T) {
	t.Run("writes main log and identifier files", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "Logs")
		var console bytes.Buffer
		j := New(Opts{Dir: dir, ToFile: true, Logger: shared.NewLogger(&console), Now: fixedClock(t)})

		j.Init()
		j.Log("migrating users", "limit", 10)
		j.Record(models.KindUsers, "1", models.Success, "")
		j.Record(models.KindUsers, "2", models.Failure, "status [500]")
		j.Record(models.KindChannels, "L1-1-2", models.Skipped, "no members")
		j.Record(models.KindUsers, "3", models.Success, "")
		j.Record(models.KindUsers, "  ", models.Success, "")
		block := j.FinalStatistics(models.Counters{Fetched: 3, Success: 2, Failed: 1}, models.Counters{Fetched: 1, Skipped: 1})
		j.Flush()

		gt.S(t, block).Contains("total fetched from source: 4")
		gt.S(t, console.String()).Contains("migrating users")

		main := tu.MustReadFile(t, filepath.Join(dir, "migration_log_2024_03_04_05_06_07.txt"))
		gt.S(t, main).Contains("migrating users")
		gt.S(t, main).Contains("users failed: 1")

		gt.Equal(t, tu.MustReadFile(t, filepath.Join(dir, "successful_entities_2024_03_04_05_06_07.log")), "1\n3\n")
		gt.Equal(t, tu.MustReadFile(t, filepath.Join(dir, "failed_entities_2024_03_04_05_06_07.log")), "2\n")
		gt.Equal(t, tu.MustReadFile(t, filepath.Join(dir, "skipped_entities_2024_03_04_05_06_07.log")), "L1-1-2\n")
	})

	t.Run("console only creates no files", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "Logs")
		j := New(Opts{Dir: dir, Logger: shared.NewLogger(&bytes.Buffer{}), Now: fixedClock(t)})

		j.Init()
		j.Log("hello")
		j.Record(models.KindUsers, "1", models.Success, "")
		j.Flush()

		_, err := os.Stat(dir)
		gt.True(t, os.IsNotExist(err))
		gt.Equal(t, len(j.Paths()), 0)
	})

	t.Run("forwards outcomes to the recorder", func(t *testing.T) {
		rec := &memoryRecorder{}
		j := New(Opts{Logger: shared.NewLogger(&bytes.Buffer{}), Recorder: rec, RunID: "run-1"})

		j.Init()
		j.Record(models.KindChannels, "L1-1-2", models.Failure, "status [400]")
		j.Flush()

		gt.Equal(t, len(rec.outcomes), 1)
		gt.Equal(t, rec.outcomes[0].RunID(), "run-1")
		gt.Equal(t, rec.outcomes[0].Kind(), models.KindChannels)
		gt.Equal(t, rec.outcomes[0].Disposition(), models.Failure)
		gt.Equal(t, rec.outcomes[0].Message(), "status [400]")
	})

	t.Run("recorder failures are logged and swallowed", func(t *testing.T) {
		var console bytes.Buffer
		rec := &memoryRecorder{err: errors.New("database is locked")}
		j := New(Opts{Logger: shared.NewLogger(&console), Recorder: rec, RunID: "run-1"})

		j.Init()
		j.Record(models.KindUsers, "1", models.Success, "")

		gt.S(t, console.String()).Contains("failed to record outcome")
		gt.S(t, console.String()).Contains("database is locked")
	})

	t.Run("unwritable directory falls back to console", func(t *testing.T) {
		base := t.TempDir()
		blocker := filepath.Join(base, "file")
		gt.NoError(t, os.WriteFile(blocker, []byte("x"), 0644)).Required()

		var console bytes.Buffer
		j := New(Opts{Dir: filepath.Join(blocker, "Logs"), ToFile: true, Logger: shared.NewLogger(&console)})

		j.Init()
		j.Record(models.KindUsers, "1", models.Success, "")
		j.Flush()

		gt.S(t, console.String()).Contains("file logging disabled")
		gt.Equal(t, len(j.Paths()), 0)
	})

	t.Run("concurrent records are not interleaved", func(t *testing.T) {
		dir := t.TempDir()
		j := New(Opts{Dir: dir, ToFile: true, Logger: shared.NewLogger(&bytes.Buffer{}), Now: fixedClock(t)})
		j.Init()

		var wg sync.WaitGroup
		for w := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 50 {
					j.Record(models.KindUsers, strings.Repeat("x", w+1)+"-"+string(rune('a'+i%26)), models.Success, "")
				}
			}()
		}
		wg.Wait()

		paths := j.Paths()
		j.Flush()

		gt.Equal(t, len(paths), 2)
		lines := strings.Split(strings.TrimSpace(tu.MustReadFile(t, tu.MustGlob(t, filepath.Join(dir, "successful_entities_*.log")))), "\n")
		gt.Equal(t, len(lines), 400)
	})
}
