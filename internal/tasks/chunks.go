package tasks

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/chatmigrate/internal/models"
)

// wave is a group of at most size chunk tasks whose results are merged together.
type wave struct {
	group    *errgroup.Group
	results  chan *MigrationResult
	size     int
	inFlight int
}

func newWave(size int) *wave {
	return &wave{group: new(errgroup.Group), results: make(chan *MigrationResult, size), size: size}
}

func (w *wave) launch(task func() *MigrationResult) {
	w.inFlight++
	w.group.Go(func() error {
		w.results <- task()
		return nil
	})
}

func (w *wave) full() bool {
	return w.inFlight >= w.size
}

// join waits for every task of the wave and merges their results into total in completion order.
func (w *wave) join(total *MigrationResult) int {
	merged := w.inFlight
	for range w.inFlight {
		total.Merge(<-w.results)
	}
	_ = w.group.Wait()

	w.group = new(errgroup.Group)
	w.inFlight = 0
	return merged
}

// migrateUserChunks groups the user stream into chunks of pageSize and migrates up to the migrator's concurrency
// chunks at once. It stops at the first stream error, after limit users when limit > 0, or when ctx is done.
// Chunks already running are always awaited.
func (m *Migrator) migrateUserChunks(ctx context.Context, users iter.Seq2[models.SourceUser, error], window Window, pageSize, limit int, result *MigrationResult) {
	var (
		w        = newWave(m.concurrency)
		chunk    = make([]models.SourceUser, 0, pageSize)
		seen     int
		launched int
		merged   int
	)

	flush := func() {
		if len(chunk) == 0 {
			return
		}
		batch := chunk
		chunk = make([]models.SourceUser, 0, pageSize)
		launched++
		w.launch(func() *MigrationResult { return m.migrateChunk(ctx, batch, window) })

		if w.full() {
			merged += w.join(result)
			m.sendProgress(migrateChunksUpdate(merged, launched, result))
		}
	}

	for user, err := range users {
		if err != nil {
			result.AddError("users listing aborted: %v", err)
			result.Message = "users listing failed; result is partial"
			break
		}
		if err := ctx.Err(); err != nil {
			result.AddError("users migration interrupted: %v", err)
			break
		}

		chunk = append(chunk, user.Clone())
		seen++
		if len(chunk) == pageSize {
			flush()
		}
		if limit > 0 && seen >= limit {
			break
		}
	}
	if ctx.Err() == nil {
		flush()
	}

	if w.inFlight > 0 {
		merged += w.join(result)
		m.sendProgress(migrateChunksUpdate(merged, launched, result))
	}
}

// migrateChunk migrates users sequentially into a private result.
func (m *Migrator) migrateChunk(ctx context.Context, users []models.SourceUser, window Window) *MigrationResult {
	child := NewMigrationResult()
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			child.AddError("chunk interrupted before user %s: %v", user.ID, err)
			break
		}
		m.migrateUser(ctx, user, false, window, child)
	}
	return child
}
