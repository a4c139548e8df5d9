package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

const runColumns = `
	id, sequence, operation, status, target_id, date_before, date_after,
	page_size, item_limit,
	users_fetched, users_success, users_skipped, users_failed,
	channels_fetched, channels_success, channels_skipped, channels_failed,
	message, error_count, started_at, finished_at, created_at, updated_at, deleted_at
`

// RunRepository implements models.Repository[*models.MigrationRun] for the run history.
//
// Handles run CRUD operations with soft delete support and operation/status filters.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run into the database with generated ID and sequence
func (r *RunRepository) Create(run *models.MigrationRun) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	run.SetID(id)
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	users, channels := run.Users(), run.Channels()
	_, err = r.db.Exec(query,
		id,
		sequence,
		string(run.Operation()),
		run.Status(),
		run.TargetID(),
		nullableTime(run.Before()),
		nullableTime(run.After()),
		run.PageSize(),
		run.Limit(),
		users.Fetched, users.Success, users.Skipped, users.Failed,
		channels.Fetched, channels.Success, channels.Skipped, channels.Failed,
		run.Message(),
		run.ErrorCount(),
		run.StartedAt(),
		nullableTime(run.FinishedAt()),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, id))
}

// Update stores the status, counters and finish time of an existing run
func (r *RunRepository) Update(run *models.MigrationRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE runs
		SET status = ?,
			users_fetched = ?, users_success = ?, users_skipped = ?, users_failed = ?,
			channels_fetched = ?, channels_success = ?, channels_skipped = ?, channels_failed = ?,
			message = ?, error_count = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	users, channels := run.Users(), run.Channels()
	result, err := r.db.Exec(query,
		run.Status(),
		users.Fetched, users.Success, users.Skipped, users.Failed,
		channels.Fetched, channels.Success, channels.Skipped, channels.Failed,
		run.Message(),
		run.ErrorCount(),
		nullableTime(run.FinishedAt()),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return requireAffected(result, "run", run.ID())
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	query := `
		UPDATE runs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	return requireAffected(result, "run", id)
}

// List retrieves runs matching the given criteria, newest first, excluding soft-deleted runs.
//
// Supported criteria: "operation" (string), "status" (string), "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE deleted_at IS NULL`
	args := []any{}

	if operation, ok := criteria["operation"].(string); ok && operation != "" {
		query += " AND operation = ?"
		args = append(args, operation)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.MigrationRun
	for rows.Next() {
		run, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// scanOne scans a single [sql.Row] into a [models.MigrationRun]
func (r *RunRepository) scanOne(row *sql.Row) (*models.MigrationRun, error) {
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run", shared.ErrNotFound)
	}
	return run, err
}

// scanRow scans a row from [sql.Rows] into a [models.MigrationRun]
func (r *RunRepository) scanRow(rows *sql.Rows) (*models.MigrationRun, error) {
	return scanRun(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*models.MigrationRun, error) {
	var (
		id              string
		sequence        int
		operation       string
		status          string
		targetID        string
		before, after   sql.NullTime
		pageSize, limit int
		users, channels models.Counters
		message         string
		errorCount      int
		startedAt       time.Time
		finishedAt      sql.NullTime
		createdAt       time.Time
		updatedAt       time.Time
		deletedAt       sql.NullTime
	)

	err := s.Scan(
		&id, &sequence, &operation, &status, &targetID, &before, &after,
		&pageSize, &limit,
		&users.Fetched, &users.Success, &users.Skipped, &users.Failed,
		&channels.Fetched, &channels.Success, &channels.Skipped, &channels.Failed,
		&message, &errorCount, &startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := models.NewMigrationRun(models.RunOperation(operation), targetID)
	run.SetID(id)
	run.SetSequence(sequence)
	run.SetStatus(status)
	run.SetWindow(timePtr(before), timePtr(after))
	run.SetPaging(pageSize, limit)
	run.SetCounters(users, channels)
	run.SetMessage(message)
	run.SetErrorCount(errorCount)
	run.SetStartedAt(startedAt)
	run.SetFinishedAt(timePtr(finishedAt))
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	run.SetDeletedAt(timePtr(deletedAt))

	return run, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func requireAffected(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s not found or already deleted", shared.ErrNotFound, entity, id)
	}
	return nil
}
