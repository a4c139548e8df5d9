package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

// OutcomeRepository stores the per-entity dispositions of migration runs.
//
// Outcomes are append-only during a run; [OutcomeRepository.Create] satisfies the journal's recorder.
type OutcomeRepository struct {
	db *sql.DB
}

// NewOutcomeRepository creates a new OutcomeRepository with the given database connection
func NewOutcomeRepository(db *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// Create inserts outcome with a generated ID
func (r *OutcomeRepository) Create(outcome *models.EntityOutcome) error {
	outcome.SetID(shared.GenerateID())

	if err := outcome.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO outcomes (id, run_id, kind, entity_id, disposition, message, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err := r.db.Exec(query,
		outcome.ID(),
		outcome.RunID(),
		outcome.Kind().String(),
		outcome.EntityID(),
		outcome.Disposition().String(),
		outcome.Message(),
		outcome.CreatedAt(),
		outcome.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}

	return nil
}

// Get retrieves an outcome by ID, excluding soft-deleted outcomes
func (r *OutcomeRepository) Get(id string) (*models.EntityOutcome, error) {
	query := `
		SELECT id, run_id, kind, entity_id, disposition, message, created_at, updated_at
		FROM outcomes
		WHERE id = ? AND deleted_at IS NULL
	`

	outcome, err := scanOutcome(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: outcome", shared.ErrNotFound)
	}
	return outcome, err
}

// ListByRun returns the outcomes of runID in insertion order.
// A non-nil disposition restricts the result to that disposition.
func (r *OutcomeRepository) ListByRun(runID string, disposition *models.Disposition) ([]*models.EntityOutcome, error) {
	query := `
		SELECT id, run_id, kind, entity_id, disposition, message, created_at, updated_at
		FROM outcomes
		WHERE run_id = ? AND deleted_at IS NULL
	`
	args := []any{runID}

	if disposition != nil {
		query += " AND disposition = ?"
		args = append(args, disposition.String())
	}
	query += " ORDER BY rowid ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*models.EntityOutcome
	for rows.Next() {
		outcome, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return outcomes, nil
}

// CountByDisposition tallies the outcomes of runID per disposition.
func (r *OutcomeRepository) CountByDisposition(runID string) (map[models.Disposition]int, error) {
	query := `
		SELECT disposition, COUNT(*)
		FROM outcomes
		WHERE run_id = ? AND deleted_at IS NULL
		GROUP BY disposition
	`

	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Disposition]int)
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		d, err := models.ParseDisposition(name)
		if err != nil {
			return nil, err
		}
		counts[d] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return counts, nil
}

// Delete soft-deletes an outcome by ID
func (r *OutcomeRepository) Delete(id string) error {
	query := `
		UPDATE outcomes
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete outcome: %w", err)
	}

	return requireAffected(result, "outcome", id)
}

func scanOutcome(s rowScanner) (*models.EntityOutcome, error) {
	var (
		id, runID, entityID string
		kind, disposition   string
		message             string
		createdAt           time.Time
		updatedAt           time.Time
	)

	err := s.Scan(&id, &runID, &kind, &entityID, &disposition, &message, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan outcome: %w", err)
	}

	k, err := models.ParseEntityKind(kind)
	if err != nil {
		return nil, err
	}
	d, err := models.ParseDisposition(disposition)
	if err != nil {
		return nil, err
	}

	outcome := models.NewEntityOutcome(runID, k, entityID, d, message)
	outcome.SetID(id)
	outcome.SetCreatedAt(createdAt)
	outcome.SetUpdatedAt(updatedAt)
	return outcome, nil
}
