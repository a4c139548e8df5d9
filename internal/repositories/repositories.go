package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/chatmigrate/internal/models"
)

var (
	_ models.Repository[*models.MigrationRun]  = (*RunRepository)(nil)
	_ models.Repository[*models.EntityOutcome] = (*OutcomeRepository)(nil)
)

// NextSequence bumps the counter row of table's sequence table and returns the new value.
// Runs are numbered with it (run #42) so history output has a short handle next to the uuid.
func NextSequence(db *sql.DB, table string) (int, error) {
	query := fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)

	var sequence int
	if err := db.QueryRow(query).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %w", table, err)
	}
	return sequence, nil
}
