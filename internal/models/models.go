// package models defines the data model for the chat migration service
package models

import (
	"time"
)

// Record is implemented by everything the run history persists: [MigrationRun] and [EntityOutcome].
type Record interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error
}

// Repository is the storage contract shared by the run history tables.
// Create assigns the id and timestamps; Delete of an unknown id reports ErrNotFound.
type Repository[T Record] interface {
	Create(record T) error
	Get(id string) (T, error)
	Delete(id string) error
}
