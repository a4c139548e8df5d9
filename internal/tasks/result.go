package tasks

import (
	"fmt"

	"github.com/desertthunder/chatmigrate/internal/models"
)

// MigrationResult aggregates the dispositions of every entity an operation fetched.
type MigrationResult struct {
	Users         models.Counters `json:"users" yaml:"users"`
	Channels      models.Counters `json:"channels" yaml:"channels"`
	ErrorMessages []string        `json:"error_messages" yaml:"error_messages"`
	Message       string          `json:"message,omitempty" yaml:"message,omitempty"`
}

// NewMigrationResult returns an empty result.
func NewMigrationResult() *MigrationResult {
	return &MigrationResult{ErrorMessages: []string{}}
}

func (r *MigrationResult) counters(kind models.EntityKind) *models.Counters {
	if kind == models.KindChannels {
		return &r.Channels
	}
	return &r.Users
}

// Counters returns the tally for kind.
func (r *MigrationResult) Counters(kind models.EntityKind) models.Counters {
	return *r.counters(kind)
}

// Increase counts one fetched entity of kind together with its disposition.
func (r *MigrationResult) Increase(kind models.EntityKind, d models.Disposition) {
	c := r.counters(kind)
	c.Fetched++
	c.Bump(d)
}

// Total sums the users and channels counters.
func (r *MigrationResult) Total() models.Counters {
	return r.Users.Add(r.Channels)
}

// AddError appends a diagnostic message. Messages are never deduplicated.
func (r *MigrationResult) AddError(format string, args ...any) {
	r.ErrorMessages = append(r.ErrorMessages, fmt.Sprintf(format, args...))
}

// Merge adds child's counters and messages into r. A message, when given, replaces r.Message.
func (r *MigrationResult) Merge(child *MigrationResult, message ...string) *MigrationResult {
	if child != nil {
		r.Users = r.Users.Add(child.Users)
		r.Channels = r.Channels.Add(child.Channels)
		r.ErrorMessages = append(r.ErrorMessages, child.ErrorMessages...)
	}
	if len(message) > 0 {
		r.Message = message[0]
	}
	return r
}

// Balanced reports whether every fetched entity of both kinds has a disposition.
func (r *MigrationResult) Balanced() bool {
	return r.Users.Balanced() && r.Channels.Balanced()
}

// HasFailures reports whether any entity failed.
func (r *MigrationResult) HasFailures() bool {
	return r.Users.Failed > 0 || r.Channels.Failed > 0
}
