package models

import (
	"errors"
	"fmt"
	"time"
)

// RunOperation names the top-level migration operation a run executed.
type RunOperation string

const (
	OperationUsers    RunOperation = "users"
	OperationChannels RunOperation = "channels"
	OperationAccount  RunOperation = "account"
	OperationChannel  RunOperation = "channel"
)

// Valid reports whether o is one of the four migration operations.
func (o RunOperation) Valid() bool {
	switch o {
	case OperationUsers, OperationChannels, OperationAccount, OperationChannel:
		return true
	}
	return false
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// MigrationRun records one invocation of a migration operation with its final counters.
type MigrationRun struct {
	id         string
	sequence   int
	operation  RunOperation
	status     string
	targetID   string
	before     *time.Time
	after      *time.Time
	pageSize   int
	limit      int
	users      Counters
	channels   Counters
	message    string
	errorCount int
	startedAt  time.Time
	finishedAt *time.Time
	createdAt  time.Time
	updatedAt  time.Time
	deletedAt  *time.Time
}

// NewMigrationRun creates a running [MigrationRun] for op. targetID is the account id or channel identifier
// for single-entity operations and empty otherwise.
func NewMigrationRun(op RunOperation, targetID string) *MigrationRun {
	now := time.Now()
	return &MigrationRun{
		operation: op,
		status:    RunStatusRunning,
		targetID:  targetID,
		startedAt: now,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *MigrationRun) ID() string                 { return r.id }
func (r *MigrationRun) Sequence() int              { return r.sequence }
func (r *MigrationRun) Operation() RunOperation    { return r.operation }
func (r *MigrationRun) Status() string             { return r.status }
func (r *MigrationRun) TargetID() string           { return r.targetID }
func (r *MigrationRun) Before() *time.Time         { return r.before }
func (r *MigrationRun) After() *time.Time          { return r.after }
func (r *MigrationRun) PageSize() int              { return r.pageSize }
func (r *MigrationRun) Limit() int                 { return r.limit }
func (r *MigrationRun) Users() Counters            { return r.users }
func (r *MigrationRun) Channels() Counters         { return r.channels }
func (r *MigrationRun) Message() string            { return r.message }
func (r *MigrationRun) ErrorCount() int            { return r.errorCount }
func (r *MigrationRun) StartedAt() time.Time       { return r.startedAt }
func (r *MigrationRun) FinishedAt() *time.Time     { return r.finishedAt }
func (r *MigrationRun) CreatedAt() time.Time       { return r.createdAt }
func (r *MigrationRun) UpdatedAt() time.Time       { return r.updatedAt }
func (r *MigrationRun) DeletedAt() *time.Time      { return r.deletedAt }
func (r *MigrationRun) SetID(id string)            { r.id = id }
func (r *MigrationRun) SetSequence(seq int)        { r.sequence = seq }
func (r *MigrationRun) SetStatus(s string)         { r.status = s }
func (r *MigrationRun) SetUpdatedAt(t time.Time)   { r.updatedAt = t }
func (r *MigrationRun) SetCreatedAt(t time.Time)   { r.createdAt = t }
func (r *MigrationRun) SetStartedAt(t time.Time)   { r.startedAt = t }
func (r *MigrationRun) SetFinishedAt(t *time.Time) { r.finishedAt = t }
func (r *MigrationRun) SetDeletedAt(t *time.Time)  { r.deletedAt = t }
func (r *MigrationRun) SetMessage(m string)        { r.message = m }
func (r *MigrationRun) SetErrorCount(n int)        { r.errorCount = n }

// SetWindow stores the date window bounds the run was invoked with.
func (r *MigrationRun) SetWindow(before, after *time.Time) {
	r.before, r.after = before, after
}

// SetPaging stores the page size and limit the run was invoked with.
func (r *MigrationRun) SetPaging(pageSize, limit int) {
	r.pageSize, r.limit = pageSize, limit
}

// SetCounters stores the per-kind totals.
func (r *MigrationRun) SetCounters(users, channels Counters) {
	r.users, r.channels = users, channels
}

// Total returns the sum of the per-kind counters.
func (r *MigrationRun) Total() Counters {
	return r.users.Add(r.channels)
}

// Finish marks the run completed, or failed when any entity failed, and stamps its finish time.
func (r *MigrationRun) Finish(users, channels Counters, message string, errorCount int) {
	now := time.Now()
	r.SetCounters(users, channels)
	r.message = message
	r.errorCount = errorCount
	r.finishedAt = &now
	r.updatedAt = now

	if users.Failed+channels.Failed > 0 {
		r.status = RunStatusFailed
	} else {
		r.status = RunStatusCompleted
	}
}

// Duration is the wall time between start and finish, or zero while the run is in progress.
func (r *MigrationRun) Duration() time.Duration {
	if r.finishedAt == nil {
		return 0
	}
	return r.finishedAt.Sub(r.startedAt)
}

// Validate checks the operation, status and target identifier.
func (r *MigrationRun) Validate() error {
	if r.id == "" {
		return errors.New("run id is required")
	}
	if !r.operation.Valid() {
		return fmt.Errorf("invalid run operation %q", r.operation)
	}

	switch r.status {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
	default:
		return fmt.Errorf("invalid run status %q", r.status)
	}

	if (r.operation == OperationAccount || r.operation == OperationChannel) && r.targetID == "" {
		return fmt.Errorf("%s run requires a target id", r.operation)
	}
	return nil
}

// EntityOutcome is the disposition recorded for one entity during a run.
type EntityOutcome struct {
	id          string
	runID       string
	kind        EntityKind
	entityID    string
	disposition Disposition
	message     string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewEntityOutcome creates an outcome for entityID within runID.
func NewEntityOutcome(runID string, kind EntityKind, entityID string, d Disposition, message string) *EntityOutcome {
	now := time.Now()
	return &EntityOutcome{
		runID:       runID,
		kind:        kind,
		entityID:    entityID,
		disposition: d,
		message:     message,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (o *EntityOutcome) ID() string               { return o.id }
func (o *EntityOutcome) RunID() string            { return o.runID }
func (o *EntityOutcome) Kind() EntityKind         { return o.kind }
func (o *EntityOutcome) EntityID() string         { return o.entityID }
func (o *EntityOutcome) Disposition() Disposition { return o.disposition }
func (o *EntityOutcome) Message() string          { return o.message }
func (o *EntityOutcome) CreatedAt() time.Time     { return o.createdAt }
func (o *EntityOutcome) UpdatedAt() time.Time     { return o.updatedAt }
func (o *EntityOutcome) SetID(id string)          { o.id = id }
func (o *EntityOutcome) SetCreatedAt(t time.Time) { o.createdAt = t }
func (o *EntityOutcome) SetUpdatedAt(t time.Time) { o.updatedAt = t }

// Validate requires a run, an entity identifier and a known disposition.
func (o *EntityOutcome) Validate() error {
	if o.runID == "" {
		return errors.New("outcome run id is required")
	}
	if o.entityID == "" {
		return errors.New("outcome entity id is required")
	}
	if o.disposition < Skipped || o.disposition > Failure {
		return fmt.Errorf("invalid disposition %d", o.disposition)
	}
	return nil
}
