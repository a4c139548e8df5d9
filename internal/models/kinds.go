package models

import "fmt"

// EntityKind identifies the family of a migrated entity.
type EntityKind int

const (
	KindUsers EntityKind = iota
	KindChannels
)

func (k EntityKind) String() string {
	switch k {
	case KindUsers:
		return "users"
	case KindChannels:
		return "channels"
	default:
		return "unknown"
	}
}

// Singular returns "user" or "channel", used in log lines.
func (k EntityKind) Singular() string {
	switch k {
	case KindUsers:
		return "user"
	case KindChannels:
		return "channel"
	default:
		return "entity"
	}
}

// ParseEntityKind is the inverse of [EntityKind.String].
func ParseEntityKind(s string) (EntityKind, error) {
	switch s {
	case "users", "user":
		return KindUsers, nil
	case "channels", "channel":
		return KindChannels, nil
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// Disposition is the terminal classification of a fetched entity.
// Exactly one is recorded per fetched entity.
type Disposition int

const (
	Skipped Disposition = iota
	Success
	Failure
)

func (d Disposition) String() string {
	switch d {
	case Skipped:
		return "skipped"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// ParseDisposition is the inverse of [Disposition.String].
func ParseDisposition(s string) (Disposition, error) {
	switch s {
	case "skipped":
		return Skipped, nil
	case "success":
		return Success, nil
	case "failure", "failed":
		return Failure, nil
	}
	return 0, fmt.Errorf("unknown disposition %q", s)
}

// Counters tallies the entities of one kind.
//
// Fetched always equals Success + Skipped + Failed once every fetched entity has a disposition.
type Counters struct {
	Fetched int `json:"fetched" yaml:"fetched"`
	Success int `json:"success" yaml:"success"`
	Skipped int `json:"skipped" yaml:"skipped"`
	Failed  int `json:"failed" yaml:"failed"`
}

// Add returns the field-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Fetched: c.Fetched + o.Fetched,
		Success: c.Success + o.Success,
		Skipped: c.Skipped + o.Skipped,
		Failed:  c.Failed + o.Failed,
	}
}

// Balanced reports whether every fetched entity has exactly one disposition.
func (c Counters) Balanced() bool {
	return c.Fetched == c.Success+c.Skipped+c.Failed
}

// Bump increments the counter for d.
func (c *Counters) Bump(d Disposition) {
	switch d {
	case Skipped:
		c.Skipped++
	case Success:
		c.Success++
	case Failure:
		c.Failed++
	}
}
