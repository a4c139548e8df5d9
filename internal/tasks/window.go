package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/desertthunder/chatmigrate/internal/shared"
)

// Window filters entities on their last update time.
//
// With after <= before it selects the closed interval [after, before]. Otherwise it excludes the open gap
// between the bounds: a timestamp is kept when it is at or before Before, or at or after After.
type Window struct {
	Before *time.Time
	After  *time.Time
}

// NewWindow builds a [Window]; either bound may be nil.
func NewWindow(before, after *time.Time) Window {
	return Window{Before: before, After: after}
}

// IsZero reports a window without bounds.
func (w Window) IsZero() bool {
	return w.Before == nil && w.After == nil
}

// Includes reports whether an entity updated at t passes the window. Entities without a timestamp always pass.
func (w Window) Includes(t *time.Time) bool {
	if t == nil || w.IsZero() {
		return true
	}

	if w.Before != nil && w.After != nil && !w.After.After(*w.Before) {
		return !t.Before(*w.After) && !t.After(*w.Before)
	}

	before := w.Before != nil && !t.After(*w.Before)
	after := w.After != nil && !t.Before(*w.After)
	return before || after
}

func (w Window) String() string {
	format := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("before=%s after=%s", format(w.Before), format(w.After))
}

// DateLayout is the short form accepted for window bounds besides RFC 3339.
const DateLayout = "2006-01-02"

// ParseBound parses a window bound given as a date or an RFC 3339 timestamp. Blank means no bound.
func ParseBound(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, goerr.Wrap(shared.ErrInvalidFlag, "date must be YYYY-MM-DD or RFC 3339",
		goerr.V("value", s), goerr.T(ErrTagValidation))
}

// ParseWindow builds a [Window] from textual bounds.
func ParseWindow(before, after string) (Window, error) {
	b, err := ParseBound(before)
	if err != nil {
		return Window{}, err
	}
	a, err := ParseBound(after)
	if err != nil {
		return Window{}, err
	}
	return NewWindow(b, a), nil
}
