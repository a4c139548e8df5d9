// package formatter renders migration results and run history as text, JSON, YAML or CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/tasks"
)

// Format selects how results are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// ParseFormat validates s; blank means [FormatText].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// StatisticsBlock renders the final statistics of a migration with thousands separators.
func StatisticsBlock(users, channels models.Counters) string {
	total := users.Add(channels)
	n := func(v int) string { return humanize.Comma(int64(v)) }

	var b strings.Builder
	b.WriteString("Final results of the migration:\n")
	fmt.Fprintf(&b, "\ttotal fetched from source: %s\n", n(total.Fetched))
	fmt.Fprintf(&b, "\t\tusers fetched: %s\n", n(users.Fetched))
	fmt.Fprintf(&b, "\t\tchannels fetched: %s\n", n(channels.Fetched))
	fmt.Fprintf(&b, "\ttotal succeeded: %s\n", n(total.Success))
	fmt.Fprintf(&b, "\t\tusers succeeded: %s\n", n(users.Success))
	fmt.Fprintf(&b, "\t\tchannels succeeded: %s\n", n(channels.Success))
	fmt.Fprintf(&b, "\ttotal skipped: %s\n", n(total.Skipped))
	fmt.Fprintf(&b, "\t\tusers skipped: %s\n", n(users.Skipped))
	fmt.Fprintf(&b, "\t\tchannels skipped: %s\n", n(channels.Skipped))
	fmt.Fprintf(&b, "\ttotal failed: %s\n", n(total.Failed))
	fmt.Fprintf(&b, "\t\tusers failed: %s\n", n(users.Failed))
	fmt.Fprintf(&b, "\t\tchannels failed: %s\n", n(channels.Failed))
	return b.String()
}

// ResultToText renders the statistics block followed by the message and error messages of result.
func ResultToText(result *tasks.MigrationResult) []byte {
	var buf bytes.Buffer
	buf.WriteString(StatisticsBlock(result.Users, result.Channels))

	if result.Message != "" {
		fmt.Fprintf(&buf, "\n%s\n", result.Message)
	}
	if len(result.ErrorMessages) > 0 {
		fmt.Fprintf(&buf, "\n%s:\n", humanize.Plural(len(result.ErrorMessages), "error", "errors"))
		for _, msg := range result.ErrorMessages {
			fmt.Fprintf(&buf, "  - %s\n", msg)
		}
	}
	return buf.Bytes()
}

// WriteResult renders result to w in format. CSV is not supported for results.
func WriteResult(w io.Writer, result *tasks.MigrationResult, format Format) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatText, "":
		data = ResultToText(result)
	case FormatJSON:
		data, err = json.MarshalIndent(result, "", "  ")
		data = append(data, '\n')
	case FormatYAML:
		data, err = yaml.Marshal(result)
	default:
		return fmt.Errorf("format %q is not supported for results", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = w.Write(data)
	return err
}

// RunView is the serialisable form of a [models.MigrationRun].
type RunView struct {
	ID         string          `json:"id" yaml:"id"`
	Sequence   int             `json:"sequence" yaml:"sequence"`
	Operation  string          `json:"operation" yaml:"operation"`
	Status     string          `json:"status" yaml:"status"`
	TargetID   string          `json:"target_id,omitempty" yaml:"target_id,omitempty"`
	Before     *time.Time      `json:"before,omitempty" yaml:"before,omitempty"`
	After      *time.Time      `json:"after,omitempty" yaml:"after,omitempty"`
	PageSize   int             `json:"page_size" yaml:"page_size"`
	Limit      int             `json:"limit" yaml:"limit"`
	Users      models.Counters `json:"users" yaml:"users"`
	Channels   models.Counters `json:"channels" yaml:"channels"`
	Message    string          `json:"message,omitempty" yaml:"message,omitempty"`
	ErrorCount int             `json:"error_count" yaml:"error_count"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// NewRunView copies run into a [RunView].
func NewRunView(run *models.MigrationRun) RunView {
	return RunView{
		ID:         run.ID(),
		Sequence:   run.Sequence(),
		Operation:  string(run.Operation()),
		Status:     run.Status(),
		TargetID:   run.TargetID(),
		Before:     run.Before(),
		After:      run.After(),
		PageSize:   run.PageSize(),
		Limit:      run.Limit(),
		Users:      run.Users(),
		Channels:   run.Channels(),
		Message:    run.Message(),
		ErrorCount: run.ErrorCount(),
		StartedAt:  run.StartedAt(),
		FinishedAt: run.FinishedAt(),
	}
}

// RunsToText renders one line per run, newest first as given.
func RunsToText(runs []*models.MigrationRun, now time.Time) []byte {
	var buf bytes.Buffer
	if len(runs) == 0 {
		buf.WriteString("No runs recorded.\n")
		return buf.Bytes()
	}

	for _, run := range runs {
		total := run.Total()
		target := ""
		if run.TargetID() != "" {
			target = " " + run.TargetID()
		}
		fmt.Fprintf(&buf, "#%d %s %s%s [%s] %s fetched, %s ok, %s skipped, %s failed (%s, took %s)\n",
			run.Sequence(), run.ID(), run.Operation(), target, run.Status(),
			humanize.Comma(int64(total.Fetched)), humanize.Comma(int64(total.Success)),
			humanize.Comma(int64(total.Skipped)), humanize.Comma(int64(total.Failed)),
			humanize.RelTime(run.StartedAt(), now, "ago", "from now"),
			run.Duration().Round(time.Millisecond))
	}
	return buf.Bytes()
}

// WriteRuns renders runs to w in format.
func WriteRuns(w io.Writer, runs []*models.MigrationRun, format Format) error {
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, NewRunView(run))
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatText, "":
		data = RunsToText(runs, time.Now())
	case FormatJSON:
		data, err = json.MarshalIndent(views, "", "  ")
		data = append(data, '\n')
	case FormatYAML:
		data, err = yaml.Marshal(views)
	default:
		return fmt.Errorf("format %q is not supported for runs", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode runs: %w", err)
	}

	_, err = w.Write(data)
	return err
}

// ExportOutcomesCSV converts outcomes to CSV with columns: Kind, Entity, Disposition, Message, Recorded
func ExportOutcomesCSV(outcomes []*models.EntityOutcome) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Kind", "Entity", "Disposition", "Message", "Recorded"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, o := range outcomes {
		record := []string{
			o.Kind().String(),
			o.EntityID(),
			o.Disposition().String(),
			o.Message(),
			o.CreatedAt().UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// OutcomesToText renders outcomes as "<disposition> <kind> <id>: <message>" lines.
func OutcomesToText(outcomes []*models.EntityOutcome) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", humanize.Plural(len(outcomes), "outcome", "outcomes"))
	for _, o := range outcomes {
		fmt.Fprintf(&buf, "%-8s %-8s %s", o.Disposition(), o.Kind().Singular(), o.EntityID())
		if o.Message() != "" {
			fmt.Fprintf(&buf, ": %s", o.Message())
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteOutcomesCSV writes the CSV export of outcomes to path.
func WriteOutcomesCSV(outcomes []*models.EntityOutcome, path string) error {
	data, err := ExportOutcomesCSV(outcomes)
	if err != nil {
		return fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return nil
}
