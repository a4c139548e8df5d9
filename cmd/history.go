package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/chatmigrate/internal/formatter"
	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/repositories"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

// HistoryList prints recent runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	if limit < 0 {
		return fmt.Errorf("%w: --limit must not be negative", shared.ErrInvalidFlag)
	}

	db, err := r.database(ctx)
	if err != nil {
		return err
	}

	list, err := repositories.NewRunRepository(db).List(map[string]any{
		"operation": strings.TrimSpace(cmd.String("operation")),
		"limit":     limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	format := formatter.FormatText
	if cmd.Bool("json") {
		format = formatter.FormatJSON
	}
	return formatter.WriteRuns(r.output, list, format)
}

// HistoryShow prints one run and the outcome of each entity it touched, as text or CSV.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("run-id"))
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil || (format != formatter.FormatText && format != formatter.FormatCSV) {
		return fmt.Errorf("%w: --format must be text or csv", shared.ErrInvalidFlag)
	}

	db, err := r.database(ctx)
	if err != nil {
		return err
	}

	run, err := repositories.NewRunRepository(db).Get(id)
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	var filter *models.Disposition
	if cmd.Bool("failed-only") {
		failed := models.Failure
		filter = &failed
	}

	outcomes, err := repositories.NewOutcomeRepository(db).ListByRun(id, filter)
	if err != nil {
		return fmt.Errorf("failed to list outcomes: %w", err)
	}

	if format == formatter.FormatCSV {
		if path := cmd.String("output"); path != "" {
			if err := formatter.WriteOutcomesCSV(outcomes, path); err != nil {
				return err
			}
			r.logger.Info("outcomes exported", "run_id", id, "path", path, "count", len(outcomes))
			return nil
		}

		data, err := formatter.ExportOutcomesCSV(outcomes)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	}

	if err := formatter.WriteRuns(r.output, []*models.MigrationRun{run}, formatter.FormatText); err != nil {
		return err
	}
	r.writePlain("\n%s", formatter.StatisticsBlock(run.Users(), run.Channels()))
	if run.Message() != "" {
		r.writePlain("\n%s\n", run.Message())
	}
	r.writePlain("\n")
	_, err = r.output.Write(formatter.OutcomesToText(outcomes))
	return err
}

// HistoryDelete removes a run from the history. Its outcomes stay in the database.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("run-id"))
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	db, err := r.database(ctx)
	if err != nil {
		return err
	}

	if err := repositories.NewRunRepository(db).Delete(id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	r.writePlain("✓ Run %s deleted\n", id)
	return nil
}
