package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/chatmigrate/internal/formatter"
	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/runs"
	"github.com/desertthunder/chatmigrate/internal/shared"
	"github.com/desertthunder/chatmigrate/internal/tasks"
)

// Migrate returns the action of the migrate subcommand for op.
func (r *Runner) Migrate(op models.RunOperation) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		req, err := r.migrationRequest(op, cmd)
		if err != nil {
			return err
		}

		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
		}
		if format == formatter.FormatCSV {
			return fmt.Errorf("%w: csv is only available for history show", shared.ErrInvalidFlag)
		}

		if cmd.Bool("tui") {
			return r.TUI(ctx, req)
		}

		svc, err := r.service(ctx, r.logger)
		if err != nil {
			return err
		}

		r.logger.Info("starting migration", "operation", op, "target", req.TargetID, "window", req.Window, "limit", req.Limit)
		exec, err := r.execute(ctx, svc, req, format == formatter.FormatText)
		if exec == nil {
			return err
		}

		if werr := r.writeExecution(exec, format); werr != nil {
			return werr
		}
		return err
	}
}

// migrationRequest builds a [runs.Request] from the flags of a migrate subcommand.
// Flags left unset fall back to the [migration] section of the configuration.
func (r *Runner) migrationRequest(op models.RunOperation, cmd *cli.Command) (runs.Request, error) {
	window, err := tasks.ParseWindow(cmd.String("before"), cmd.String("after"))
	if err != nil {
		return runs.Request{}, err
	}

	req := runs.Request{
		Operation: op,
		TargetID:  cmd.String("id"),
		Window:    window,
		Limit:     r.config.Migration.Limit,
		PageSize:  r.config.Migration.PageSize,
		LogToFile: r.config.Migration.LogToFile || cmd.Bool("log-to-file"),
		IDs:       batchSource(cmd.String("from-file")),
	}

	if cmd.IsSet("limit") {
		req.Limit = cmd.Int("limit")
	}
	if cmd.Bool("all") {
		req.Limit = 0
	}
	if cmd.IsSet("page-size") {
		req.PageSize = cmd.Int("page-size")
	}

	if req.Limit < 0 {
		return runs.Request{}, fmt.Errorf("%w: --limit must not be negative", shared.ErrInvalidFlag)
	}
	if req.PageSize < 0 {
		return runs.Request{}, fmt.Errorf("%w: --page-size must not be negative", shared.ErrInvalidFlag)
	}
	return req, nil
}

// batchSource opens the identifier file named by --from-file, if any.
func batchSource(path string) runs.BatchSource {
	if path == "" {
		return nil
	}
	return runs.ReadBatchesFromFile(path, runs.DefaultBatchSize)
}

// execute runs req, printing progress lines when showProgress is set.
func (r *Runner) execute(ctx context.Context, svc *runs.Service, req runs.Request, showProgress bool) (*runs.Execution, error) {
	if !showProgress {
		return svc.Execute(ctx, req, nil)
	}

	progressCh := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			r.printProgress(update)
		}
	}()

	exec, err := svc.Execute(ctx, req, progressCh)
	close(progressCh)
	<-done
	return exec, err
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.FetchUsers, tasks.FetchChannels:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.MigrateUserChunk:
		r.writePlain("   %s\n", update.Message)
	case tasks.MigrateChannel:
		if update.Step%100 == 0 {
			r.writePlain("   %s channels processed\n", humanize.Comma(int64(update.Step)))
		}
	case tasks.MigrateAccount:
		r.writePlain("👤 %s\n", update.Message)
	}
}

// writeExecution prints the result of a run followed by its log files and run id.
func (r *Runner) writeExecution(exec *runs.Execution, format formatter.Format) error {
	if format != formatter.FormatText {
		return formatter.WriteResult(r.output, exec.Result, format)
	}

	r.writePlain("\n")
	r.writePlainHeader("Migration finished")
	if err := formatter.WriteResult(r.output, exec.Result, format); err != nil {
		return err
	}
	for _, path := range exec.LogFiles {
		r.writePlain("Log file: %s\n", path)
	}
	if id := exec.Run.ID(); id != "" {
		r.writePlain("Run #%d recorded as %s (chatmigrate history show %s)\n", exec.Run.Sequence(), id, id)
	}
	return nil
}
