package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/chatmigrate/internal/runs"
	"github.com/desertthunder/chatmigrate/internal/shared"
	"github.com/desertthunder/chatmigrate/internal/ui"
)

// TUIAction launches the dashboard with the window and limits given as flags.
func (r *Runner) TUIAction(ctx context.Context, cmd *cli.Command) error {
	req, err := r.migrationRequest("", cmd)
	if err != nil {
		return err
	}
	return r.TUI(ctx, req)
}

// TUI runs req in the interactive dashboard. A blank operation lets the user choose one.
func (r *Runner) TUI(ctx context.Context, req runs.Request) error {
	if req.IDs != nil {
		return fmt.Errorf("%w: --from-file cannot be combined with --tui", shared.ErrInvalidFlag)
	}

	// the dashboard owns the terminal
	fileLogger, err := shared.NewFileLogger(filepath.Join(r.config.Migration.LogDir, "tui.log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	svc, err := r.service(ctx, fileLogger)
	if err != nil {
		return err
	}

	p := tea.NewProgram(ui.NewModel(ctx, svc, req), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
