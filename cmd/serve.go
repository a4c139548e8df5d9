package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/chatmigrate/internal/repositories"
	"github.com/desertthunder/chatmigrate/internal/server"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

// Serve runs the HTTP trigger API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	logger := shared.WithLogger(r.logger, "component", "server")

	svc, err := r.service(ctx, logger)
	if err != nil {
		return err
	}

	opts := server.Opts{
		Executor: svc,
		Logger:   logger,
		Host:     r.config.Server.Host,
		Port:     r.config.Server.Port,
	}
	if cmd.IsSet("host") {
		opts.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		opts.Port = cmd.Int("port")
	}

	if db, err := r.database(ctx); err == nil {
		opts.History = repositories.NewRunRepository(db)
		opts.Outcomes = repositories.NewOutcomeRepository(db)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.New(opts).ListenAndServe(ctx)
}
