// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/tasks"
)

// globalFlags are accepted by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("CHATMIGRATE_CONFIG"),
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log at debug level",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Only log warnings and errors",
		},
	}
}

// setupCommand handles setup operations for the database and the configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize the run history database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write config.toml from the template and check credentials",
				Action: r.SetupConfig,
			},
		},
	}
}

// windowFlags select entities by their last update time.
func windowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "before",
			Usage: "Only migrate entities updated before this date (YYYY-MM-DD or RFC 3339)",
		},
		&cli.StringFlag{
			Name:  "after",
			Usage: "Only migrate entities updated after this date (YYYY-MM-DD or RFC 3339)",
		},
	}
}

// pagingFlags bound how many entities are fetched and how.
func pagingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of entities to fetch",
			Value: 100,
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Fetch every entity (same as --limit 0)",
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Entities per source page; values above migration.max_page_size fall back to the default",
			Value: tasks.DefaultPageSize,
		},
	}
}

// bulkFlags apply to the users and channels commands.
func bulkFlags() []cli.Flag {
	flags := append(windowFlags(), pagingFlags()...)
	return append(flags,
		&cli.BoolFlag{
			Name:  "log-to-file",
			Usage: "Write per-disposition entity files and a log file under migration.log_dir",
		},
		&cli.StringFlag{
			Name:  "from-file",
			Usage: "Read identifiers line by line from this file instead of listing the source",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Result format (text, json, yaml)",
			Value:   "text",
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "Follow the run in the interactive dashboard",
		},
	)
}

// migrateCommand groups the four migration operations.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate users and channels to the target platform",
		Commands: []*cli.Command{
			{
				Name:   "users",
				Usage:  "Migrate every user with metadata and block lists",
				Flags:  bulkFlags(),
				Action: r.Migrate(models.OperationUsers),
			},
			{
				Name:   "channels",
				Usage:  "Migrate every private channel with its members",
				Flags:  bulkFlags(),
				Action: r.Migrate(models.OperationChannels),
			},
			{
				Name:  "account",
				Usage: "Migrate one user and the channels they belong to",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Numeric account id",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Result format (text, json, yaml)",
						Value:   "text",
					},
				}, append(windowFlags(), pagingFlags()...)...),
				Action: r.Migrate(models.OperationAccount),
			},
			{
				Name:  "channel",
				Usage: "Migrate one channel by SID or unique name",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Channel SID or unique name",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Result format (text, json, yaml)",
						Value:   "text",
					},
				}, windowFlags()...),
				Action: r.Migrate(models.OperationChannel),
			},
		},
	}
}

// historyCommand reads and prunes the run history.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect previous migration runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to list",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "operation",
						Usage: "Only list runs of this operation (users, channels, account, channel)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show one run and the outcome of every entity",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "run-id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "failed-only",
						Usage: "Only show failed entities",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Outcome format (text, csv)",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the CSV export to this file instead of stdout",
					},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "delete",
				Usage: "Remove a run from the history",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "run-id"},
				},
				Action: r.HistoryDelete,
			},
		},
	}
}

// serveCommand starts the HTTP trigger API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP trigger API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on (default from server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (default from server.port)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive migrations.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive migration dashboard",
		Flags:   append(windowFlags(), pagingFlags()...),
		Action:  r.TUIAction,
	}
}
