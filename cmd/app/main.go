// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hordu-ma/wuhao-tutor-sub002/cmd/app/commands"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "app",
		Usage:   "Policy evaluation service for the tutoring application",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the HTTP server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx, version)
				},
			},
			{
				Name:  "evaluate",
				Usage: "Evaluate one action against the policy rule set",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "rules",
						Aliases: []string{"R"},
						Usage:   "Path to the JSON rule set (overrides GUARD_RULES_PATH)",
					},
					&cli.StringFlag{
						Name:    "user",
						Aliases: []string{"u"},
						Usage:   "Subject user id (omit for an anonymous guest)",
					},
					&cli.StringFlag{
						Name:    "role",
						Aliases: []string{"r"},
						Value:   "guest",
						Usage:   "Subject role: student, parent, teacher, admin, or guest",
					},
					&cli.StringFlag{
						Name:     "resource",
						Aliases:  []string{"k"},
						Required: true,
						Usage:    "Resource key, e.g. 'homework.submit' or 'GET /homework/42'",
					},
					&cli.StringSliceFlag{
						Name:    "field",
						Aliases: []string{"F"},
						Usage:   "Evaluation context field as key=value (repeatable)",
					},
					&cli.Int64Flag{
						Name:  "file-size",
						Usage: "Attached file size in bytes",
					},
					&cli.StringFlag{
						Name:  "file-type",
						Usage: "Attached file MIME type",
					},
					&cli.BoolFlag{
						Name:  "confirmed",
						Usage: "Treat the sensitive-operation confirmation as already given",
					},
					&cli.StringSliceFlag{
						Name:    "permission",
						Aliases: []string{"p"},
						Usage:   "Permission granted to the subject (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "class-id",
						Usage: "Class the subject belongs to (repeatable)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunEvaluateCommand(
						ctx,
						cmd.String("rules"),
						commands.EvaluateInput{
							UserID:      cmd.String("user"),
							Role:        cmd.String("role"),
							Resource:    cmd.String("resource"),
							Fields:      cmd.StringSlice("field"),
							FileSize:    cmd.Int64("file-size"),
							FileType:    cmd.String("file-type"),
							Confirmed:   cmd.Bool("confirmed"),
							Permissions: cmd.StringSlice("permission"),
							ClassIDs:    cmd.StringSlice("class-id"),
							Format:      cmd.String("format"),
						},
						os.Stdout,
					)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
