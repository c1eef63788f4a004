package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/glizzus/talkback/internal/config"
)

var sinkFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:  "sink",
		Usage: "where responses are played: speaker, wav, opus, discord or none (repeatable)",
		Value: cli.NewStringSlice("speaker"),
	},
	&cli.StringFlag{
		Name:  "out",
		Usage: "directory for wav and opus recordings",
		Value: ".",
	},
	&cli.StringFlag{
		Name:  "event-log",
		Usage: "append every received server event to this JSONL file",
	},
	&cli.BoolFlag{
		Name:  "store",
		Usage: "save finished turns to Postgres",
	},
	&cli.BoolFlag{
		Name:  "publish",
		Usage: "publish finished turns to the Redis turn stream",
	},
	&cli.BoolFlag{
		Name:  "upload",
		Usage: "upload recordings to MinIO",
	},
	&cli.BoolFlag{
		Name:  "live",
		Usage: "print transcript deltas as they arrive",
	},
}

func main() {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Debug("No .env file found, continuing without it")
		} else {
			log.Fatalf("Failed to load .env file: %v", err)
		}
	}

	app := &cli.App{
		Name:  "talkback",
		Usage: "Talk to a realtime speech model from the terminal",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "chat",
				Usage:  "Start a spoken conversation; type 'exit' to leave",
				Flags:  sinkFlags,
				Action: chat,
			},
			{
				Name:      "say",
				Usage:     "Ask a single question and play the answer",
				ArgsUsage: "TEXT",
				Flags:     sinkFlags,
				Action:    say,
			},
			{
				Name:      "schedule",
				Usage:     "Ask the same question on every tick of a cron expression",
				ArgsUsage: "TEXT",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "cron",
						Usage:    "cron expression, e.g. '0 9 * * 1-5'",
						Required: true,
					},
				}, sinkFlags...),
				Action: scheduled,
			},
			{
				Name:      "replay",
				Usage:     "Play or save the audio of a captured event log",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "write to this .wav or .opus file instead of playing",
					},
				},
				Action: replay,
			},
			{
				Name:      "inspect",
				Usage:     "Print frame statistics of an opus recording",
				ArgsUsage: "FILE",
				Action:    inspect,
			},
			{
				Name:  "history",
				Usage: "List saved turns from Postgres",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "session",
						Usage: "only list turns of this session",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "maximum number of turns",
						Value: 20,
					},
				},
				Action: history,
			},
			{
				Name:  "follow",
				Usage: "Print turns published to the Redis turn stream",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "start from the beginning of the stream",
					},
				},
				Action: follow,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("talkback: %v", err)
	}
}
