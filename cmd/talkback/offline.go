package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/glizzus/talkback/internal/audio"
	"github.com/glizzus/talkback/internal/broadcast"
	"github.com/glizzus/talkback/internal/config"
	"github.com/glizzus/talkback/internal/datalayer"
	"github.com/glizzus/talkback/internal/eventlog"
	"github.com/glizzus/talkback/internal/opus"
	"github.com/glizzus/talkback/internal/repository"
)

func replay(c *cli.Context) error {
	ctx := c.Context
	path := c.Args().First()
	if path == "" {
		return cli.Exit("Please provide an event log file", 1)
	}

	events, err := eventlog.ReadFile(path)
	if err != nil {
		return err
	}
	pcm, err := eventlog.PCM(events)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return cli.Exit("No audio found in "+path, 1)
	}

	cfg, err := config.NewAudioConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load audio config: %w", err)
	}

	var sink io.WriteCloser
	out := c.String("out")
	switch strings.ToLower(filepath.Ext(out)) {
	case "":
		if out != "" {
			return cli.Exit("Output file needs a .wav or .opus extension", 1)
		}
		sink, err = audio.NewPlayer(ctx, cfg)
	case ".wav":
		sink, err = audio.CreateWAV(out, audio.FormatFromConfig(cfg))
	case ".opus":
		sink, err = opus.CreateFileSink(ctx, cfg, out)
	default:
		return cli.Exit("Unsupported output format "+filepath.Ext(out), 1)
	}
	if err != nil {
		return err
	}

	_, werr := sink.Write(pcm)
	if err := errors.Join(werr, sink.Close()); err != nil {
		return fmt.Errorf("failed to replay audio: %w", err)
	}

	duration := audio.FormatFromConfig(cfg).Duration(int64(len(pcm)))
	if out != "" {
		fmt.Printf("Wrote %s of audio to %s\n", duration.Round(time.Millisecond), out)
	}
	return nil
}

func inspect(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("Please provide an opus recording", 1)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stats, err := opus.Inspect(f)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "frames\t%d\n", stats.Frames)
	fmt.Fprintf(w, "payload bytes\t%d\n", stats.PayloadBytes)
	fmt.Fprintf(w, "largest frame\t%d\n", stats.LargestFrame)
	fmt.Fprintf(w, "duration\t%s\n", stats.Duration)
	if stats.Truncated {
		fmt.Fprintf(w, "truncated\tyes\n")
	}
	return w.Flush()
}

func printTurns(turns []repository.Turn) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tTURN\tDURATION\tTRANSCRIPT")
	for _, turn := range turns {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			turn.CreatedAt.Local().Format(time.DateTime),
			turn.SessionID,
			turn.Index,
			turn.Duration.Round(100*time.Millisecond),
			turn.Transcript,
		)
	}
	return w.Flush()
}

func history(c *cli.Context) error {
	ctx := c.Context

	pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}
	repo := repository.NewPostgresTurnRepository(pool)

	var turns []repository.Turn
	if session := c.String("session"); session != "" {
		turns, err = repo.List(ctx, session, c.Int("limit"))
	} else {
		turns, err = repo.Recent(ctx, c.Int("limit"))
	}
	if err != nil {
		return cli.Exit("Failed to retrieve turns: "+err.Error(), 1)
	}

	if len(turns) == 0 {
		fmt.Println("No turns found.")
		return nil
	}
	return printTurns(turns)
}

func follow(c *cli.Context) error {
	ctx := c.Context

	redisCfg, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	rdb, err := datalayer.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	from := "$"
	if c.Bool("all") {
		from = "0"
	}

	publisher := broadcast.NewRedisPublisher(rdb, redisCfg.Stream)
	return publisher.Follow(ctx, from, func(turn repository.Turn) error {
		fmt.Printf("[%s #%d] %s\n", turn.SessionID, turn.Index, turn.Transcript)
		return nil
	})
}
