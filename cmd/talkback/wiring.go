package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/glizzus/talkback/internal/assistant"
	"github.com/glizzus/talkback/internal/audio"
	"github.com/glizzus/talkback/internal/broadcast"
	"github.com/glizzus/talkback/internal/config"
	"github.com/glizzus/talkback/internal/datalayer"
	"github.com/glizzus/talkback/internal/eventlog"
	"github.com/glizzus/talkback/internal/generator"
	"github.com/glizzus/talkback/internal/opus"
	"github.com/glizzus/talkback/internal/realtime"
	"github.com/glizzus/talkback/internal/repository"
	"github.com/glizzus/talkback/internal/transcript"
	"github.com/glizzus/talkback/internal/voice"
)

// resources collects everything a command opened so it can be released in
// reverse order.
type resources struct {
	closers []func() error
}

func (r *resources) add(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slog.Error("failed to release resource", "error", err)
		}
	}
}

func buildFactory(c *cli.Context, cfg *config.AudioConfig, res *resources) (audio.Factory, error) {
	dir := c.String("out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var factories []audio.Factory
	for _, name := range c.StringSlice("sink") {
		switch name {
		case "speaker":
			factories = append(factories, audio.PlayerFactory(cfg))
		case "wav":
			factories = append(factories, audio.WAVFactory(cfg, dir))
		case "opus":
			factories = append(factories, opus.FileFactory(cfg, dir))
		case "discord":
			discordCfg, err := config.NewDiscordConfigFromEnv()
			if err != nil {
				return nil, fmt.Errorf("failed to load discord config: %w", err)
			}
			s, err := voice.NewSession(discordCfg.Token)
			if err != nil {
				return nil, fmt.Errorf("failed to create discord session: %w", err)
			}
			if err := s.Open(); err != nil {
				return nil, fmt.Errorf("failed to open discord session: %w", err)
			}
			res.add(s.Close)
			factories = append(factories, voice.SinkFactory(s, discordCfg, cfg))
		case "none":
			factories = append(factories, audio.DiscardFactory())
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	if len(factories) == 0 {
		return audio.DiscardFactory(), nil
	}
	return audio.MultiFactory(factories...), nil
}

func buildRecorders(ctx context.Context, c *cli.Context, opts *assistant.Options, res *resources) error {
	if c.Bool("store") {
		pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
		if err != nil {
			return err
		}
		res.add(func() error {
			pool.Close()
			return nil
		})
		if err := datalayer.MigratePostgres(pool); err != nil {
			return fmt.Errorf("failed to migrate postgres: %w", err)
		}
		opts.Store = repository.NewPostgresTurnRepository(pool)
	}

	if c.Bool("publish") {
		redisCfg, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load redis config: %w", err)
		}
		rdb, err := datalayer.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return err
		}
		res.add(rdb.Close)
		opts.Publisher = broadcast.NewRedisPublisher(rdb, redisCfg.Stream)
	} else if slog.Default().Enabled(ctx, slog.LevelDebug) {
		opts.Publisher = &broadcast.PrintingPublisher{}
	}

	if c.Bool("upload") {
		storage, err := datalayer.NewMinioStorageFromEnv()
		if err != nil {
			return fmt.Errorf("failed to create minio storage: %w", err)
		}
		if err := storage.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure bucket: %w", err)
		}
		opts.Storage = storage
	}
	return nil
}

// connect dials the realtime API and builds an assistant from the command's
// flags. Everything it opens is released by res.
func connect(c *cli.Context, res *resources) (*assistant.Assistant, error) {
	ctx := c.Context

	rtCfg, err := config.NewRealtimeConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load realtime config: %w", err)
	}
	audioCfg, err := config.NewAudioConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load audio config: %w", err)
	}

	sessionID, err := generator.SessionIDs().Next()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	factory, err := buildFactory(c, audioCfg, res)
	if err != nil {
		return nil, err
	}

	opts := assistant.Options{
		SessionID:    sessionID,
		Factory:      factory,
		Format:       audio.FormatFromConfig(audioCfg),
		Instructions: rtCfg.Instructions,
		Voice:        rtCfg.Voice,
		Printer:      transcript.NewPrinter(os.Stdout),
	}
	if c.Bool("live") {
		opts.Live = os.Stdout
	}
	if err := buildRecorders(ctx, c, &opts, res); err != nil {
		return nil, err
	}

	var dialOpts []realtime.Option
	if path := c.String("event-log"); path != "" {
		f, err := eventlog.OpenFile(path)
		if err != nil {
			return nil, err
		}
		res.add(f.Close)
		dialOpts = append(dialOpts, realtime.WithObserver(f.Observe))
	}

	session, err := realtime.Dial(ctx, rtCfg, dialOpts...)
	if err != nil {
		return nil, err
	}
	res.add(func() error {
		err := session.Close()
		return errors.Join(err, session.Err())
	})

	a := assistant.New(session, opts)
	if err := a.Configure(ctx); err != nil {
		return nil, err
	}

	slog.Debug("session ready", "sessionID", sessionID)
	return a, nil
}
