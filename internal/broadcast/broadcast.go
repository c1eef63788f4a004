// Package broadcast fans finished turns out to other processes through a
// Redis stream.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/glizzus/talkback/internal/repository"
)

const DefaultStream = "talkback_turns"

type TurnPublisher interface {
	PublishTurns(ctx context.Context, turns ...repository.Turn) error
}

type PrintingPublisher struct{}

func (p *PrintingPublisher) PublishTurns(ctx context.Context, turns ...repository.Turn) error {
	for _, turn := range turns {
		slog.InfoContext(
			ctx,
			"Finished turn",
			slog.String("sessionID", turn.SessionID),
			slog.Int("index", turn.Index),
			slog.String("responseID", turn.ResponseID),
			slog.Int64("audioBytes", turn.AudioBytes),
			slog.String("transcript", turn.Transcript),
		)
	}
	return nil
}

type RedisPublisher struct {
	client *redis.Client
	stream string
}

func NewRedisPublisher(client *redis.Client, stream string) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{client: client, stream: stream}
}

func (p *RedisPublisher) PublishTurns(ctx context.Context, turns ...repository.Turn) error {
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, turn := range turns {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: p.stream,
				Values: map[string]any{
					"sessionID":    turn.SessionID,
					"index":        turn.Index,
					"responseID":   turn.ResponseID,
					"prompt":       turn.Prompt,
					"transcript":   turn.Transcript,
					"audioBytes":   turn.AudioBytes,
					"durationMs":   turn.Duration.Milliseconds(),
					"recordingKey": turn.RecordingKey,
					"createdAt":    turn.CreatedAt.Format(time.RFC3339Nano),
				},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish turns: %w", err)
	}
	return nil
}

var (
	_ TurnPublisher = (*PrintingPublisher)(nil)
	_ TurnPublisher = (*RedisPublisher)(nil)
)

// Follow calls fn for every turn added to the stream after lastID ("$" for
// only new turns, "0" for the whole history). It blocks until ctx is
// cancelled or fn returns an error.
func (p *RedisPublisher) Follow(ctx context.Context, lastID string, fn func(repository.Turn) error) error {
	if lastID == "" {
		lastID = "$"
	}

	for {
		streams, err := p.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{p.stream, lastID},
			Count:   16,
			Block:   5 * time.Second,
		}).Result()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read turn stream: %w", err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				turn, err := TurnFromValues(msg.Values)
				if err != nil {
					slog.Warn("skipping malformed turn message", "id", msg.ID, "error", err)
					continue
				}
				if err := fn(turn); err != nil {
					return err
				}
			}
		}
	}
}

// TurnFromValues decodes the fields written by PublishTurns.
func TurnFromValues(values map[string]any) (repository.Turn, error) {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}
	num := func(key string) (int64, error) {
		s := str(key)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return n, nil
	}

	turn := repository.Turn{
		SessionID:    str("sessionID"),
		ResponseID:   str("responseID"),
		Prompt:       str("prompt"),
		Transcript:   str("transcript"),
		RecordingKey: str("recordingKey"),
	}
	if turn.SessionID == "" || turn.ResponseID == "" {
		return repository.Turn{}, errors.New("missing session or response id")
	}

	index, err := num("index")
	if err != nil {
		return repository.Turn{}, err
	}
	turn.Index = int(index)

	if turn.AudioBytes, err = num("audioBytes"); err != nil {
		return repository.Turn{}, err
	}

	durationMs, err := num("durationMs")
	if err != nil {
		return repository.Turn{}, err
	}
	turn.Duration = time.Duration(durationMs) * time.Millisecond

	if s := str("createdAt"); s != "" {
		if turn.CreatedAt, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return repository.Turn{}, fmt.Errorf("invalid createdAt: %w", err)
		}
	}
	return turn, nil
}
