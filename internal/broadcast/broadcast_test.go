package broadcast_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/glizzus/talkback/internal/broadcast"
	"github.com/glizzus/talkback/internal/repository"
)

func TestTurnFromValues(t *testing.T) {
	created := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	tc := []struct {
		name    string
		values  map[string]any
		want    repository.Turn
		wantErr bool
	}{
		{
			name: "complete message",
			values: map[string]any{
				"sessionID":  "sess_1",
				"index":      "2",
				"responseID": "resp_1",
				"transcript": "Hi",
				"audioBytes": "4800",
				"durationMs": "100",
				"createdAt":  created.Format(time.RFC3339Nano),
			},
			want: repository.Turn{
				SessionID:  "sess_1",
				Index:      2,
				ResponseID: "resp_1",
				Transcript: "Hi",
				AudioBytes: 4800,
				Duration:   100 * time.Millisecond,
				CreatedAt:  created,
			},
		},
		{
			name:    "missing ids",
			values:  map[string]any{"transcript": "Hi"},
			wantErr: true,
		},
		{
			name:    "bad number",
			values:  map[string]any{"sessionID": "s", "responseID": "r", "index": "two"},
			wantErr: true,
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			got, err := broadcast.TurnFromValues(test.values)
			if (err != nil) != test.wantErr {
				t.Fatalf("expected error %v, got %v", test.wantErr, err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("turn mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRedisPublisher(t *testing.T) {
	ctx := t.Context()
	redisContainer, err := tcredis.Run(ctx, "redis:7")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate redis container: %v", err)
		}
	}()

	connStr, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	publisher := broadcast.NewRedisPublisher(rdb, "")
	turns := []repository.Turn{
		{SessionID: "sess_1", Index: 0, ResponseID: "resp_1", Transcript: "Hello"},
		{SessionID: "sess_1", Index: 1, ResponseID: "resp_2", Prompt: "Again", Transcript: "Hello again"},
	}
	if err := publisher.PublishTurns(ctx, turns...); err != nil {
		t.Fatalf("PublishTurns failed: %v", err)
	}

	followCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stop := errors.New("stop")
	var got []string
	err = publisher.Follow(followCtx, "0", func(turn repository.Turn) error {
		got = append(got, turn.ResponseID+":"+turn.Transcript)
		if len(got) == len(turns) {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected Follow to stop after all turns, got %v", err)
	}

	want := []string{"resp_1:Hello", "resp_2:Hello again"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("followed turns mismatch (-want +got):\n%s", diff)
	}
}
