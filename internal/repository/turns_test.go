package repository_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/glizzus/talkback/internal/datalayer"
	"github.com/glizzus/talkback/internal/repository"
)

func TestTurnRepository(t *testing.T) {
	ctx := t.Context()
	postgresContainer, err := postgres.Run(
		ctx,
		"postgres",
		postgres.WithDatabase("talkback"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		t.Fatalf("failed to migrate postgres: %v", err)
	}
	// A second run must be a no-op.
	if err := datalayer.MigratePostgres(pool); err != nil {
		t.Fatalf("failed to re-run migrations: %v", err)
	}

	repo := repository.NewPostgresTurnRepository(pool)

	turns := []repository.Turn{
		{SessionID: "sess_a", Index: 0, ResponseID: "resp_1", Transcript: "Hello!", AudioBytes: 48000, Duration: time.Second},
		{SessionID: "sess_a", Index: 1, ResponseID: "resp_2", Prompt: "How are you?", Transcript: "Great.", AudioBytes: 24000, Duration: 500 * time.Millisecond, RecordingKey: "recordings/sess_a/resp_2"},
		{SessionID: "sess_b", Index: 0, ResponseID: "resp_3", Transcript: "Other session."},
	}
	for _, turn := range turns {
		if err := repo.Save(ctx, turn); err != nil {
			t.Fatalf("failed to save turn: %v", err)
		}
	}

	ignoreCreated := cmpopts.IgnoreFields(repository.Turn{}, "CreatedAt")

	t.Run("List returns the turns of one session in order", func(t *testing.T) {
		got, err := repo.List(ctx, "sess_a", 10)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if diff := cmp.Diff(turns[:2], got, ignoreCreated); diff != "" {
			t.Errorf("turns mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("List respects the limit", func(t *testing.T) {
		got, err := repo.List(ctx, "sess_a", 1)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 1 || got[0].ResponseID != "resp_1" {
			t.Errorf("unexpected turns: %+v", got)
		}
	})

	t.Run("Saving the same turn again overwrites it", func(t *testing.T) {
		updated := turns[0]
		updated.Transcript = "Hello again!"
		if err := repo.Save(ctx, updated); err != nil {
			t.Fatalf("failed to save turn: %v", err)
		}

		got, err := repo.List(ctx, "sess_a", 10)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 2 || got[0].Transcript != "Hello again!" {
			t.Errorf("unexpected turns: %+v", got)
		}
	})

	t.Run("Recent spans sessions", func(t *testing.T) {
		got, err := repo.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 turns, got %d", len(got))
		}
		for _, turn := range got {
			if turn.CreatedAt.IsZero() {
				t.Errorf("expected created_at to be set for %s", turn.ResponseID)
			}
		}
	})
}
