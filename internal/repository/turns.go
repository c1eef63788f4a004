package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Turn is one finished assistant response.
type Turn struct {
	SessionID    string
	Index        int
	ResponseID   string
	Prompt       string
	Transcript   string
	AudioBytes   int64
	Duration     time.Duration
	RecordingKey string
	CreatedAt    time.Time
}

type TurnPersister interface {
	Save(ctx context.Context, turn Turn) error
}

type TurnLister interface {
	List(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	Recent(ctx context.Context, limit int) ([]Turn, error)
}

type PostgresTurnRepository struct {
	db *pgxpool.Pool
}

func NewPostgresTurnRepository(db *pgxpool.Pool) *PostgresTurnRepository {
	return &PostgresTurnRepository{db: db}
}

func TurnToRowParams(turn Turn) []any {
	return []any{
		turn.SessionID,
		turn.Index,
		turn.ResponseID,
		turn.Prompt,
		turn.Transcript,
		turn.AudioBytes,
		turn.Duration.Milliseconds(),
		turn.RecordingKey,
	}
}

// Save records turn, creating its conversation on first use. Saving the same
// session and index twice overwrites the earlier row.
func (r *PostgresTurnRepository) Save(ctx context.Context, turn Turn) error {
	const conversationQuery = `
	INSERT INTO conversation (id)
	VALUES ($1)
	ON CONFLICT (id) DO NOTHING
	`

	const turnQuery = `
	INSERT INTO turn (session_id, turn_index, response_id, prompt, transcript, audio_bytes, duration_ms, recording_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (session_id, turn_index) DO UPDATE SET
		response_id = EXCLUDED.response_id,
		prompt = EXCLUDED.prompt,
		transcript = EXCLUDED.transcript,
		audio_bytes = EXCLUDED.audio_bytes,
		duration_ms = EXCLUDED.duration_ms,
		recording_key = EXCLUDED.recording_key
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, conversationQuery, turn.SessionID); err != nil {
		return fmt.Errorf("failed to execute conversation query: %w", err)
	}

	if _, err := tx.Exec(ctx, turnQuery, TurnToRowParams(turn)...); err != nil {
		return fmt.Errorf("failed to execute turn query: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const turnColumns = `session_id, turn_index, response_id, prompt, transcript, audio_bytes, duration_ms, recording_key, created_at`

func scanTurn(row pgx.CollectableRow) (Turn, error) {
	var turn Turn
	var durationMs int64
	err := row.Scan(
		&turn.SessionID,
		&turn.Index,
		&turn.ResponseID,
		&turn.Prompt,
		&turn.Transcript,
		&turn.AudioBytes,
		&durationMs,
		&turn.RecordingKey,
		&turn.CreatedAt,
	)
	turn.Duration = time.Duration(durationMs) * time.Millisecond
	return turn, err
}

// List returns up to limit turns of a session in the order they happened.
func (r *PostgresTurnRepository) List(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turn WHERE session_id = $1 ORDER BY turn_index ASC LIMIT $2`

	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, scanTurn)
	if err != nil {
		return nil, fmt.Errorf("failed to scan turns: %w", err)
	}
	return turns, nil
}

// Recent returns up to limit turns across all sessions, newest first.
func (r *PostgresTurnRepository) Recent(ctx context.Context, limit int) ([]Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turn ORDER BY created_at DESC, turn_index DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, scanTurn)
	if err != nil {
		return nil, fmt.Errorf("failed to scan turns: %w", err)
	}
	return turns, nil
}

var (
	_ TurnPersister = (*PostgresTurnRepository)(nil)
	_ TurnLister    = (*PostgresTurnRepository)(nil)
)
