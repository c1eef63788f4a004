// Package assistant runs a spoken conversation over a realtime session: it
// requests responses, plays them through an audio sink and hands every
// finished turn to the configured recorders.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/glizzus/talkback/internal/audio"
	"github.com/glizzus/talkback/internal/broadcast"
	"github.com/glizzus/talkback/internal/datalayer"
	"github.com/glizzus/talkback/internal/pipeline"
	"github.com/glizzus/talkback/internal/realtime"
	"github.com/glizzus/talkback/internal/repository"
	"github.com/glizzus/talkback/internal/transcript"
)

// Conn is the part of a realtime session the assistant needs.
type Conn interface {
	Events() <-chan realtime.ServerEvent
	Send(ctx context.Context, ev realtime.ClientEvent) error
}

var _ Conn = (*realtime.Session)(nil)

// DefaultInstructions are sent with every response request unless overridden.
const DefaultInstructions = "Please assist the user."

type Options struct {
	// SessionID names the conversation in recordings and history.
	SessionID string
	// Factory builds the audio sink of each response. Nil discards audio.
	Factory audio.Factory
	// Format describes the PCM the server sends.
	Format audio.Format

	Instructions string
	Voice        string

	// Printer prints finished transcripts. Nil prints nothing.
	Printer *transcript.Printer
	// Live receives transcript deltas as they arrive. When set, Printer is
	// not used.
	Live io.Writer

	Store     repository.TurnPersister
	Publisher broadcast.TurnPublisher
	Storage   datalayer.BlobStorage
}

type Assistant struct {
	conn Conn
	opts Options

	// A session carries one response at a time.
	mu       sync.Mutex
	index    int
	requests int
}

func New(conn Conn, opts Options) *Assistant {
	if opts.Factory == nil {
		opts.Factory = audio.DiscardFactory()
	}
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}
	if opts.Format.SampleRate == 0 {
		opts.Format = audio.Format{SampleRate: 24000, Channels: 1}
	}
	return &Assistant{conn: conn, opts: opts}
}

// Configure sends a session.update with the configured voice and instructions.
func (a *Assistant) Configure(ctx context.Context) error {
	update := realtime.NewSessionUpdate(realtime.SessionOptions{
		Modalities:        []string{"audio", "text"},
		Instructions:      a.opts.Instructions,
		Voice:             a.opts.Voice,
		OutputAudioFormat: "pcm16",
	})
	if err := a.conn.Send(ctx, update); err != nil {
		return fmt.Errorf("failed to configure session: %w", err)
	}
	return nil
}

// Greet asks the server to speak first and plays the answer.
func (a *Assistant) Greet(ctx context.Context) (*repository.Turn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tag, err := a.requestResponse(ctx)
	if err != nil {
		return nil, err
	}
	return a.runTurn(ctx, tag, "")
}

// Ask sends text as a user message and plays the answer.
func (a *Assistant) Ask(ctx context.Context, text string) (*repository.Turn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.conn.Send(ctx, realtime.NewUserMessage(text)); err != nil {
		return nil, fmt.Errorf("failed to send user message: %w", err)
	}
	tag, err := a.requestResponse(ctx)
	if err != nil {
		return nil, err
	}
	return a.runTurn(ctx, tag, text)
}

// Cancel asks the server to stop the response in progress.
func (a *Assistant) Cancel(ctx context.Context) error {
	if err := a.conn.Send(ctx, realtime.NewResponseCancel()); err != nil {
		return fmt.Errorf("failed to cancel response: %w", err)
	}
	return nil
}

// requestResponse sends response.create tagged with a tag unique to this
// request, so a reply to an abandoned request is never taken for this one.
func (a *Assistant) requestResponse(ctx context.Context) (string, error) {
	a.requests++
	tag := fmt.Sprintf("%s/%d", a.opts.SessionID, a.requests)

	opts := &realtime.ResponseOptions{
		Modalities:   []string{"audio", "text"},
		Instructions: a.opts.Instructions,
		Voice:        a.opts.Voice,
	}
	if err := a.conn.Send(ctx, realtime.NewResponseCreate(opts.Tag(tag))); err != nil {
		return "", fmt.Errorf("failed to request response: %w", err)
	}
	return tag, nil
}

func (a *Assistant) runTurn(ctx context.Context, tag, prompt string) (*repository.Turn, error) {
	info := audio.TurnInfo{SessionID: a.opts.SessionID, Index: a.index}

	sink, err := a.opts.Factory(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio sink: %w", err)
	}

	var live pipeline.TranscriptWriter
	if a.opts.Live != nil {
		if _, err := io.WriteString(a.opts.Live, transcript.BotPrefix); err != nil {
			slog.Warn("failed to write transcript prefix", "error", err)
		}
		live = transcript.NewAssembler(a.opts.Live)
	}

	res, err := pipeline.RunTurn(ctx, a.conn.Events(), tag, sink, live)
	if a.opts.Live != nil {
		_, _ = io.WriteString(a.opts.Live, "\n")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run turn %d: %w", info.Index, err)
	}
	a.index++

	slog.Debug("finished turn",
		"sessionID", info.SessionID,
		"index", info.Index,
		"responseID", res.ResponseID,
		"events", res.Events,
		"audioBytes", res.AudioBytes,
		"elapsed", res.Elapsed,
	)

	if a.opts.Live == nil && a.opts.Printer != nil {
		if err := a.opts.Printer.Print(res.Transcript); err != nil {
			slog.Warn("failed to print transcript", "error", err)
		}
	}

	turn := repository.Turn{
		SessionID:  info.SessionID,
		Index:      info.Index,
		ResponseID: res.ResponseID,
		Prompt:     prompt,
		Transcript: res.Transcript,
		AudioBytes: res.AudioBytes,
		Duration:   a.opts.Format.Duration(res.AudioBytes),
		CreatedAt:  time.Now().UTC(),
	}

	if err := a.record(ctx, sink, &turn); err != nil {
		slog.Error("failed to record turn", "responseID", turn.ResponseID, "error", err)
	}
	return &turn, nil
}

// RecordingKey returns the object key a turn's recording is uploaded under.
func RecordingKey(sessionID, responseID, file string) string {
	return path.Join("recordings", sessionID, responseID+filepath.Ext(file))
}

// record hands turn to the configured recorders. A failing recorder does not
// stop the others.
func (a *Assistant) record(ctx context.Context, sink io.WriteCloser, turn *repository.Turn) error {
	var errs []error

	if file, ok := audio.RecordingPath(sink); ok && a.opts.Storage != nil {
		key := RecordingKey(turn.SessionID, turn.ResponseID, file)
		if err := datalayer.UploadFile(ctx, a.opts.Storage, key, file); err != nil {
			errs = append(errs, err)
		} else {
			turn.RecordingKey = key
		}
	}

	if a.opts.Store != nil {
		if err := a.opts.Store.Save(ctx, *turn); err != nil {
			errs = append(errs, fmt.Errorf("failed to save turn: %w", err))
		}
	}

	if a.opts.Publisher != nil {
		if err := a.opts.Publisher.PublishTurns(ctx, *turn); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
