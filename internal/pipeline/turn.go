package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glizzus/talkback/internal/realtime"
)

// TranscriptWriter receives transcript deltas as they arrive.
// *strings.Builder and *transcript.Assembler satisfy it.
type TranscriptWriter interface {
	WriteString(s string) (int, error)
}

// Result summarises one finished response.
type Result struct {
	ResponseID string
	Transcript string
	AudioBytes int64
	Events     int
	Elapsed    time.Duration
}

// RunTurn consumes one response from events, the one answering the request
// tagged tag (see TakeResponse). Audio is decoded and written to
// sink; transcript deltas go to transcript, which may be nil. sink is always
// closed, and RunTurn returns only after Close has returned, so a sink backed
// by a child process has finished playing by then.
func RunTurn(ctx context.Context, events <-chan realtime.ServerEvent, tag string, sink io.WriteCloser, transcript TranscriptWriter) (*Result, error) {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	res := &Result{}
	turn := make(chan realtime.ServerEvent)
	counted := make(chan realtime.ServerEvent)

	g.Go(func() error {
		id, err := TakeResponse(gctx, events, turn, tag)
		res.ResponseID = id
		return err
	})

	g.Go(func() error {
		defer close(counted)
		for ev := range turn {
			res.Events++
			select {
			case counted <- ev:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	branches := Tee(gctx, counted, 2)

	pcm := make(chan []byte)
	g.Go(func() error {
		return DecodeAudio(gctx, branches[0], pcm)
	})

	var sinkErr error
	g.Go(func() error {
		n, err := WriteAll(gctx, pcm, sink)
		res.AudioBytes = n
		if cerr := sink.Close(); cerr != nil {
			sinkErr = fmt.Errorf("failed to close audio sink: %w", cerr)
		}
		if err != nil {
			return err
		}
		return sinkErr
	})

	deltas := make(chan string)
	g.Go(func() error {
		return ExtractTranscript(gctx, branches[1], deltas)
	})

	var text strings.Builder
	g.Go(func() error {
		for delta := range deltas {
			text.WriteString(delta)
			if transcript == nil {
				continue
			}
			if _, err := transcript.WriteString(delta); err != nil {
				return fmt.Errorf("failed to write transcript: %w", err)
			}
		}
		return nil
	})

	err := g.Wait()
	res.Transcript = text.String()
	res.Elapsed = time.Since(start)
	if err != nil {
		if sinkErr != nil && !errors.Is(err, sinkErr) {
			err = errors.Join(err, sinkErr)
		}
		return res, err
	}
	return res, nil
}
