package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/glizzus/talkback/internal/realtime"
)

// ErrStreamEnded is returned when the event stream closes before the current
// response is done.
var ErrStreamEnded = errors.New("event stream ended before response.done")

// TakeResponse forwards the events of one response from in to out and closes
// out when it returns.
//
// Events seen before response.created are dropped, which discards the tail
// of an earlier response. When tag is set, a response.created echoing a
// different tag belongs to an abandoned request and is dropped with the rest
// of that response; one without any tag is accepted. After that, events
// tagged with another response id are dropped too. The stage ends after the
// matching response.done. A server error event ends it with a
// *realtime.ServerError.
func TakeResponse(ctx context.Context, in <-chan realtime.ServerEvent, out chan<- realtime.ServerEvent, tag string) (string, error) {
	defer close(out)

	var responseID string
	for {
		var ev realtime.ServerEvent
		select {
		case e, ok := <-in:
			if !ok {
				return responseID, ErrStreamEnded
			}
			ev = e
		case <-ctx.Done():
			return responseID, ctx.Err()
		}

		if ev.Type == realtime.EventError {
			return responseID, realtime.NewServerError(ev)
		}

		if responseID == "" {
			if ev.Type != realtime.EventResponseCreated {
				continue
			}
			if got := ev.TurnTag(); tag != "" && got != "" && got != tag {
				slog.Debug("dropping response of an abandoned request", "responseID", ev.ResponseKey(), "tag", got)
				continue
			}
			responseID = ev.ResponseKey()
		} else if key := ev.ResponseKey(); key != "" && key != responseID {
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return responseID, ctx.Err()
		}

		if ev.Type == realtime.EventResponseDone {
			return responseID, nil
		}
	}
}

// DecodeAudio base64 decodes the payload of every audio delta in in and
// sends the PCM to out, closing out when it returns.
func DecodeAudio(ctx context.Context, in <-chan realtime.ServerEvent, out chan<- []byte) error {
	defer close(out)

	for ev := range in {
		if ev.Type != realtime.EventAudioDelta {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			return fmt.Errorf("failed to decode audio delta %s: %w", ev.EventID, err)
		}
		if len(pcm) == 0 {
			continue
		}
		select {
		case out <- pcm:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ExtractTranscript sends the text of every transcript delta in in to out,
// closing out when it returns. Text deltas of text-only responses count as
// transcript too.
func ExtractTranscript(ctx context.Context, in <-chan realtime.ServerEvent, out chan<- string) error {
	defer close(out)

	for ev := range in {
		if ev.Type != realtime.EventAudioTranscript && ev.Type != realtime.EventTextDelta {
			continue
		}
		if ev.Delta == "" {
			continue
		}
		select {
		case out <- ev.Delta:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// WriteAll writes every chunk from in to w, in order.
func WriteAll(ctx context.Context, in <-chan []byte, w io.Writer) (int64, error) {
	var total int64
	for {
		select {
		case chunk, ok := <-in:
			if !ok {
				return total, nil
			}
			n, err := w.Write(chunk)
			total += int64(n)
			if err != nil {
				return total, fmt.Errorf("failed to write audio: %w", err)
			}
		case <-ctx.Done():
			return total, ctx.Err()
		}
	}
}
