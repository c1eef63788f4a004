package opus

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestStreamFramesSendsInOrder(t *testing.T) {
	var buf bytes.Buffer
	for i := range 5 {
		_ = WriteFrame(&buf, []byte{byte(i)})
	}

	send := make(chan []byte, 5)
	if err := streamFrames(t.Context(), NewFrameReader(&buf), send); err != nil {
		t.Fatalf("streamFrames failed: %v", err)
	}
	close(send)

	i := 0
	for frame := range send {
		if len(frame) != 1 || frame[0] != byte(i) {
			t.Errorf("frame %d: unexpected payload %v", i, frame)
		}
		i++
	}
	if i != 5 {
		t.Errorf("expected 5 frames, got %d", i)
	}
}

func TestStreamFramesStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteFrame(&buf, []byte{1})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := streamFrames(ctx, NewFrameReader(&buf), make(chan []byte))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
