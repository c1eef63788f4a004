package opus

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// FrameDuration is the duration of one frame produced by Encode.
const FrameDuration = 20 * time.Millisecond

// FrameReader reads length-prefixed Opus frames from an io.Reader.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader returns a new FrameReader that reads from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads and returns the next raw Opus frame.
// Returns io.EOF when there are no more frames.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	var size uint16
	if err := binary.Read(f.r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(f.r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// Stats summarises a frame recording.
type Stats struct {
	Frames       int
	PayloadBytes int64
	LargestFrame int
	Duration     time.Duration
	// Truncated is set when the recording ends in the middle of a frame.
	Truncated bool
}

// Inspect reads every frame from r.
func Inspect(r io.Reader) (Stats, error) {
	var stats Stats
	frames := NewFrameReader(r)
	for {
		frame, err := frames.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				stats.Truncated = true
				return stats, nil
			}
			return stats, err
		}
		stats.Frames++
		stats.PayloadBytes += int64(len(frame))
		stats.LargestFrame = max(stats.LargestFrame, len(frame))
		stats.Duration += FrameDuration
	}
}
