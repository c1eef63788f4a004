package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/glizzus/talkback/internal/config"
)

// Format describes an s16le PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatFromConfig returns the stream format configured for the session.
func FormatFromConfig(cfg *config.AudioConfig) Format {
	return Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
}

// BlockAlign is the size in bytes of one sample frame.
func (f Format) BlockAlign() int {
	return f.Channels * 2
}

// Duration returns how long n bytes of PCM play for.
func (f Format) Duration(n int64) time.Duration {
	perSecond := int64(f.SampleRate * f.BlockAlign())
	if perSecond <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(perSecond)
}

// TurnInfo identifies the response a sink is built for.
type TurnInfo struct {
	SessionID string
	Index     int
}

// FileName returns a stable file name for the turn's recording.
func (t TurnInfo) FileName(ext string) string {
	return fmt.Sprintf("%s-%03d%s", t.SessionID, t.Index, ext)
}

// Factory builds a fresh sink for each response.
type Factory func(ctx context.Context, turn TurnInfo) (io.WriteCloser, error)

// Recording is implemented by sinks that leave a file behind.
type Recording interface {
	Path() string
}

// RecordingPath returns the file left behind by sink, if any.
func RecordingPath(sink io.WriteCloser) (string, bool) {
	if r, ok := sink.(Recording); ok && r.Path() != "" {
		return r.Path(), true
	}
	return "", false
}

// Discard counts bytes and drops them.
type Discard struct {
	N int64
}

func (d *Discard) Write(p []byte) (int, error) {
	d.N += int64(len(p))
	return len(p), nil
}

func (d *Discard) Close() error {
	return nil
}

var _ io.WriteCloser = (*Discard)(nil)

// DiscardFactory builds Discard sinks.
func DiscardFactory() Factory {
	return func(context.Context, TurnInfo) (io.WriteCloser, error) {
		return &Discard{}, nil
	}
}

// PlayerFactory builds a Player per response.
func PlayerFactory(cfg *config.AudioConfig) Factory {
	return func(ctx context.Context, _ TurnInfo) (io.WriteCloser, error) {
		return NewPlayer(ctx, cfg)
	}
}

// WAVFactory records each response to dir as a WAV file.
func WAVFactory(cfg *config.AudioConfig, dir string) Factory {
	return func(_ context.Context, turn TurnInfo) (io.WriteCloser, error) {
		return CreateWAV(filepath.Join(dir, turn.FileName(".wav")), FormatFromConfig(cfg))
	}
}

// MultiFactory builds every factory's sink and combines them with Multi.
func MultiFactory(factories ...Factory) Factory {
	return func(ctx context.Context, turn TurnInfo) (io.WriteCloser, error) {
		sinks := make([]io.WriteCloser, 0, len(factories))
		for _, f := range factories {
			sink, err := f(ctx, turn)
			if err != nil {
				for _, s := range sinks {
					_ = s.Close()
				}
				return nil, err
			}
			sinks = append(sinks, sink)
		}
		if len(sinks) == 1 {
			return sinks[0], nil
		}
		return Multi(sinks...), nil
	}
}

type multiSink struct {
	sinks []io.WriteCloser
}

// Multi writes every chunk to each sink in turn. A failing sink fails the
// write. Close closes all sinks and joins their errors.
func Multi(sinks ...io.WriteCloser) io.WriteCloser {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) Write(p []byte) (int, error) {
	for _, s := range m.sinks {
		n, err := s.Write(p)
		if err != nil {
			return n, err
		}
		if n != len(p) {
			return n, io.ErrShortWrite
		}
	}
	return len(p), nil
}

func (m *multiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiSink) Path() string {
	for _, s := range m.sinks {
		if path, ok := RecordingPath(s); ok {
			return path
		}
	}
	return ""
}
