package opus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/glizzus/talkback/internal/audio"
	"github.com/glizzus/talkback/internal/config"
)

// FileSink is an audio sink that records a response as Opus frames.
type FileSink struct {
	pw   *io.PipeWriter
	file *os.File
	done chan error

	closeOnce sync.Once
	closeErr  error
}

// CreateFileSink starts an encoder writing frames to path.
func CreateFileSink(ctx context.Context, cfg *config.AudioConfig, path string) (*FileSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus file: %w", err)
	}

	pr, pw := io.Pipe()
	frames, err := Encode(ctx, cfg.FFmpegPath, pr, Source{SampleRate: cfg.SampleRate, Channels: cfg.Channels}, SpeechTarget)
	if err != nil {
		_ = file.Close()
		_ = pr.Close()
		return nil, err
	}

	s := &FileSink{pw: pw, file: file, done: make(chan error, 1)}
	go func() {
		_, err := io.Copy(file, frames)
		if err != nil {
			// Unblock the writer side.
			pr.CloseWithError(err)
		}
		s.done <- errors.Join(err, frames.Close())
	}()
	return s, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

// Close ends the PCM input and waits for the encoder to finish the file.
func (s *FileSink) Close() error {
	s.closeOnce.Do(func() {
		_ = s.pw.Close()
		err := <-s.done
		s.closeErr = errors.Join(err, s.file.Close())
	})
	return s.closeErr
}

func (s *FileSink) Path() string {
	return s.file.Name()
}

var (
	_ io.WriteCloser  = (*FileSink)(nil)
	_ audio.Recording = (*FileSink)(nil)
)

// FileFactory records each response to dir as an .opus frame file.
func FileFactory(cfg *config.AudioConfig, dir string) audio.Factory {
	return func(ctx context.Context, turn audio.TurnInfo) (io.WriteCloser, error) {
		return CreateFileSink(ctx, cfg, filepath.Join(dir, turn.FileName(".opus")))
	}
}
