package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// stderrLimit bounds how much ffmpeg diagnostics are kept for error messages.
const stderrLimit = 4096

// Transcoder pipes PCM through an ffmpeg process. Bytes written to it go to
// ffmpeg's stdin; ffmpeg's stdout is copied to the downstream writer.
type Transcoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	closeOnce sync.Once
	closeErr  error
}

// NewTranscoder starts ffmpeg converting s16le PCM in the in format to s16le
// PCM in the out format, written to w.
func NewTranscoder(ctx context.Context, ffmpegPath string, in, out Format, w io.Writer) (*Transcoder, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(in.SampleRate),
		"-ac", strconv.Itoa(in.Channels),
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(out.SampleRate),
		"-ac", strconv.Itoa(out.Channels),
		"pipe:1",
	}
	return startTranscoder(ctx, ffmpegPath, args, w)
}

func startTranscoder(ctx context.Context, path string, args []string, w io.Writer) (*Transcoder, error) {
	cmd := exec.CommandContext(ctx, path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to pipe input of ffmpeg: %w", err)
	}
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stdout = w
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("unable to start ffmpeg process: %w", err)
	}

	return &Transcoder{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

func (t *Transcoder) Write(p []byte) (int, error) {
	n, err := t.stdin.Write(p)
	if err != nil {
		return n, fmt.Errorf("failed to write to ffmpeg: %w", err)
	}
	return n, nil
}

// Close ends ffmpeg's input and waits for it to flush and exit.
func (t *Transcoder) Close() error {
	t.closeOnce.Do(func() {
		cerr := t.stdin.Close()
		if err := t.cmd.Wait(); err != nil {
			t.closeErr = processError("ffmpeg", err, t.stderr.String())
			return
		}
		if cerr != nil && !errors.Is(cerr, io.ErrClosedPipe) {
			t.closeErr = cerr
		}
	})
	return t.closeErr
}

var _ io.WriteCloser = (*Transcoder)(nil)

func processError(name string, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s exited: %w", name, err)
	}
	return fmt.Errorf("%s exited: %w: %s", name, err, stderr)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
