package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/glizzus/talkback/internal/config"
)

// Speaker plays s16le PCM written to it through ffplay.
type Speaker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	closeOnce sync.Once
	closeErr  error
}

// NewSpeaker starts ffplay reading PCM in format f from its stdin. ffplay
// exits once its input ends and the queued audio has played.
func NewSpeaker(ctx context.Context, ffplayPath string, f Format, volume int) (*Speaker, error) {
	// ffplay takes a channel layout rather than ffmpeg's -ac.
	layout := "mono"
	if f.Channels == 2 {
		layout = "stereo"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-volume", strconv.Itoa(volume),
		"-f", "s16le",
		"-ch_layout", layout,
		"-ar", strconv.Itoa(f.SampleRate),
		"-i", "-",
	}

	cmd := exec.CommandContext(ctx, ffplayPath, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to pipe input of ffplay: %w", err)
	}
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("unable to start ffplay process: %w", err)
	}

	return &Speaker{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

func (s *Speaker) Write(p []byte) (int, error) {
	n, err := s.stdin.Write(p)
	if err != nil {
		return n, fmt.Errorf("failed to write to ffplay: %w", err)
	}
	return n, nil
}

// Close ends ffplay's input and waits for playback to finish.
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		if err := s.cmd.Wait(); err != nil {
			s.closeErr = processError("ffplay", err, s.stderr.String())
		}
	})
	return s.closeErr
}

var _ io.WriteCloser = (*Speaker)(nil)

// Player decodes PCM through ffmpeg and plays ffmpeg's output on a Speaker.
type Player struct {
	decoder *Transcoder
	speaker *Speaker
}

// NewPlayer starts the decoder and speaker processes for one response.
func NewPlayer(ctx context.Context, cfg *config.AudioConfig) (*Player, error) {
	f := FormatFromConfig(cfg)

	speaker, err := NewSpeaker(ctx, cfg.FFplayPath, f, cfg.Volume)
	if err != nil {
		return nil, err
	}

	decoder, err := NewTranscoder(ctx, cfg.FFmpegPath, f, f, speaker)
	if err != nil {
		_ = speaker.Close()
		return nil, err
	}

	return &Player{decoder: decoder, speaker: speaker}, nil
}

func (p *Player) Write(b []byte) (int, error) {
	return p.decoder.Write(b)
}

// Close drains the decoder into the speaker, then waits for playback.
func (p *Player) Close() error {
	derr := p.decoder.Close()
	serr := p.speaker.Close()
	return errors.Join(derr, serr)
}

var _ io.WriteCloser = (*Player)(nil)
