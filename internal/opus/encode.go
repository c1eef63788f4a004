package opus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/jonas747/ogg"
)

// Target selects the Opus stream parameters.
type Target struct {
	SampleRate int
	Channels   int
	Bitrate    int
}

// DiscordTarget is what Discord voice connections expect.
var DiscordTarget = Target{SampleRate: 48000, Channels: 2, Bitrate: 64000}

// SpeechTarget keeps the mono speech of a response compact.
var SpeechTarget = Target{SampleRate: 48000, Channels: 1, Bitrate: 32000}

// Source describes the s16le PCM fed to Encode.
type Source struct {
	SampleRate int
	Channels   int
}

// Encode reads s16le PCM from r, runs FFmpeg to transcode it to Opus, and
// returns an io.ReadCloser that produces length-prefixed Opus frames.
// The caller should read until EOF. Close must be called to clean up the
// FFmpeg process. Closing before EOF also closes r when it is an io.Closer.
func Encode(ctx context.Context, ffmpegPath string, r io.Reader, src Source, dst Target) (io.ReadCloser, error) {
	ffmpeg := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(src.SampleRate),
		"-ac", strconv.Itoa(src.Channels),
		"-i", "pipe:0",
		"-acodec", "libopus",
		"-f", "ogg",
		"-vbr", "on",
		"-compression_level", "10",
		"-ar", strconv.Itoa(dst.SampleRate),
		"-ac", strconv.Itoa(dst.Channels),
		"-b:a", strconv.Itoa(dst.Bitrate),
		"-application", "voip",
		"-frame_duration", "20",
		"-packet_loss", "1",
		"pipe:1",
	)

	ffmpeg.Stdin = r
	// Bounds Wait when r blocks and is not an io.Closer.
	ffmpeg.WaitDelay = time.Second

	stdout, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to pipe output of ffmpeg: %w", err)
	}

	if err := ffmpeg.Start(); err != nil {
		return nil, fmt.Errorf("unable to start ffmpeg process: %w", err)
	}

	pr, pw := io.Pipe()
	exited := make(chan struct{})

	go func() {
		decoder := ogg.NewPacketDecoder(ogg.NewDecoder(stdout))

		// Skip the OpusHead and OpusTags packets.
		skip := 2
		for {
			packet, _, err := decoder.Decode()
			if err != nil {
				// Drain so FFmpeg is never blocked on a full pipe.
				_, _ = io.Copy(io.Discard, stdout)
				werr := ffmpeg.Wait()
				close(exited)
				switch {
				case !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF):
					pw.CloseWithError(err)
				case werr != nil:
					pw.CloseWithError(fmt.Errorf("ffmpeg exited: %w", werr))
				default:
					pw.Close()
				}
				return
			}
			if skip > 0 {
				skip--
				continue
			}

			if err := WriteFrame(pw, packet); err != nil {
				closeSource(r)
				_ = ffmpeg.Process.Kill()
				_ = ffmpeg.Wait()
				close(exited)
				return
			}
		}
	}()

	return &encodeCloser{ReadCloser: pr, cmd: ffmpeg, src: r, exited: exited}, nil
}

func closeSource(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > 0xffff {
		return fmt.Errorf("opus frame too large: %d bytes", len(frame))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}

// encodeCloser wraps the pipe reader and ensures the FFmpeg process is cleaned up.
type encodeCloser struct {
	io.ReadCloser
	cmd    *exec.Cmd
	src    io.Reader
	exited chan struct{}
}

// Close returns once FFmpeg has been reaped.
func (e *encodeCloser) Close() error {
	err := e.ReadCloser.Close()
	select {
	case <-e.exited:
		return err
	default:
	}
	// Abandoned before EOF: stop the input copy and FFmpeg itself.
	closeSource(e.src)
	_ = e.cmd.Process.Kill()
	<-e.exited
	return err
}
