package voice

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/glizzus/talkback/internal/audio"
	"github.com/glizzus/talkback/internal/config"
	"github.com/glizzus/talkback/internal/opus"
)

// Sink speaks a response in a Discord voice channel. PCM written to it is
// encoded to Opus as it arrives and streamed to the channel.
type Sink struct {
	pw   *io.PipeWriter
	done chan error

	closeOnce sync.Once
	closeErr  error
}

// NewSink joins channelID and starts streaming. Joining happens in the
// background; errors surface from Write or Close.
func NewSink(ctx context.Context, s *discordgo.Session, guildID, channelID string, cfg *config.AudioConfig) *Sink {
	pr, pw := io.Pipe()
	sink := &Sink{pw: pw, done: make(chan error, 1)}

	go func() {
		err := WithVoiceChannel(s, guildID, channelID, func(vc *discordgo.VoiceConnection) error {
			src := opus.Source{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
			frames, err := opus.Encode(ctx, cfg.FFmpegPath, pr, src, opus.DiscordTarget)
			if err != nil {
				return err
			}
			defer frames.Close()
			return opus.StreamToVoice(ctx, opus.NewFrameReader(frames), vc)
		})
		if err != nil {
			pr.CloseWithError(err)
		} else {
			// Discard anything written after the stream ended.
			_, _ = io.Copy(io.Discard, pr)
		}
		sink.done <- err
	}()

	return sink
}

func (s *Sink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

// Close ends the PCM input and waits until the last frame was sent.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		_ = s.pw.Close()
		if err := <-s.done; err != nil {
			s.closeErr = fmt.Errorf("failed to speak in voice channel: %w", err)
		}
	})
	return s.closeErr
}

var _ io.WriteCloser = (*Sink)(nil)

// SinkFactory speaks every response in the channel chosen by cfg. The
// channel is resolved once per response, so the bot follows its audience.
func SinkFactory(s *discordgo.Session, cfg *config.DiscordConfig, audioCfg *config.AudioConfig) audio.Factory {
	return func(ctx context.Context, _ audio.TurnInfo) (io.WriteCloser, error) {
		channelID, err := ResolveChannel(s, cfg.GuildID, cfg.ChannelID)
		if err != nil {
			return nil, err
		}
		return NewSink(ctx, s, cfg.GuildID, channelID, audioCfg), nil
	}
}
