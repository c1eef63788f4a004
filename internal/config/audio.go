package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// AudioConfig describes the PCM stream produced by the realtime API and the
// external binaries used to decode and play it. Samples are always s16le.
type AudioConfig struct {
	SampleRate int    `env:"AUDIO_SAMPLE_RATE, default=24000"`
	Channels   int    `env:"AUDIO_CHANNELS, default=1"`
	FFmpegPath string `env:"FFMPEG_PATH, default=ffmpeg"`
	FFplayPath string `env:"FFPLAY_PATH, default=ffplay"`
	Volume     int    `env:"AUDIO_VOLUME, default=80"`
}

func NewAudioConfigFromEnv() (*AudioConfig, error) {
	return NewAudioConfig(context.Background(), nil)
}

func NewAudioConfig(ctx context.Context, lookuper envconfig.Lookuper) (*AudioConfig, error) {
	var cfg AudioConfig
	if err := process(ctx, &cfg, lookuper); err != nil {
		return nil, err
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("AUDIO_SAMPLE_RATE must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("AUDIO_CHANNELS must be 1 or 2, got %d", cfg.Channels)
	}
	return &cfg, nil
}

// BytesPerSecond is the byte rate of the s16le stream.
func (c *AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * 2
}
