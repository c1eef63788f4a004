package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type RealtimeConfig struct {
	APIKey         string        `env:"OPENAI_API_KEY, required"`
	URL            string        `env:"OPENAI_REALTIME_URL, default=wss://api.openai.com/v1/realtime"`
	Model          string        `env:"OPENAI_REALTIME_MODEL, default=gpt-4o-realtime-preview-2024-10-01"`
	Beta           string        `env:"OPENAI_BETA, default=realtime=v1"`
	Voice          string        `env:"REALTIME_VOICE, default=alloy"`
	Instructions   string        `env:"REALTIME_INSTRUCTIONS, default=Please assist the user."`
	ConnectTimeout time.Duration `env:"REALTIME_CONNECT_TIMEOUT, default=15s"`
}

func NewRealtimeConfigFromEnv() (*RealtimeConfig, error) {
	return NewRealtimeConfig(context.Background(), nil)
}

// NewRealtimeConfig reads the realtime settings through lookuper.
// A nil lookuper reads the process environment.
func NewRealtimeConfig(ctx context.Context, lookuper envconfig.Lookuper) (*RealtimeConfig, error) {
	var cfg RealtimeConfig
	if err := process(ctx, &cfg, lookuper); err != nil {
		return nil, err
	}
	if _, err := cfg.Endpoint(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Endpoint returns the WebSocket URL with the model query parameter applied.
// A model already present in OPENAI_REALTIME_URL wins.
func (c *RealtimeConfig) Endpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid OPENAI_REALTIME_URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid OPENAI_REALTIME_URL: scheme must be ws or wss, got %q", u.Scheme)
	}
	q := u.Query()
	if q.Get("model") == "" && c.Model != "" {
		q.Set("model", c.Model)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
