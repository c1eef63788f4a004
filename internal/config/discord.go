package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// DiscordConfig selects the voice channel that receives spoken responses.
// When ChannelID is empty the most attended voice channel of the guild is used.
type DiscordConfig struct {
	Token     string `env:"DISCORD_TOKEN, required"`
	GuildID   string `env:"DISCORD_GUILD_ID, required"`
	ChannelID string `env:"DISCORD_CHANNEL_ID"`
}

func NewDiscordConfigFromEnv() (*DiscordConfig, error) {
	return NewDiscordConfig(context.Background(), nil)
}

func NewDiscordConfig(ctx context.Context, lookuper envconfig.Lookuper) (*DiscordConfig, error) {
	var cfg DiscordConfig
	if err := process(ctx, &cfg, lookuper); err != nil {
		return nil, err
	}
	return &cfg, nil
}
