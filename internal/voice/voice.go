package voice

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/glizzus/talkback/internal/util"
)

// NewSession creates a Discord session that can join voice channels.
// The caller opens and closes it.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord session is ready", "username", r.User.Username, "userID", r.User.ID)
	})
	return s, nil
}

// MaxAttendedChannel returns the voice channel with the most connected
// members according to voiceStates. Ties go to the earlier channel.
// This returns nil if there is no voice channel.
func MaxAttendedChannel(channels []*discordgo.Channel, voiceStates []*discordgo.VoiceState) *discordgo.Channel {
	attendance := make(map[string]int)
	for _, vs := range voiceStates {
		attendance[vs.ChannelID]++
	}

	var maxAttendedChannel *discordgo.Channel
	maxAttended := -1

	for _, channel := range channels {
		if channel.Type != discordgo.ChannelTypeGuildVoice {
			continue
		}

		if attendance[channel.ID] > maxAttended {
			maxAttendedChannel = channel
			maxAttended = attendance[channel.ID]
		}
	}

	return maxAttendedChannel
}

// ChannelByID returns the voice channel with the given id.
func ChannelByID(channels []*discordgo.Channel, channelID string) (*discordgo.Channel, bool) {
	return util.FindFirst(channels, func(c *discordgo.Channel) bool {
		return c.ID == channelID && c.Type == discordgo.ChannelTypeGuildVoice
	})
}

// ResolveChannel picks the channel responses are spoken in: channelID when
// set, otherwise the most attended voice channel of the guild.
func ResolveChannel(s *discordgo.Session, guildID, channelID string) (string, error) {
	channels, err := s.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("failed to get guild channels: %w", err)
	}

	if channelID != "" {
		if _, ok := ChannelByID(channels, channelID); !ok {
			return "", fmt.Errorf("voice channel %s not found in guild %s", channelID, guildID)
		}
		return channelID, nil
	}

	var voiceStates []*discordgo.VoiceState
	if guild, err := s.State.Guild(guildID); err == nil {
		voiceStates = guild.VoiceStates
	}
	channel := MaxAttendedChannel(channels, voiceStates)
	if channel == nil {
		return "", fmt.Errorf("guild %s has no voice channel", guildID)
	}
	return channel.ID, nil
}

type VoiceChannelFunc func(*discordgo.VoiceConnection) error

// WithVoiceChannel joins a voice channel, marks the bot as speaking and
// executes callback. It leaves the channel afterwards.
func WithVoiceChannel(s *discordgo.Session, guildID, channelID string, callback VoiceChannelFunc) error {
	slog.Debug("joining voice channel", "guildID", guildID, "channelID", channelID)
	voiceConn, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("unable to join the voice channel: %w", err)
	}

	if err := voiceConn.Speaking(true); err != nil {
		if derr := voiceConn.Disconnect(); derr != nil {
			slog.Error("failed to disconnect", "error", derr)
		}
		return fmt.Errorf("error setting speaking state to 'true': %w", err)
	}
	defer func() {
		if err := voiceConn.Speaking(false); err != nil {
			slog.Error("failed to stop speaking", "error", err)
		}

		if err := voiceConn.Disconnect(); err != nil {
			slog.Error("failed to disconnect", "error", err)
		}
	}()

	if err = callback(voiceConn); err != nil {
		return fmt.Errorf("error executing callback: %w", err)
	}

	return nil
}
