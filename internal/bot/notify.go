package bot

import (
	"context"
	"errors"

	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/storage"
	"github.com/flor3z/tierbot/internal/tier"
)

// SettingsStore reads per-guild settings
type SettingsStore interface {
	GetGuildSettings(ctx context.Context, guildID string) (*storage.GuildSettings, error)
}

// announcer posts tier changes to the announce channel of the event's guild
type announcer struct {
	platform platform.Platform
	settings SettingsStore
	// fallback is used by guilds that never ran /setchannel
	fallback string
}

func newAnnouncer(p platform.Platform, settings SettingsStore, fallback string) *announcer {
	return &announcer{platform: p, settings: settings, fallback: fallback}
}

// channelFor resolves where events of guildID are posted; empty means nowhere
func (a *announcer) channelFor(ctx context.Context, guildID string) (string, error) {
	s, err := a.settings.GetGuildSettings(ctx, guildID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return a.fallback, nil
	case err != nil:
		return "", err
	case s.AnnounceChannelID == "":
		return a.fallback, nil
	default:
		return s.AnnounceChannelID, nil
	}
}

func (a *announcer) Notify(ctx context.Context, ev tier.Event) error {
	channelID, err := a.channelFor(ctx, ev.GuildID)
	if err != nil {
		return err
	}
	if channelID == "" {
		return nil
	}
	return a.platform.SendMessage(ctx, channelID, formatEvent(&ev))
}
