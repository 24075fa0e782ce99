package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertGuildSettings creates or updates guild settings
func (r *Repository) UpsertGuildSettings(ctx context.Context, settings *GuildSettings) error {
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, announce_channel_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			announce_channel_id = excluded.announce_channel_id,
			updated_at = excluded.updated_at`,
		settings.GuildID, settings.AnnounceChannelID, settings.UpdatedAt.Unix(),
	)
	if err != nil {
		return unavailable("upsert guild settings", err)
	}
	return nil
}

// GetGuildSettings retrieves guild settings
func (r *Repository) GetGuildSettings(ctx context.Context, guildID string) (*GuildSettings, error) {
	settings := &GuildSettings{}
	var updated int64
	err := r.db.QueryRowContext(ctx,
		`SELECT guild_id, announce_channel_id, updated_at FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&settings.GuildID, &settings.AnnounceChannelID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get guild settings", err)
	}
	settings.UpdatedAt = time.Unix(updated, 0).UTC()
	return settings, nil
}
