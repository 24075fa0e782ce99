package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrUnavailable wraps every database failure
	ErrUnavailable = errors.New("storage unavailable")
	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("conflicting row")
)

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tiers (
			guild_id VARCHAR(20) NOT NULL,
			user_id VARCHAR(20) NOT NULL,
			discord_name TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			region VARCHAR(10) NOT NULL DEFAULT 'Unknown',
			tier VARCHAR(20) NOT NULL,
			assigned_date VARCHAR(10) NOT NULL,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id VARCHAR(36) PRIMARY KEY,
			guild_id VARCHAR(20) NOT NULL,
			user_id VARCHAR(20) NOT NULL,
			category VARCHAR(20) NOT NULL,
			channel_id VARCHAR(20) NOT NULL,
			state VARCHAR(10) NOT NULL DEFAULT 'open',
			created_at INTEGER NOT NULL,
			closed_at INTEGER NOT NULL DEFAULT 0,
			closed_by VARCHAR(20) NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_open_pair
			ON tickets(guild_id, user_id, category) WHERE state = 'open'`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_channel ON tickets(channel_id)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(20) PRIMARY KEY,
			announce_channel_id VARCHAR(20) NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Tier operations

const tierColumns = `guild_id, user_id, discord_name, display_name, username, region, tier, assigned_date`

// UpsertTier inserts or replaces the record for (rec.GuildID, rec.UserID)
func (r *Repository) UpsertTier(ctx context.Context, rec *TierRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tiers (`+tierColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id, user_id) DO UPDATE SET
			discord_name = excluded.discord_name,
			display_name = excluded.display_name,
			username = excluded.username,
			region = excluded.region,
			tier = excluded.tier,
			assigned_date = excluded.assigned_date`,
		rec.GuildID, rec.UserID, rec.DiscordName, rec.DisplayName, rec.Username, rec.Region, rec.Tier, rec.Date(),
	)
	if err != nil {
		return unavailable("upsert tier", err)
	}
	return nil
}

// GetTier finds the record for a user in a guild
func (r *Repository) GetTier(ctx context.Context, guildID, userID string) (*TierRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tierColumns+` FROM tiers WHERE guild_id = ? AND user_id = ?`,
		guildID, userID,
	)
	rec, err := scanTier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get tier", err)
	}
	return rec, nil
}

// DeleteTier removes the record for a user in a guild. Deleting a missing record is not an error.
func (r *Repository) DeleteTier(ctx context.Context, guildID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tiers WHERE guild_id = ? AND user_id = ?`, guildID, userID); err != nil {
		return unavailable("delete tier", err)
	}
	return nil
}

// ListTiers returns every record stored for a guild
func (r *Repository) ListTiers(ctx context.Context, guildID string) ([]*TierRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tierColumns+` FROM tiers WHERE guild_id = ?`,
		guildID,
	)
	if err != nil {
		return nil, unavailable("list tiers", err)
	}
	defer rows.Close()

	var records []*TierRecord
	for rows.Next() {
		rec, err := scanTier(rows)
		if err != nil {
			return nil, unavailable("list tiers", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("list tiers", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTier(s scanner) (*TierRecord, error) {
	rec := &TierRecord{}
	var date string
	if err := s.Scan(&rec.GuildID, &rec.UserID, &rec.DiscordName, &rec.DisplayName, &rec.Username, &rec.Region, &rec.Tier, &date); err != nil {
		return nil, err
	}
	assigned, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("bad assigned_date %q for %s: %w", date, rec.UserID, err)
	}
	rec.AssignedDate = assigned
	return rec, nil
}
