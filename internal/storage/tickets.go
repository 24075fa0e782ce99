package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const ticketColumns = `id, guild_id, user_id, category, channel_id, state, created_at, closed_at, closed_by`

// CreateTicket inserts an open ticket. A second open ticket for the same
// (guild, user, category) fails with ErrConflict.
func (r *Repository) CreateTicket(ctx context.Context, t *Ticket) error {
	if t.State == "" {
		t.State = TicketOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.GuildID, t.UserID, t.Category, t.ChannelID, string(t.State),
		t.CreatedAt.Unix(), unixOrZero(t.ClosedAt), t.ClosedBy,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrConflict
		}
		return unavailable("create ticket", err)
	}
	return nil
}

// GetOpenTicket finds the open ticket for a (guild, user, category) pair
func (r *Repository) GetOpenTicket(ctx context.Context, guildID, userID, category string) (*Ticket, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE guild_id = ? AND user_id = ? AND category = ? AND state = 'open'`,
		guildID, userID, category,
	)
	return ticketOrNotFound(row, "get open ticket")
}

// GetTicketByChannel finds the most recent ticket bound to a channel
func (r *Repository) GetTicketByChannel(ctx context.Context, channelID string) (*Ticket, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE channel_id = ? ORDER BY created_at DESC LIMIT 1`,
		channelID,
	)
	return ticketOrNotFound(row, "get ticket by channel")
}

// CloseTicket marks an open ticket closed. Closing an already closed or
// unknown ticket returns ErrNotFound.
func (r *Repository) CloseTicket(ctx context.Context, id, closedBy string, closedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET state = 'closed', closed_at = ?, closed_by = ? WHERE id = ? AND state = 'open'`,
		closedAt.Unix(), closedBy, id,
	)
	if err != nil {
		return unavailable("close ticket", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return unavailable("close ticket", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpenTickets returns the open tickets of a guild, oldest first
func (r *Repository) ListOpenTickets(ctx context.Context, guildID string) ([]*Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE guild_id = ? AND state = 'open' ORDER BY created_at`,
		guildID,
	)
	if err != nil {
		return nil, unavailable("list tickets", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, unavailable("list tickets", err)
		}
		tickets = append(tickets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("list tickets", err)
	}
	return tickets, nil
}

func ticketOrNotFound(row *sql.Row, op string) (*Ticket, error) {
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	return t, nil
}

func scanTicket(s scanner) (*Ticket, error) {
	t := &Ticket{}
	var state string
	var created, closed int64
	if err := s.Scan(&t.ID, &t.GuildID, &t.UserID, &t.Category, &t.ChannelID, &state, &created, &closed, &t.ClosedBy); err != nil {
		return nil, err
	}
	t.State = TicketState(state)
	t.CreatedAt = time.Unix(created, 0)
	if closed != 0 {
		t.ClosedAt = time.Unix(closed, 0)
	}
	return t, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
