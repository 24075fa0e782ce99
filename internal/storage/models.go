package storage

import "time"

// DateLayout is the format assigned dates are persisted and displayed in
const DateLayout = "2006-01-02"

// TierRecord is the persisted tier of a single guild member
type TierRecord struct {
	GuildID      string
	UserID       string
	DiscordName  string
	DisplayName  string
	Username     string // in-game name, operator supplied
	Region       string
	Tier         string
	AssignedDate time.Time
}

// Date returns the assigned date as stored
func (r *TierRecord) Date() string {
	return r.AssignedDate.UTC().Format(DateLayout)
}

// TicketState is the lifecycle state of a ticket channel
type TicketState string

const (
	TicketOpen   TicketState = "open"
	TicketClosed TicketState = "closed"
)

// Ticket is a private channel scoped to one (user, category) pair in a guild
type Ticket struct {
	ID        string
	GuildID   string
	UserID    string
	Category  string
	ChannelID string
	State     TicketState
	CreatedAt time.Time
	ClosedAt  time.Time
	ClosedBy  string
}

// GuildSettings stores per-server configuration
type GuildSettings struct {
	GuildID           string
	AnnounceChannelID string
	UpdatedAt         time.Time
}
