// Package ticket provisions private per-user channels ("tickets") from a menu
// of categories and manages their lifecycle until they are closed.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flor3z/tierbot/internal/keylock"
	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/storage"
	"github.com/flor3z/tierbot/internal/tier"
)

var (
	ErrUnknownCategory = errors.New("unknown ticket category")
	ErrAccessDenied    = errors.New("access denied")
	ErrAlreadyOpen     = errors.New("ticket already open")
	ErrAlreadyClosed   = errors.New("ticket already closed")
	ErrTicketClosed    = errors.New("ticket is closed")
	ErrTicketNotFound  = errors.New("not a ticket channel")
	ErrOwnerRemoval    = errors.New("cannot remove the ticket owner")
)

// Store is the persistence the provisioner needs
type Store interface {
	CreateTicket(ctx context.Context, t *storage.Ticket) error
	GetOpenTicket(ctx context.Context, guildID, userID, category string) (*storage.Ticket, error)
	GetTicketByChannel(ctx context.Context, channelID string) (*storage.Ticket, error)
	CloseTicket(ctx context.Context, id, closedBy string, closedAt time.Time) error
	ListOpenTickets(ctx context.Context, guildID string) ([]*storage.Ticket, error)
}

// Provisioner creates and manages ticket channels
type Provisioner struct {
	store      Store
	registry   *Registry
	ranking    *tier.Ranking
	platform   platform.Platform
	staff      tier.Authorizer
	staffRoles []string
	locks      *keylock.Map
	now        func() time.Time
}

// NewProvisioner wires a provisioner. staff decides who may manage any
// ticket; members of staffRoles can see every ticket channel.
func NewProvisioner(store Store, registry *Registry, ranking *tier.Ranking, p platform.Platform, staff tier.Authorizer, staffRoles []string) *Provisioner {
	if staff == nil {
		staff = tier.AllowAll()
	}
	return &Provisioner{
		store:      store,
		registry:   registry,
		ranking:    ranking,
		platform:   p,
		staff:      staff,
		staffRoles: staffRoles,
		locks:      keylock.New(),
		now:        time.Now,
	}
}

// Registry returns the configured categories
func (p *Provisioner) Registry() *Registry {
	return p.registry
}

// ChannelName derives the channel name for a (user, category) pair
func ChannelName(kind Category, userID string) string {
	return fmt.Sprintf("%s-%s", kind, userID)
}

func pairKey(guildID, userID string, kind Category) string {
	return guildID + "/" + userID + "/" + string(kind)
}

// OnSelection handles a menu button press
func (p *Provisioner) OnSelection(ctx context.Context, guildID, userID, customID string) (*storage.Ticket, error) {
	kind, err := ParseCustomID(customID)
	if err != nil {
		return nil, err
	}
	return p.RequestTicket(ctx, guildID, userID, kind)
}

// RequestTicket opens a ticket for (userID, kind). If one is already open
// it is returned together with ErrAlreadyOpen.
func (p *Provisioner) RequestTicket(ctx context.Context, guildID, userID string, kind Category) (*storage.Ticket, error) {
	spec, err := p.registry.Get(kind)
	if err != nil {
		return nil, err
	}

	m, err := p.platform.Member(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, tier.ErrUserNotFound
		}
		return nil, err
	}
	if spec.MinTier != "" {
		highest, ok := p.ranking.Highest(m.RoleNames())
		if !ok || !p.ranking.AtLeast(highest, spec.MinTier) {
			return nil, fmt.Errorf("%w: %s requires %s or higher", ErrAccessDenied, spec.Label, spec.MinTier)
		}
	}

	unlock := p.locks.Lock(pairKey(guildID, userID, kind))
	defer unlock()

	existing, err := p.store.GetOpenTicket(ctx, guildID, userID, string(kind))
	switch {
	case err == nil:
		alive, err := p.platform.ChannelExists(ctx, existing.ChannelID)
		if err != nil {
			return nil, err
		}
		if alive {
			return existing, ErrAlreadyOpen
		}
		// channel deleted outside the bot; retire the stale ticket
		slog.Warn("Ticket channel vanished, closing stale ticket", "ticket", existing.ID, "channel", existing.ChannelID)
		if err := p.store.CloseTicket(ctx, existing.ID, "", p.now()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	parentID, err := p.platform.EnsureCategory(ctx, guildID, spec.Group)
	if err != nil {
		return nil, err
	}

	allowed := []platform.Target{platform.UserTarget(userID)}
	staffTargets, err := p.staffTargets(ctx, guildID)
	if err != nil {
		return nil, err
	}
	allowed = append(allowed, staffTargets...)

	channelID, err := p.platform.CreateChannel(ctx, guildID, platform.ChannelSpec{
		Name:     ChannelName(kind, userID),
		ParentID: parentID,
		Topic:    fmt.Sprintf("%s ticket for %s", spec.Label, m.DisplayName),
		Allowed:  allowed,
	})
	if err != nil {
		return nil, err
	}

	t := &storage.Ticket{
		ID:        uuid.NewString(),
		GuildID:   guildID,
		UserID:    userID,
		Category:  string(kind),
		ChannelID: channelID,
		State:     storage.TicketOpen,
		CreatedAt: p.now(),
	}
	if err := p.store.CreateTicket(ctx, t); err != nil {
		if delErr := p.platform.DeleteChannel(ctx, channelID); delErr != nil {
			slog.Error("Failed to clean up ticket channel", "channel", channelID, "error", delErr)
		}
		return nil, fmt.Errorf("record ticket: %w", err)
	}

	slog.Info("Ticket opened", "ticket", t.ID, "user", userID, "category", kind, "channel", channelID)

	welcome := fmt.Sprintf("Ticket created for %s. Please wait for a staff member.", spec.Label)
	if err := p.platform.SendMessage(ctx, channelID, welcome); err != nil {
		slog.Warn("Failed to post ticket welcome", "channel", channelID, "error", err)
	}

	return t, nil
}

func (p *Provisioner) staffTargets(ctx context.Context, guildID string) ([]platform.Target, error) {
	if len(p.staffRoles) == 0 {
		return nil, nil
	}
	roles, err := p.platform.Roles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	var out []platform.Target
	for _, name := range p.staffRoles {
		r, ok := platform.FindRole(roles, name)
		if !ok {
			slog.Warn("Staff role missing from guild", "role", name, "guild", guildID)
			continue
		}
		out = append(out, platform.RoleTarget(r.ID))
	}
	return out, nil
}

// openTicket loads the ticket bound to channelID and checks requestedBy may manage it
func (p *Provisioner) openTicket(ctx context.Context, channelID, requestedBy string) (*storage.Ticket, error) {
	t, err := p.store.GetTicketByChannel(ctx, channelID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := p.authorize(ctx, t, requestedBy); err != nil {
		return nil, err
	}
	if t.State == storage.TicketClosed {
		return t, ErrTicketClosed
	}
	return t, nil
}

func (p *Provisioner) authorize(ctx context.Context, t *storage.Ticket, requestedBy string) error {
	if requestedBy == t.UserID {
		return nil
	}
	ok, err := p.staff.Allowed(ctx, t.GuildID, requestedBy)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: only the owner or staff may manage this ticket", ErrAccessDenied)
	}
	return nil
}

// AddParticipant lets userID see and write in the ticket channel
func (p *Provisioner) AddParticipant(ctx context.Context, channelID, userID, requestedBy string) error {
	if _, err := p.openTicket(ctx, channelID, requestedBy); err != nil {
		return err
	}
	if err := p.platform.Allow(ctx, channelID, platform.UserTarget(userID)); err != nil {
		return err
	}
	slog.Info("Ticket participant added", "channel", channelID, "user", userID, "by", requestedBy)
	return nil
}

// RemoveParticipant revokes userID's access to the ticket channel
func (p *Provisioner) RemoveParticipant(ctx context.Context, channelID, userID, requestedBy string) error {
	t, err := p.openTicket(ctx, channelID, requestedBy)
	if err != nil {
		return err
	}
	if userID == t.UserID {
		return ErrOwnerRemoval
	}
	if err := p.platform.Revoke(ctx, channelID, platform.UserTarget(userID)); err != nil {
		return err
	}
	slog.Info("Ticket participant removed", "channel", channelID, "user", userID, "by", requestedBy)
	return nil
}

// CloseTicket deletes the ticket channel and marks the ticket closed. A
// second close of the same ticket returns ErrAlreadyClosed.
func (p *Provisioner) CloseTicket(ctx context.Context, channelID, requestedBy string) (*storage.Ticket, error) {
	t, err := p.store.GetTicketByChannel(ctx, channelID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(pairKey(t.GuildID, t.UserID, Category(t.Category)))
	defer unlock()

	t, err = p.openTicket(ctx, channelID, requestedBy)
	if errors.Is(err, ErrTicketClosed) {
		return t, ErrAlreadyClosed
	}
	if err != nil {
		return nil, err
	}

	if err := p.platform.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, platform.ErrNotFound) {
		return nil, err
	}

	closedAt := p.now()
	if err := p.store.CloseTicket(ctx, t.ID, requestedBy, closedAt); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return t, ErrAlreadyClosed
		}
		return nil, err
	}
	t.State = storage.TicketClosed
	t.ClosedAt = closedAt
	t.ClosedBy = requestedBy

	slog.Info("Ticket closed", "ticket", t.ID, "channel", channelID, "by", requestedBy)
	return t, nil
}

// ListOpen returns the open tickets of a guild
func (p *Provisioner) ListOpen(ctx context.Context, guildID string) ([]*storage.Ticket, error) {
	return p.store.ListOpenTickets(ctx, guildID)
}
