package tier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/storage"
)

// AssignRequest carries the arguments of an assign command
type AssignRequest struct {
	GuildID     string
	UserID      string
	Tier        string
	Region      string
	Username    string
	RequestedBy string
}

// RemoveRequest carries the arguments of a remove command
type RemoveRequest struct {
	GuildID     string
	UserID      string
	Tier        string
	RequestedBy string
}

// Result describes the effect of a mutating command
type Result struct {
	// Record is the stored record afterwards, nil when it was deleted.
	Record  *storage.TierRecord
	Removed []string
	Event   *Event
}

// Handler implements the tier commands on top of the store, the ranking and
// the platform's role capability.
type Handler struct {
	store      Store
	ranking    *Ranking
	platform   platform.Platform
	reconciler *Reconciler
	auth       Authorizer
	notifier   Notifier
}

// NewHandler wires a handler. A nil auth allows everyone; a nil notifier
// drops events.
func NewHandler(store Store, ranking *Ranking, p platform.Platform, rec *Reconciler, auth Authorizer, notifier Notifier) *Handler {
	if auth == nil {
		auth = AllowAll()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Handler{
		store:      store,
		ranking:    ranking,
		platform:   p,
		reconciler: rec,
		auth:       auth,
		notifier:   notifier,
	}
}

// Ranking returns the ladder the handler validates against
func (h *Handler) Ranking() *Ranking {
	return h.ranking
}

func (h *Handler) authorize(ctx context.Context, guildID, userID string) error {
	ok, err := h.auth.Allowed(ctx, guildID, userID)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// tierRole resolves label to its guild role
func (h *Handler) tierRole(ctx context.Context, guildID, label string) (platform.Role, error) {
	if !h.ranking.Contains(label) {
		return platform.Role{}, fmt.Errorf("%w: %s is not a tier", ErrRoleNotFound, label)
	}
	roles, err := h.platform.Roles(ctx, guildID)
	if err != nil {
		return platform.Role{}, err
	}
	role, ok := platform.FindRole(roles, label)
	if !ok {
		return platform.Role{}, fmt.Errorf("%w: no %s role in this server", ErrRoleNotFound, label)
	}
	return role, nil
}

func (h *Handler) member(ctx context.Context, guildID, userID string) (*platform.Member, error) {
	m, err := h.platform.Member(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return m, nil
}

func (h *Handler) notify(ctx context.Context, ev *Event) {
	if err := h.notifier.Notify(ctx, *ev); err != nil {
		slog.Warn("Failed to publish tier event", "kind", ev.Kind, "user", ev.Target, "error", err)
	}
}

// Assign grants the tier role and records the supplied details. The store is
// written only after the platform confirmed the grant.
func (h *Handler) Assign(ctx context.Context, req AssignRequest) (*Result, error) {
	if err := h.authorize(ctx, req.GuildID, req.RequestedBy); err != nil {
		return nil, err
	}
	role, err := h.tierRole(ctx, req.GuildID, req.Tier)
	if err != nil {
		return nil, err
	}
	m, err := h.member(ctx, req.GuildID, req.UserID)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = UsernameUnknown
	}
	rec := &storage.TierRecord{
		GuildID:      req.GuildID,
		UserID:       m.UserID,
		DiscordName:  m.Username,
		DisplayName:  m.DisplayName,
		Username:     username,
		Region:       NormalizeRegion(req.Region),
		Tier:         req.Tier,
		AssignedDate: today(h.reconciler.now),
	}

	unlock := h.reconciler.locks.Lock(memberKey(req.GuildID, m.UserID))
	err = h.platform.AddRole(ctx, req.GuildID, m.UserID, role.ID)
	if err == nil {
		err = h.store.UpsertTier(ctx, rec)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	slog.Info("Tier assigned", "user", m.UserID, "tier", rec.Tier, "by", req.RequestedBy)

	ev := &Event{
		Kind:        EventAssigned,
		GuildID:     req.GuildID,
		RequestedBy: req.RequestedBy,
		Target:      m.UserID,
		TargetName:  m.DisplayName,
		Tier:        rec.Tier,
		Region:      rec.Region,
		Username:    rec.Username,
		Date:        rec.AssignedDate,
	}
	h.notify(ctx, ev)

	return &Result{Record: rec, Event: ev}, nil
}

// Remove revokes one tier role. When it was the stored tier, the record
// falls back to the next highest tier still held, or is deleted.
func (h *Handler) Remove(ctx context.Context, req RemoveRequest) (*Result, error) {
	if err := h.authorize(ctx, req.GuildID, req.RequestedBy); err != nil {
		return nil, err
	}
	role, err := h.tierRole(ctx, req.GuildID, req.Tier)
	if err != nil {
		return nil, err
	}
	m, err := h.member(ctx, req.GuildID, req.UserID)
	if err != nil {
		return nil, err
	}
	if !m.HasRole(req.Tier) {
		return nil, fmt.Errorf("%w: member does not hold %s", ErrRoleNotHeld, req.Tier)
	}

	var remaining []string
	for _, name := range m.RoleNames() {
		if name != req.Tier {
			remaining = append(remaining, name)
		}
	}

	unlock := h.reconciler.locks.Lock(memberKey(req.GuildID, m.UserID))
	rec, err := h.revoke(ctx, req.GuildID, m, role, remaining)
	unlock()
	if err != nil {
		return nil, err
	}

	slog.Info("Tier removed", "user", m.UserID, "tier", req.Tier, "by", req.RequestedBy)

	ev := &Event{
		Kind:        EventRemoved,
		GuildID:     req.GuildID,
		RequestedBy: req.RequestedBy,
		Target:      m.UserID,
		TargetName:  m.DisplayName,
		Tier:        req.Tier,
		Region:      RegionUnknown,
		Username:    UsernameUnknown,
		Date:        today(h.reconciler.now),
	}
	if rec != nil {
		ev.Region = rec.Region
		ev.Username = rec.Username
	}
	h.notify(ctx, ev)

	return &Result{Record: rec, Removed: []string{req.Tier}, Event: ev}, nil
}

// revoke removes the role and recomputes the record; the caller holds the user lock
func (h *Handler) revoke(ctx context.Context, guildID string, m *platform.Member, role platform.Role, remaining []string) (*storage.TierRecord, error) {
	if err := h.platform.RemoveRole(ctx, guildID, m.UserID, role.ID); err != nil {
		return nil, err
	}

	existing, err := h.store.GetTier(ctx, guildID, m.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.Tier != role.Name {
		return existing, nil
	}

	next, ok := h.ranking.Highest(remaining)
	if !ok {
		return nil, h.store.DeleteTier(ctx, guildID, m.UserID)
	}
	existing.Tier = next
	existing.AssignedDate = today(h.reconciler.now)
	if err := h.store.UpsertTier(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// RemoveAll revokes every tier role the member holds and deletes the record
func (h *Handler) RemoveAll(ctx context.Context, guildID, userID, requestedBy string) (*Result, error) {
	if err := h.authorize(ctx, guildID, requestedBy); err != nil {
		return nil, err
	}
	m, err := h.member(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	var held []platform.Role
	for _, r := range m.Roles {
		if h.ranking.Contains(r.Name) {
			held = append(held, r)
		}
	}
	if len(held) == 0 {
		return nil, fmt.Errorf("%w: member holds no tier", ErrRoleNotHeld)
	}

	unlock := h.reconciler.locks.Lock(memberKey(guildID, m.UserID))
	defer unlock()

	removed := make([]string, 0, len(held))
	for _, r := range held {
		if err := h.platform.RemoveRole(ctx, guildID, m.UserID, r.ID); err != nil {
			return nil, fmt.Errorf("revoke %s after removing %v: %w", r.Name, removed, err)
		}
		removed = append(removed, r.Name)
	}
	if err := h.store.DeleteTier(ctx, guildID, m.UserID); err != nil {
		return nil, err
	}

	slog.Info("All tiers removed", "user", m.UserID, "tiers", removed, "by", requestedBy)

	sort.Slice(removed, func(i, j int) bool { return h.ranking.Less(removed[i], removed[j]) })
	ev := &Event{
		Kind:        EventRemoved,
		GuildID:     guildID,
		RequestedBy: requestedBy,
		Target:      m.UserID,
		TargetName:  m.DisplayName,
		Tier:        strings.Join(removed, ", "),
		Region:      RegionUnknown,
		Username:    UsernameUnknown,
		Date:        today(h.reconciler.now),
	}
	h.notify(ctx, ev)

	return &Result{Removed: removed, Event: ev}, nil
}

// Query resyncs the member and returns the stored record, nil when the
// member has no tier. A platform failure during the resync is logged and the
// stored record served as is.
func (h *Handler) Query(ctx context.Context, guildID, userID string) (*storage.TierRecord, error) {
	if err := h.reconciler.ReconcileUser(ctx, guildID, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		slog.Warn("Resync before query failed", "user", userID, "error", err)
	}

	rec, err := h.store.GetTier(ctx, guildID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListAll resyncs the whole guild and returns its records, most senior first
func (h *Handler) ListAll(ctx context.Context, guildID string) ([]*storage.TierRecord, error) {
	if _, err := h.reconciler.ReconcileGuild(ctx, guildID); err != nil {
		slog.Warn("Resync before listing failed", "guild", guildID, "error", err)
	}

	records, err := h.store.ListTiers(ctx, guildID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Tier != b.Tier {
			return h.ranking.Less(a.Tier, b.Tier)
		}
		return strings.ToLower(a.DiscordName) < strings.ToLower(b.DiscordName)
	})
	return records, nil
}
