package tier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flor3z/tierbot/internal/keylock"
	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/storage"
)

// Outcome is what reconciling one member did to the store
type Outcome int

const (
	Unchanged Outcome = iota
	Updated
	Deleted
	Failed
)

// Report summarizes a reconciliation pass
type Report struct {
	Updated   int
	Deleted   int
	Unchanged int
	Failed    int
}

func (r *Report) add(o Outcome) {
	switch o {
	case Updated:
		r.Updated++
	case Deleted:
		r.Deleted++
	case Unchanged:
		r.Unchanged++
	case Failed:
		r.Failed++
	}
}

// Reconciler rewrites stored tier records from live role memberships
type Reconciler struct {
	store    Store
	ranking  *Ranking
	platform platform.Platform
	locks    *keylock.Map
	now      Clock
}

// NewReconciler creates a reconciler over store
func NewReconciler(store Store, ranking *Ranking, p platform.Platform) *Reconciler {
	return &Reconciler{
		store:    store,
		ranking:  ranking,
		platform: p,
		locks:    keylock.New(),
		now:      time.Now,
	}
}

// Reconcile brings the store in line with roster. A failure for one member
// is logged and counted; the rest of the roster is still processed.
func (r *Reconciler) Reconcile(ctx context.Context, roster []*platform.Member) Report {
	var report Report
	for _, m := range roster {
		if ctx.Err() != nil {
			break
		}
		outcome, err := r.ReconcileMember(ctx, m)
		if err != nil {
			slog.Error("Failed to reconcile member", "user", m.UserID, "error", err)
		}
		report.add(outcome)
	}
	return report
}

// OnMembershipChanged reconciles a member whose roles just changed
func (r *Reconciler) OnMembershipChanged(ctx context.Context, m *platform.Member) error {
	outcome, err := r.ReconcileMember(ctx, m)
	if err != nil {
		return err
	}
	if outcome != Unchanged {
		slog.Info("Tier record resynced", "user", m.UserID, "outcome", outcome.String())
	}
	return nil
}

// ReconcileGuild fetches the guild roster and reconciles every member
func (r *Reconciler) ReconcileGuild(ctx context.Context, guildID string) (Report, error) {
	roster, err := r.platform.Members(ctx, guildID)
	if err != nil {
		return Report{}, fmt.Errorf("fetch roster: %w", err)
	}
	report := r.Reconcile(ctx, roster)
	slog.Debug("Reconciled guild", "guild", guildID, "members", len(roster),
		"updated", report.Updated, "deleted", report.Deleted, "failed", report.Failed)
	return report, nil
}

// ReconcileUser fetches one member and reconciles it
func (r *Reconciler) ReconcileUser(ctx context.Context, guildID, userID string) error {
	m, err := r.platform.Member(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	_, err = r.ReconcileMember(ctx, m)
	return err
}

// ReconcileMember applies one member's roles to the record stored for
// m.GuildID; records in other guilds are never touched. The record is
// rewritten only when the tier or names differ, so repeated passes leave the
// store untouched.
func (r *Reconciler) ReconcileMember(ctx context.Context, m *platform.Member) (Outcome, error) {
	unlock := r.locks.Lock(memberKey(m.GuildID, m.UserID))
	defer unlock()

	existing, err := r.store.GetTier(ctx, m.GuildID, m.UserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Failed, err
	}

	highest, ok := r.ranking.Highest(m.RoleNames())
	if !ok {
		if existing == nil {
			return Unchanged, nil
		}
		if err := r.store.DeleteTier(ctx, m.GuildID, m.UserID); err != nil {
			return Failed, err
		}
		return Deleted, nil
	}

	rec := &storage.TierRecord{
		GuildID:      m.GuildID,
		UserID:       m.UserID,
		DiscordName:  m.Username,
		DisplayName:  m.DisplayName,
		Username:     UsernameUnknown,
		Region:       RegionUnknown,
		Tier:         highest,
		AssignedDate: today(r.now),
	}
	if existing != nil {
		if existing.Tier == rec.Tier && existing.DiscordName == rec.DiscordName && existing.DisplayName == rec.DisplayName {
			return Unchanged, nil
		}
		rec.Username = existing.Username
		rec.Region = existing.Region
	}

	if err := r.store.UpsertTier(ctx, rec); err != nil {
		return Failed, err
	}
	return Updated, nil
}

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case Failed:
		return "failed"
	default:
		return "unchanged"
	}
}
