// Package tier keeps persisted tier records in agreement with the tier roles
// members hold in a guild, and implements the operator commands that grant,
// revoke and inspect tiers.
package tier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/flor3z/tierbot/internal/storage"
)

var (
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleNotFound means the tier label has no grantable role in the guild
	ErrRoleNotFound = errors.New("tier role not found")
	ErrRoleNotHeld  = errors.New("tier role not held")
	ErrUnauthorized = errors.New("not allowed to manage tiers")
)

const (
	RegionUnknown   = "Unknown"
	UsernameUnknown = "unknown"
)

// Regions accepted by Assign
var Regions = []string{"AS", "NA", "EU"}

// NormalizeRegion maps free text onto a known region or RegionUnknown
func NormalizeRegion(region string) string {
	for _, r := range Regions {
		if strings.EqualFold(r, strings.TrimSpace(region)) {
			return r
		}
	}
	return RegionUnknown
}

// Store is the persistence the tier components need. Records are scoped to
// a guild; the same user may hold different tiers in different guilds.
type Store interface {
	UpsertTier(ctx context.Context, rec *storage.TierRecord) error
	GetTier(ctx context.Context, guildID, userID string) (*storage.TierRecord, error)
	DeleteTier(ctx context.Context, guildID, userID string) error
	ListTiers(ctx context.Context, guildID string) ([]*storage.TierRecord, error)
}

// memberKey is the lock key serializing writes for one member of one guild
func memberKey(guildID, userID string) string {
	return guildID + "/" + userID
}

// Clock returns the current time; tests pin it
type Clock func() time.Time

func today(now Clock) time.Time {
	t := now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
