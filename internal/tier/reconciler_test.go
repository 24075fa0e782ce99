package tier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/storage"
)

func member(id string, roles ...string) *platform.Member {
	m := &platform.Member{GuildID: guildID, UserID: id, Username: "user" + id, DisplayName: "User " + id}
	for _, r := range roles {
		m.Roles = append(m.Roles, platform.Role{Name: r})
	}
	return m
}

func TestReconcileCreatesRecordWithSentinels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.reconciler.Reconcile(ctx, []*platform.Member{member("1", "Staff", "LT2", "HT4")})
	assert.Equal(t, Report{Updated: 1}, report)

	rec := f.get(t, "1")
	require.NotNil(t, rec)
	assert.Equal(t, "LT2", rec.Tier)
	assert.Equal(t, RegionUnknown, rec.Region)
	assert.Equal(t, UsernameUnknown, rec.Username)
	assert.Equal(t, "user1", rec.DiscordName)
	assert.Equal(t, "User 1", rec.DisplayName)
	assert.Equal(t, "2026-10-17", rec.Date())
}

func TestReconcilePreservesOperatorFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.UpsertTier(ctx, &storage.TierRecord{
		GuildID:      guildID,
		UserID:       "1",
		DiscordName:  "user1",
		DisplayName:  "User 1",
		Username:     "player1",
		Region:       "EU",
		Tier:         "HT3",
		AssignedDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}))

	f.reconciler.Reconcile(ctx, []*platform.Member{member("1", "HT2")})

	rec := f.get(t, "1")
	require.NotNil(t, rec)
	assert.Equal(t, "HT2", rec.Tier)
	assert.Equal(t, "player1", rec.Username)
	assert.Equal(t, "EU", rec.Region)
	assert.Equal(t, "2026-10-17", rec.Date())
}

func TestReconcileDeletesOnZeroTiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.reconciler.Reconcile(ctx, []*platform.Member{member("1", "HT1")})
	require.NotNil(t, f.get(t, "1"))

	report := f.reconciler.Reconcile(ctx, []*platform.Member{member("1", "Staff")})
	assert.Equal(t, 1, report.Deleted)
	assert.Nil(t, f.get(t, "1"))

	// nothing left to delete
	report = f.reconciler.Reconcile(ctx, []*platform.Member{member("1")})
	assert.Equal(t, Report{Unchanged: 1}, report)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roster := []*platform.Member{
		member("1", "HT1"),
		member("2", "LT5", "LT3"),
		member("3"),
		member("4", "Staff"),
	}

	f.reconciler.Reconcile(ctx, roster)
	first, err := f.repo.ListTiers(ctx, guildID)
	require.NoError(t, err)

	// a later day must not rewrite unchanged rows
	f.reconciler.now = func() time.Time { return fixedNow.Add(48 * time.Hour) }
	report := f.reconciler.Reconcile(ctx, roster)
	assert.Equal(t, Report{Unchanged: 4}, report)

	second, err := f.repo.ListTiers(ctx, guildID)
	require.NoError(t, err)
	assert.ElementsMatch(t, first, second)
	assert.Len(t, second, 2)
}

type flakyStore struct {
	Store
	failFor string
}

func (s *flakyStore) GetTier(ctx context.Context, guildID, userID string) (*storage.TierRecord, error) {
	if userID == s.failFor {
		return nil, errors.Join(storage.ErrUnavailable, errors.New("disk on fire"))
	}
	return s.Store.GetTier(ctx, guildID, userID)
}

func TestReconcileContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := NewReconciler(&flakyStore{Store: f.repo, failFor: "2"}, DefaultRanking(), f.platform)
	report := rec.Reconcile(ctx, []*platform.Member{
		member("1", "HT1"),
		member("2", "HT2"),
		member("3", "HT3"),
	})

	assert.Equal(t, Report{Updated: 2, Failed: 1}, report)
	assert.NotNil(t, f.get(t, "1"))
	assert.Nil(t, f.get(t, "2"))
	assert.NotNil(t, f.get(t, "3"))
}

func TestReconcileGuildUsesPlatformRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.platform.AddMember("1", "one", "HT5", "LT1")
	f.platform.AddMember("2", "two")

	report, err := f.reconciler.ReconcileGuild(ctx, guildID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, "LT1", f.get(t, "1").Tier)

	f.platform.Fail("members", platform.ErrRateLimited)
	_, err = f.reconciler.ReconcileGuild(ctx, guildID)
	assert.ErrorIs(t, err, platform.ErrRateLimited)
	assert.ErrorIs(t, err, platform.ErrUnavailable)
}

func TestReconcileUserUnknownMember(t *testing.T) {
	f := newFixture(t)
	err := f.reconciler.ReconcileUser(context.Background(), guildID, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestOnMembershipChanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reconciler.OnMembershipChanged(ctx, member("1", "HT3")))
	assert.Equal(t, "HT3", f.get(t, "1").Tier)

	require.NoError(t, f.reconciler.OnMembershipChanged(ctx, member("1")))
	assert.Nil(t, f.get(t, "1"))
}

func TestConcurrentReconcileAndWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.reconciler.Reconcile(ctx, []*platform.Member{member("1", "HT2"), member("2", "LT4")})
		}()
		go func() {
			defer wg.Done()
			_, _ = f.reconciler.ReconcileMember(ctx, member("1", "HT1"))
		}()
	}
	wg.Wait()

	rec := f.get(t, "1")
	require.NotNil(t, rec)
	assert.Contains(t, []string{"HT1", "HT2"}, rec.Tier)
	assert.Equal(t, "LT4", f.get(t, "2").Tier)
}

func TestReconcileKeepsGuildsApart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.platform.AddMember("u1", "someone")

	_, err := f.handler.Assign(ctx, AssignRequest{
		GuildID: guildID, UserID: "u1", Tier: "HT1", Region: "NA", Username: "player1", RequestedBy: "admin",
	})
	require.NoError(t, err)

	// the same user holds no tier in a second guild
	elsewhere := member("u1")
	elsewhere.GuildID = "guild-2"
	report := f.reconciler.Reconcile(ctx, []*platform.Member{elsewhere})
	assert.Equal(t, Report{Unchanged: 1}, report)

	rec := f.get(t, "u1")
	require.NotNil(t, rec)
	assert.Equal(t, "HT1", rec.Tier)
	assert.Equal(t, "player1", rec.Username)
	assert.Equal(t, "NA", rec.Region)

	elsewhere.Roles = []platform.Role{{Name: "LT4"}}
	f.reconciler.Reconcile(ctx, []*platform.Member{elsewhere})
	f.reconciler.Reconcile(ctx, []*platform.Member{member("u1", "HT1")})

	rec = f.get(t, "u1")
	require.NotNil(t, rec)
	assert.Equal(t, "HT1", rec.Tier)
	assert.Equal(t, "player1", rec.Username)
	assert.Equal(t, "NA", rec.Region)

	other, err := f.repo.GetTier(ctx, "guild-2", "u1")
	require.NoError(t, err)
	assert.Equal(t, "LT4", other.Tier)
	assert.Equal(t, UsernameUnknown, other.Username)

	// listing and lookups in the second guild only see its own records
	mem2 := platform.NewMemory("guild-2")
	h2 := NewHandler(f.repo, DefaultRanking(), mem2, NewReconciler(f.repo, DefaultRanking(), mem2), nil, nil)

	records, err := h2.ListAll(ctx, "guild-2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "LT4", records[0].Tier)

	_, err = h2.Query(ctx, "guild-2", "u1")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NotNil(t, f.get(t, "u1"))
}
