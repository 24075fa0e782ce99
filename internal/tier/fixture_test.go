package tier

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/storage"
)

const guildID = "guild-1"

var fixedNow = time.Date(2026, 10, 17, 15, 4, 5, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type fixture struct {
	repo       *storage.Repository
	platform   *platform.Memory
	reconciler *Reconciler
	handler    *Handler
	events     *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "tiers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	mem := platform.NewMemory(guildID)
	for i, label := range DefaultLabels {
		mem.AddGuildRole(label, 20-i)
	}
	mem.AddGuildRole("Staff", 50)
	mem.AddMember("admin", "admin", "Staff")

	ranking := DefaultRanking()
	rec := NewReconciler(repo, ranking, mem)
	rec.now = func() time.Time { return fixedNow }

	events := &recorder{}
	handler := NewHandler(repo, ranking, mem, rec, RequireRole(mem, "Staff"), events)

	return &fixture{
		repo:       repo,
		platform:   mem,
		reconciler: rec,
		handler:    handler,
		events:     events,
	}
}

func (f *fixture) get(t *testing.T, userID string) *storage.TierRecord {
	t.Helper()
	rec, err := f.repo.GetTier(context.Background(), guildID, userID)
	if err == storage.ErrNotFound {
		return nil
	}
	require.NoError(t, err)
	return rec
}
