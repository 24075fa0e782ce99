package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flor3z/tierbot/internal/tier"
)

type countingReconciler struct {
	mu    sync.Mutex
	calls map[string]int
	fail  string
}

func (c *countingReconciler) ReconcileGuild(_ context.Context, guildID string) (tier.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[guildID]++
	if guildID == c.fail {
		return tier.Report{}, errors.New("roster unavailable")
	}
	return tier.Report{Unchanged: 1}, nil
}

func (c *countingReconciler) count(guildID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[guildID]
}

func TestPollerRunsImmediatelyAndOnTicks(t *testing.T) {
	rec := &countingReconciler{calls: map[string]int{}, fail: "bad"}
	p := New(rec, func() []string { return []string{"bad", "good"} }, 1)
	p.interval = 20 * time.Millisecond

	go p.Start(context.Background())

	assert.Eventually(t, func() bool { return rec.count("good") >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	// a failing guild does not block the others
	assert.GreaterOrEqual(t, rec.count("bad"), 3)

	stopped := rec.count("good")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, rec.count("good"))
}

func TestPollerStopsOnContextCancel(t *testing.T) {
	rec := &countingReconciler{calls: map[string]int{}}
	p := New(rec, func() []string { return nil }, 60)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
