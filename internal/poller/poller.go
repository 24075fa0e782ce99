package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flor3z/tierbot/internal/tier"
)

// Reconciler is the guild-wide resync the poller drives
type Reconciler interface {
	ReconcileGuild(ctx context.Context, guildID string) (tier.Report, error)
}

// GuildLister returns the guilds to resync on each tick
type GuildLister func() []string

// Poller periodically resynchronizes stored tiers with guild roles
type Poller struct {
	reconciler Reconciler
	guilds     GuildLister
	interval   time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Poller
func New(reconciler Reconciler, guilds GuildLister, intervalSeconds int) *Poller {
	return &Poller{
		reconciler: reconciler,
		guilds:     guilds,
		interval:   time.Duration(intervalSeconds) * time.Second,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the polling loop
func (p *Poller) Start(ctx context.Context) {
	slog.Info("Starting tier resync", "interval", p.interval)

	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial pass
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Tier resync stopped (context cancelled)")
			return
		case <-p.stopChan:
			slog.Info("Tier resync stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Stop signals the poller to stop and waits for the current pass
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

// poll resyncs every guild; one failing guild does not stop the others
func (p *Poller) poll(ctx context.Context) {
	guilds := p.guilds()
	if len(guilds) == 0 {
		slog.Debug("No guilds to resync")
		return
	}

	for _, guildID := range guilds {
		select {
		case <-ctx.Done():
			return
		default:
		}

		report, err := p.reconciler.ReconcileGuild(ctx, guildID)
		if err != nil {
			slog.Error("Failed to resync guild", "guild", guildID, "error", err)
			continue
		}
		if report.Updated > 0 || report.Deleted > 0 || report.Failed > 0 {
			slog.Info("Resynced guild", "guild", guildID,
				"updated", report.Updated, "deleted", report.Deleted, "failed", report.Failed)
		}
	}
}
