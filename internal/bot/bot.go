package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/tierbot/internal/config"
	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/poller"
	"github.com/flor3z/tierbot/internal/storage"
	"github.com/flor3z/tierbot/internal/ticket"
	"github.com/flor3z/tierbot/internal/tier"
)

const commandTimeout = 15 * time.Second

// Bot represents the Discord bot instance
type Bot struct {
	config     *config.Config
	session    *discordgo.Session
	repo       *storage.Repository
	platform   platform.Platform
	staff      tier.Authorizer
	reconciler *tier.Reconciler
	tiers      *tier.Handler
	tickets    *ticket.Provisioner
	poller     *poller.Poller
	commands   []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Guild members is privileged and must be enabled for the application
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	ranking, err := cfg.Policy.Ranking()
	if err != nil {
		return nil, fmt.Errorf("invalid tier ladder: %w", err)
	}
	categories, err := cfg.Policy.Categories()
	if err != nil {
		return nil, fmt.Errorf("invalid ticket categories: %w", err)
	}

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	p := platform.NewDiscord(session)
	staff := cfg.Policy.Authorizer(p)
	reconciler := tier.NewReconciler(repo, ranking, p)

	b := &Bot{
		config:     cfg,
		session:    session,
		repo:       repo,
		platform:   p,
		staff:      staff,
		reconciler: reconciler,
		tiers:      tier.NewHandler(repo, ranking, p, reconciler, staff, newAnnouncer(p, repo, cfg.AnnounceChannelID)),
		tickets:    ticket.NewProvisioner(repo, categories, ranking, p, staff, cfg.Policy.Staff.Roles),
	}

	// Register event handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Start the periodic tier resync
	b.poller = poller.New(b.reconciler, b.guildIDs, b.config.ResyncIntervalSeconds)
	go b.poller.Start(ctx)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop the resync loop
	if b.poller != nil {
		b.poller.Stop()
	}

	// Guild commands are re-registered on every start
	if b.config.GuildID != "" {
		b.removeCommands()
	}

	// Close Discord session before storage so no handler outlives the database
	var err error
	if b.session != nil {
		err = b.session.Close()
	}

	// Close storage
	if b.repo != nil {
		if closeErr := b.repo.Close(); closeErr != nil {
			slog.Error("Failed to close storage", "error", closeErr)
		}
	}

	return err
}

// guildIDs lists the guilds the resync covers
func (b *Bot) guildIDs() []string {
	if b.config.GuildID != "" {
		return []string{b.config.GuildID}
	}

	b.session.State.RLock()
	defer b.session.State.RUnlock()
	ids := make([]string, 0, len(b.session.State.Guilds))
	for _, g := range b.session.State.Guilds {
		ids = append(ids, g.ID)
	}
	return ids
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(b.handleMemberUpdate)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction routes slash commands and menu buttons
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil {
		respondWithMessage(s, i, "This bot only works inside a server.", true)
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "givetier":
		b.handleGiveTier(s, i)
	case "removetier":
		b.handleRemoveTier(s, i)
	case "tier":
		b.handleTier(s, i)
	case "database":
		b.handleDatabase(s, i)
	case "setup_ticket":
		b.handleSetupTicket(s, i)
	case "ticket":
		b.handleTicket(s, i)
	case "setchannel":
		b.handleSetChannel(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}

// handleMemberUpdate resyncs a member whose roles changed
func (b *Bot) handleMemberUpdate(s *discordgo.Session, u *discordgo.GuildMemberUpdate) {
	if u.Member == nil || u.User == nil || u.User.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	m, err := b.platform.Member(ctx, u.GuildID, u.User.ID)
	if err != nil {
		slog.Warn("Failed to load updated member", "user", u.User.ID, "error", err)
		return
	}
	if err := b.reconciler.OnMembershipChanged(ctx, m); err != nil {
		slog.Error("Failed to resync member", "user", u.User.ID, "error", err)
	}
}
