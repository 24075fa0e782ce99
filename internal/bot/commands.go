package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/tierbot/internal/storage"
	"github.com/flor3z/tierbot/internal/ticket"
	"github.com/flor3z/tierbot/internal/tier"
)

// Discord caps the number of choices on a string option
const maxChoices = 25

// buildTierChoices creates the tier choices for slash commands
func (b *Bot) buildTierChoices() []*discordgo.ApplicationCommandOptionChoice {
	labels := b.tiers.Ranking().Labels()
	if len(labels) > maxChoices {
		return nil
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(labels))
	for i, label := range labels {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{
			Name:  label,
			Value: label,
		}
	}
	return choices
}

func buildRegionChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(tier.Regions))
	for i, r := range tier.Regions {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: r, Value: r}
	}
	return choices
}

func memberOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "member",
		Description: description,
		Required:    true,
	}
}

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "givetier",
			Description: "Give a member a tier role and record it",
			Options: []*discordgo.ApplicationCommandOption{
				memberOption("The member to give the tier to"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tier",
					Description: "The tier to give",
					Required:    true,
					Choices:     b.buildTierChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "region",
					Description: "The member's region",
					Required:    true,
					Choices:     buildRegionChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "username",
					Description: "The member's in-game name",
					Required:    true,
				},
			},
		},
		{
			Name:        "removetier",
			Description: "Remove a tier role from a member (all tiers when none is given)",
			Options: []*discordgo.ApplicationCommandOption{
				memberOption("The member to remove the tier from"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "tier",
					Description: "The tier to remove",
					Choices:     b.buildTierChoices(),
				},
			},
		},
		{
			Name:        "tier",
			Description: "Show a member's recorded tier",
			Options: []*discordgo.ApplicationCommandOption{
				memberOption("The member to look up"),
			},
		},
		{
			Name:        "database",
			Description: "List every recorded tier in this server",
		},
		{
			Name:        "setchannel",
			Description: "Set the channel for tier announcements",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "The channel to announce tier changes in",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:        "setup_ticket",
			Description: "Post the ticket menu in this channel",
		},
		{
			Name:        "ticket",
			Description: "Manage ticket channels",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "close",
					Description: "Close this ticket and delete its channel",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add a member to this ticket",
					Options: []*discordgo.ApplicationCommandOption{
						memberOption("The member to add"),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove a member from this ticket",
					Options: []*discordgo.ApplicationCommandOption{
						memberOption("The member to remove"),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List the open tickets in this server",
				},
			},
		},
	}
}

func (b *Bot) applicationID() string {
	if b.config.DiscordApplicationID != "" {
		return b.config.DiscordApplicationID
	}
	return b.session.State.User.ID
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands", "guild", b.config.GuildID)

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.applicationID(),
			b.config.GuildID, // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// removeCommands removes all registered slash commands
func (b *Bot) removeCommands() {
	for _, cmd := range b.commands {
		err := b.session.ApplicationCommandDelete(b.applicationID(), b.config.GuildID, cmd.ID)
		if err != nil {
			slog.Error("Failed to remove command", "name", cmd.Name, "error", err)
		}
	}
}

type optionMap map[string]*discordgo.ApplicationCommandInteractionDataOption

func toOptionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) optionMap {
	m := make(optionMap, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

func (o optionMap) string(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

// id reads a user or channel option; its raw value is the snowflake ID
func (o optionMap) id(name string) string {
	if opt, ok := o[name]; ok {
		if id, ok := opt.Value.(string); ok {
			return id
		}
	}
	return ""
}

func callerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	return ""
}

// handleGiveTier handles the /givetier command
func (b *Bot) handleGiveTier(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := toOptionMap(i.ApplicationCommandData().Options)

	// Respond immediately to avoid timeout
	deferResponse(s, i, false)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := b.tiers.Assign(ctx, tier.AssignRequest{
		GuildID:     i.GuildID,
		UserID:      opts.id("member"),
		Tier:        opts.string("tier"),
		Region:      opts.string("region"),
		Username:    opts.string("username"),
		RequestedBy: callerID(i),
	})
	if err != nil {
		logCommandError("givetier", err)
		b.editResponse(s, i, userMessage(err))
		return
	}

	b.editResponse(s, i, formatEvent(res.Event))
}

// handleRemoveTier handles the /removetier command
func (b *Bot) handleRemoveTier(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := toOptionMap(i.ApplicationCommandData().Options)
	userID := opts.id("member")
	label := opts.string("tier")

	deferResponse(s, i, false)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var (
		res *tier.Result
		err error
	)
	if label == "" {
		res, err = b.tiers.RemoveAll(ctx, i.GuildID, userID, callerID(i))
	} else {
		res, err = b.tiers.Remove(ctx, tier.RemoveRequest{
			GuildID:     i.GuildID,
			UserID:      userID,
			Tier:        label,
			RequestedBy: callerID(i),
		})
	}
	if err != nil {
		logCommandError("removetier", err)
		b.editResponse(s, i, userMessage(err))
		return
	}

	msg := formatEvent(res.Event)
	if res.Record != nil {
		msg += fmt.Sprintf("\nRecorded tier is now **%s**.", res.Record.Tier)
	}
	b.editResponse(s, i, msg)
}

// handleTier handles the /tier command
func (b *Bot) handleTier(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := toOptionMap(i.ApplicationCommandData().Options).id("member")

	deferResponse(s, i, true)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	rec, err := b.tiers.Query(ctx, i.GuildID, userID)
	if err != nil {
		logCommandError("tier", err)
		b.editResponse(s, i, userMessage(err))
		return
	}
	if rec == nil {
		b.editResponse(s, i, fmt.Sprintf("<@%s> has no tier.", userID))
		return
	}

	b.editResponse(s, i, formatRecord(rec))
}

// handleDatabase handles the /database command
func (b *Bot) handleDatabase(s *discordgo.Session, i *discordgo.InteractionCreate) {
	deferResponse(s, i, true)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.requireStaff(ctx, i); err != nil {
		b.editResponse(s, i, userMessage(err))
		return
	}

	records, err := b.tiers.ListAll(ctx, i.GuildID)
	if err != nil {
		logCommandError("database", err)
		b.editResponse(s, i, userMessage(err))
		return
	}
	if len(records) == 0 {
		b.editResponse(s, i, "No tiers are recorded in this server.\nUse `/givetier` to add one!")
		return
	}

	chunks := splitMessage(formatDatabase(records), messageLimit)
	b.editResponse(s, i, chunks[0])
	for _, chunk := range chunks[1:] {
		b.followup(s, i, chunk, true)
	}
}

// handleSetChannel handles the /setchannel command
func (b *Bot) handleSetChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID := toOptionMap(i.ApplicationCommandData().Options).id("channel")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.requireStaff(ctx, i); err != nil {
		respondWithMessage(s, i, userMessage(err), true)
		return
	}

	settings := &storage.GuildSettings{
		GuildID:           i.GuildID,
		AnnounceChannelID: channelID,
	}
	if err := b.repo.UpsertGuildSettings(ctx, settings); err != nil {
		slog.Error("Failed to save guild settings", "error", err)
		respondWithMessage(s, i, "Failed to set announcement channel. Please try again.", true)
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("Tier announcements will be sent to <#%s>", channelID), true)
}

// handleSetupTicket handles the /setup_ticket command
func (b *Bot) handleSetupTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.requireStaff(ctx, i); err != nil {
		respondWithMessage(s, i, userMessage(err), true)
		return
	}

	specs := b.tickets.Registry().List()
	if len(specs) == 0 {
		respondWithMessage(s, i, "No ticket categories are configured.", true)
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    "**Open a ticket**\nPick a category below and a private channel will be created for you.",
			Components: ticketMenu(specs),
		},
	})
	if err != nil {
		slog.Error("Failed to post ticket menu", "channel", i.ChannelID, "error", err)
	}
}

// handleTicket handles the /ticket subcommands
func (b *Bot) handleTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return
	}
	sub := options[0]
	opts := toOptionMap(sub.Options)

	deferResponse(s, i, true)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch sub.Name {
	case "close":
		t, err := b.tickets.CloseTicket(ctx, i.ChannelID, callerID(i))
		if err != nil {
			logCommandError("ticket close", err)
			b.editResponse(s, i, userMessage(err))
			return
		}
		// the channel is gone, so the deferred reply usually cannot be edited
		slog.Debug("Ticket closed from command", "ticket", t.ID)

	case "add":
		userID := opts.id("member")
		if err := b.tickets.AddParticipant(ctx, i.ChannelID, userID, callerID(i)); err != nil {
			logCommandError("ticket add", err)
			b.editResponse(s, i, userMessage(err))
			return
		}
		b.editResponse(s, i, fmt.Sprintf("Added <@%s> to this ticket.", userID))

	case "remove":
		userID := opts.id("member")
		if err := b.tickets.RemoveParticipant(ctx, i.ChannelID, userID, callerID(i)); err != nil {
			logCommandError("ticket remove", err)
			b.editResponse(s, i, userMessage(err))
			return
		}
		b.editResponse(s, i, fmt.Sprintf("Removed <@%s> from this ticket.", userID))

	case "list":
		if err := b.requireStaff(ctx, i); err != nil {
			b.editResponse(s, i, userMessage(err))
			return
		}
		open, err := b.tickets.ListOpen(ctx, i.GuildID)
		if err != nil {
			logCommandError("ticket list", err)
			b.editResponse(s, i, userMessage(err))
			return
		}
		b.editResponse(s, i, formatTickets(open))

	default:
		slog.Warn("Unknown ticket subcommand", "subcommand", sub.Name)
	}
}

// handleComponent handles ticket menu button presses
func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	if !strings.HasPrefix(customID, ticket.CustomIDPrefix) {
		slog.Debug("Ignoring unknown component", "custom_id", customID)
		return
	}

	deferResponse(s, i, true)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	t, err := b.tickets.OnSelection(ctx, i.GuildID, callerID(i), customID)
	switch {
	case errors.Is(err, ticket.ErrAlreadyOpen):
		b.editResponse(s, i, fmt.Sprintf("You already have an open ticket: <#%s>", t.ChannelID))
	case err != nil:
		logCommandError("ticket open", err)
		b.editResponse(s, i, userMessage(err))
	default:
		b.editResponse(s, i, fmt.Sprintf("Your ticket is ready: <#%s>", t.ChannelID))
	}
}

// requireStaff rejects callers the staff policy does not allow
func (b *Bot) requireStaff(ctx context.Context, i *discordgo.InteractionCreate) error {
	ok, err := b.staff.Allowed(ctx, i.GuildID, callerID(i))
	if err != nil {
		return err
	}
	if !ok {
		return tier.ErrUnauthorized
	}
	return nil
}

// Helper functions

func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		slog.Error("Failed to defer interaction", "error", err)
	}
}

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Debug("Failed to edit interaction response", "error", err)
	}
}

func (b *Bot) followup(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	params := &discordgo.WebhookParams{Content: content}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := s.FollowupMessageCreate(i.Interaction, true, params); err != nil {
		slog.Error("Failed to send followup", "error", err)
	}
}
