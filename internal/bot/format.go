package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/tierbot/internal/storage"
	"github.com/flor3z/tierbot/internal/ticket"
	"github.com/flor3z/tierbot/internal/tier"
)

// Discord rejects message content longer than this
const messageLimit = 2000

// Discord allows at most five buttons per action row
const buttonsPerRow = 5

func formatRecord(rec *storage.TierRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**%s** (<@%s>)\n", rec.DisplayName, rec.UserID))
	sb.WriteString(fmt.Sprintf("Tier: **%s**\n", rec.Tier))
	sb.WriteString(fmt.Sprintf("Region: %s\n", rec.Region))
	sb.WriteString(fmt.Sprintf("Username: `%s`\n", rec.Username))
	sb.WriteString(fmt.Sprintf("Assigned: %s", rec.Date()))
	return sb.String()
}

// formatEvent renders a tier change for the command reply and the announce channel
func formatEvent(ev *tier.Event) string {
	date := ev.Date.UTC().Format(storage.DateLayout)
	switch ev.Kind {
	case tier.EventAssigned:
		return fmt.Sprintf("<@%s> was given **%s** by <@%s>\nRegion: %s | Username: `%s` | %s",
			ev.Target, ev.Tier, ev.RequestedBy, ev.Region, ev.Username, date)
	case tier.EventRemoved:
		return fmt.Sprintf("<@%s> lost **%s** (removed by <@%s>) | %s",
			ev.Target, ev.Tier, ev.RequestedBy, date)
	default:
		return fmt.Sprintf("<@%s>: %s %s", ev.Target, ev.Kind, ev.Tier)
	}
}

// formatDatabase renders one line per record, in the order given
func formatDatabase(records []*storage.TierRecord) []string {
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, fmt.Sprintf("**Recorded tiers (%d):**", len(records)))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("`%-3s` **%s** | %s | `%s` | %s",
			rec.Tier, rec.DiscordName, rec.Region, rec.Username, rec.Date()))
	}
	return lines
}

func formatTickets(tickets []*storage.Ticket) string {
	if len(tickets) == 0 {
		return "There are no open tickets."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Open tickets (%d):**\n", len(tickets)))
	for _, t := range tickets {
		sb.WriteString(fmt.Sprintf("- %s: <#%s> for <@%s> since %s\n",
			t.Category, t.ChannelID, t.UserID, t.CreatedAt.UTC().Format(storage.DateLayout)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// splitMessage packs lines into messages no longer than limit bytes. A
// single line longer than limit is cut at the last rune boundary that fits.
func splitMessage(lines []string, limit int) []string {
	var (
		chunks []string
		sb     strings.Builder
	)
	for _, line := range lines {
		if len(line) > limit {
			line = truncate(line, limit)
		}
		if sb.Len() > 0 && sb.Len()+1+len(line) > limit {
			chunks = append(chunks, sb.String())
			sb.Reset()
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}
	if sb.Len() > 0 || len(chunks) == 0 {
		chunks = append(chunks, sb.String())
	}
	return chunks
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ticketMenu lays out one button per category
func ticketMenu(specs []ticket.CategorySpec) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row discordgo.ActionsRow
	for _, spec := range specs {
		style := discordgo.PrimaryButton
		if spec.MinTier != "" {
			style = discordgo.SecondaryButton
		}
		row.Components = append(row.Components, discordgo.Button{
			Label:    spec.Label,
			Style:    style,
			CustomID: spec.Kind.CustomID(),
		})
		if len(row.Components) == buttonsPerRow {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
	}
	if len(row.Components) > 0 {
		rows = append(rows, row)
	}
	return rows
}
