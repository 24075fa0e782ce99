package bot

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/storage"
	"github.com/flor3z/tierbot/internal/ticket"
	"github.com/flor3z/tierbot/internal/tier"
)

// userMessage turns a command error into the reply shown to the caller.
// Internal details stay in the logs.
func userMessage(err error) string {
	switch {
	case errors.Is(err, tier.ErrUnauthorized):
		return "You are not allowed to do that."
	case errors.Is(err, tier.ErrUserNotFound):
		return "That user is not a member of this server."
	case errors.Is(err, tier.ErrRoleNotFound):
		return "That tier has no matching role in this server."
	case errors.Is(err, tier.ErrRoleNotHeld):
		return "That member does not hold that tier."
	case errors.Is(err, ticket.ErrAccessDenied):
		if detail := strings.TrimPrefix(err.Error(), ticket.ErrAccessDenied.Error()+": "); detail != err.Error() {
			return "Access denied: " + detail + "."
		}
		return "Access denied."
	case errors.Is(err, ticket.ErrUnknownCategory):
		return "That ticket category does not exist."
	case errors.Is(err, ticket.ErrTicketNotFound):
		return "This channel is not a ticket."
	case errors.Is(err, ticket.ErrAlreadyClosed), errors.Is(err, ticket.ErrTicketClosed):
		return "This ticket is already closed."
	case errors.Is(err, ticket.ErrOwnerRemoval):
		return "The ticket owner cannot be removed from their ticket."
	case errors.Is(err, platform.ErrForbidden):
		return "I am missing permissions for that. Check my role is above the tier roles and that I can manage channels."
	case errors.Is(err, platform.ErrRateLimited):
		return "Discord is rate limiting me. Please try again in a moment."
	case errors.Is(err, platform.ErrNotFound):
		return "Discord could not find what I was looking for."
	case errors.Is(err, platform.ErrUnavailable), errors.Is(err, storage.ErrUnavailable):
		return "Discord or the database is unavailable right now. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}

// logCommandError logs failures that are not plain user mistakes
func logCommandError(command string, err error) {
	switch {
	case errors.Is(err, tier.ErrUnauthorized),
		errors.Is(err, tier.ErrUserNotFound),
		errors.Is(err, tier.ErrRoleNotHeld),
		errors.Is(err, ticket.ErrAccessDenied),
		errors.Is(err, ticket.ErrTicketNotFound),
		errors.Is(err, ticket.ErrAlreadyClosed),
		errors.Is(err, ticket.ErrTicketClosed),
		errors.Is(err, ticket.ErrOwnerRemoval):
		slog.Debug("Command rejected", "command", command, "error", err)
	default:
		slog.Error("Command failed", "command", command, "error", err)
	}
}
