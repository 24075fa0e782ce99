// Package platform describes the chat-server capabilities the bot relies on:
// reading members and roles, granting and revoking roles, and creating,
// permissioning and deleting channels. Discord implements it over a discordgo
// session; Memory keeps everything in process.
package platform

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable matches every failure reported by the platform
	ErrUnavailable = errors.New("platform unavailable")
	ErrNotFound    = errors.New("not found on platform")
	ErrForbidden   = errors.New("forbidden by platform")
	ErrRateLimited = errors.New("rate limited by platform")
)

// Error is a classified platform failure
type Error struct {
	Op   string
	Kind error // ErrNotFound, ErrForbidden, ErrRateLimited or nil
	Err  error
}

func (e *Error) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	errs := []error{ErrUnavailable}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Role is a guild role
type Role struct {
	ID       string
	Name     string
	Position int
}

// Member is a guild member with its role names resolved
type Member struct {
	GuildID     string
	UserID      string
	Username    string
	DisplayName string
	Roles       []Role
}

// RoleNames returns the names of the member's roles
func (m *Member) RoleNames() []string {
	names := make([]string, len(m.Roles))
	for i, r := range m.Roles {
		names[i] = r.Name
	}
	return names
}

// HasRole reports whether the member holds a role with the given name
func (m *Member) HasRole(name string) bool {
	for _, r := range m.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// TopPosition returns the highest role position the member holds, 0 if none
func (m *Member) TopPosition() int {
	top := 0
	for _, r := range m.Roles {
		if r.Position > top {
			top = r.Position
		}
	}
	return top
}

// Target is a principal a channel permission applies to
type Target struct {
	ID     string
	IsRole bool
}

// UserTarget addresses a single member
func UserTarget(id string) Target { return Target{ID: id} }

// RoleTarget addresses every holder of a role
func RoleTarget(id string) Target { return Target{ID: id, IsRole: true} }

// ChannelSpec describes a private text channel to create
type ChannelSpec struct {
	Name     string
	ParentID string
	Topic    string
	// Allowed may view and write; everyone else is denied visibility.
	Allowed []Target
}

// Platform is the set of chat-server operations the core calls
type Platform interface {
	Member(ctx context.Context, guildID, userID string) (*Member, error)
	Members(ctx context.Context, guildID string) ([]*Member, error)
	Roles(ctx context.Context, guildID string) ([]Role, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error

	// EnsureCategory returns the ID of the channel category with the given
	// name, creating it when absent.
	EnsureCategory(ctx context.Context, guildID, name string) (string, error)
	CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (string, error)
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	Allow(ctx context.Context, channelID string, target Target) error
	Revoke(ctx context.Context, channelID string, target Target) error
	DeleteChannel(ctx context.Context, channelID string) error
	SendMessage(ctx context.Context, channelID, content string) error
}

// FindRole returns the role with the given name
func FindRole(roles []Role, name string) (Role, bool) {
	for _, r := range roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}
