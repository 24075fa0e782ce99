package platform

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/tierbot/internal/keylock"
)

const (
	ticketAllow = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory
	ticketDeny  = discordgo.PermissionViewChannel
	pageSize    = 1000
)

// Discord implements Platform over a discordgo session
type Discord struct {
	session    *discordgo.Session
	categories *keylock.Map
}

// NewDiscord wraps an open session
func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{
		session:    session,
		categories: keylock.New(),
	}
}

// classify maps discordgo REST failures onto the platform error kinds
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var kind error
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			kind = ErrNotFound
		case http.StatusForbidden, http.StatusUnauthorized:
			kind = ErrForbidden
		case http.StatusTooManyRequests:
			kind = ErrRateLimited
		}
	}

	return &Error{Op: op, Kind: kind, Err: err}
}

func (d *Discord) roleIndex(ctx context.Context, guildID string) (map[string]Role, error) {
	roles, err := d.Roles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]Role, len(roles))
	for _, r := range roles {
		index[r.ID] = r
	}
	return index, nil
}

func toMember(guildID string, m *discordgo.Member, roles map[string]Role) *Member {
	out := &Member{
		GuildID:     guildID,
		UserID:      m.User.ID,
		Username:    m.User.Username,
		DisplayName: m.User.Username,
	}
	switch {
	case m.Nick != "":
		out.DisplayName = m.Nick
	case m.User.GlobalName != "":
		out.DisplayName = m.User.GlobalName
	}
	for _, id := range m.Roles {
		if r, ok := roles[id]; ok {
			out.Roles = append(out.Roles, r)
		}
	}
	return out
}

// Member fetches one member with resolved roles
func (d *Discord) Member(ctx context.Context, guildID, userID string) (*Member, error) {
	roles, err := d.roleIndex(ctx, guildID)
	if err != nil {
		return nil, err
	}

	m, err := d.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("get member", err)
	}
	return toMember(guildID, m, roles), nil
}

// Members pages through every member of the guild
func (d *Discord) Members(ctx context.Context, guildID string) ([]*Member, error) {
	roles, err := d.roleIndex(ctx, guildID)
	if err != nil {
		return nil, err
	}

	var out []*Member
	after := ""
	for {
		page, err := d.session.GuildMembers(guildID, after, pageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify("list members", err)
		}
		for _, m := range page {
			if m.User == nil || m.User.Bot {
				continue
			}
			out = append(out, toMember(guildID, m, roles))
		}
		if len(page) < pageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// Roles lists the guild's roles
func (d *Discord) Roles(ctx context.Context, guildID string) ([]Role, error) {
	roles, err := d.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list roles", err)
	}
	out := make([]Role, len(roles))
	for i, r := range roles {
		out[i] = Role{ID: r.ID, Name: r.Name, Position: r.Position}
	}
	return out, nil
}

func (d *Discord) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return classify("add role", d.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (d *Discord) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return classify("remove role", d.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

// EnsureCategory is a get-or-create on the channel category called name
func (d *Discord) EnsureCategory(ctx context.Context, guildID, name string) (string, error) {
	unlock := d.categories.Lock(guildID + "/" + name)
	defer unlock()

	channels, err := d.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("list channels", err)
	}
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildCategory && strings.EqualFold(c.Name, name) {
			return c.ID, nil
		}
	}

	created, err := d.session.GuildChannelCreate(guildID, name, discordgo.ChannelTypeGuildCategory, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("create category", err)
	}
	return created.ID, nil
}

func overwrite(t Target, allow, deny int64) *discordgo.PermissionOverwrite {
	kind := discordgo.PermissionOverwriteTypeMember
	if t.IsRole {
		kind = discordgo.PermissionOverwriteTypeRole
	}
	return &discordgo.PermissionOverwrite{ID: t.ID, Type: kind, Allow: allow, Deny: deny}
}

// CreateChannel creates a text channel visible only to spec.Allowed
func (d *Discord) CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		// @everyone shares the guild ID
		overwrite(RoleTarget(guildID), 0, ticketDeny),
	}
	for _, t := range spec.Allowed {
		overwrites = append(overwrites, overwrite(t, ticketAllow, 0))
	}

	created, err := d.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		ParentID:             spec.ParentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("create channel", err)
	}
	return created.ID, nil
}

func (d *Discord) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	_, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err == nil {
		return true, nil
	}
	err = classify("get channel", err)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (d *Discord) Allow(ctx context.Context, channelID string, target Target) error {
	ow := overwrite(target, ticketAllow, 0)
	return classify("allow", d.session.ChannelPermissionSet(channelID, ow.ID, ow.Type, ow.Allow, ow.Deny, discordgo.WithContext(ctx)))
}

func (d *Discord) Revoke(ctx context.Context, channelID string, target Target) error {
	return classify("revoke", d.session.ChannelPermissionDelete(channelID, target.ID, discordgo.WithContext(ctx)))
}

func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := d.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return classify("delete channel", err)
}

func (d *Discord) SendMessage(ctx context.Context, channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return classify("send message", err)
}
