package platform

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Memory is an in-process Platform holding a single guild's state.
// Failures can be injected per operation with Fail.
type Memory struct {
	mu       sync.Mutex
	guildID  string
	nextID   int
	roles    map[string]Role           // id -> role
	members  map[string]*Member        // user id -> member
	channels map[string]*MemoryChannel // id -> channel
	failures map[string]error          // op -> injected error
	messages map[string][]string       // channel id -> sent messages
	calls    map[string]int            // op -> call count
}

// MemoryChannel is a channel tracked by Memory
type MemoryChannel struct {
	ID       string
	Name     string
	ParentID string
	Category bool
	Allowed  map[Target]bool
}

// NewMemory creates an empty guild
func NewMemory(guildID string) *Memory {
	return &Memory{
		guildID:  guildID,
		roles:    make(map[string]Role),
		members:  make(map[string]*Member),
		channels: make(map[string]*MemoryChannel),
		failures: make(map[string]error),
		messages: make(map[string][]string),
		calls:    make(map[string]int),
	}
}

func (m *Memory) id(prefix string) string {
	m.nextID++
	return prefix + strconv.Itoa(m.nextID)
}

// AddGuildRole creates a role and returns its ID
func (m *Memory) AddGuildRole(name string, position int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id("role-")
	m.roles[id] = Role{ID: id, Name: name, Position: position}
	return id
}

// AddMember registers a member holding the named roles
func (m *Memory) AddMember(userID, username string, roleNames ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member := &Member{GuildID: m.guildID, UserID: userID, Username: username, DisplayName: username}
	for _, name := range roleNames {
		if r, ok := m.roleByName(name); ok {
			member.Roles = append(member.Roles, r)
		}
	}
	m.members[userID] = member
}

// SetMemberRoles replaces a member's roles by name
func (m *Memory) SetMemberRoles(userID string, roleNames ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[userID]
	if !ok {
		return
	}
	member.Roles = nil
	for _, name := range roleNames {
		if r, ok := m.roleByName(name); ok {
			member.Roles = append(member.Roles, r)
		}
	}
}

// Fail makes every later call of op return err; a nil err clears it.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how often op was invoked
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Channel returns a copy of a channel's state
func (m *Memory) Channel(id string) (MemoryChannel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[id]
	if !ok {
		return MemoryChannel{}, false
	}
	cp := *c
	cp.Allowed = make(map[Target]bool, len(c.Allowed))
	for k, v := range c.Allowed {
		cp.Allowed[k] = v
	}
	return cp, true
}

// ChannelCount returns the number of non-category channels
func (m *Memory) ChannelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.channels {
		if !c.Category {
			n++
		}
	}
	return n
}

// Messages returns what was sent to a channel
func (m *Memory) Messages(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages[channelID]...)
}

// RemoveChannel deletes a channel behind the bot's back
func (m *Memory) RemoveChannel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, id)
}

func (m *Memory) roleByName(name string) (Role, bool) {
	for _, r := range m.roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// enter records a call and returns the injected failure for op, if any
func (m *Memory) enter(op string) error {
	m.calls[op]++
	if err, ok := m.failures[op]; ok {
		return &Error{Op: op, Kind: kindOf(err), Err: err}
	}
	return nil
}

func kindOf(err error) error {
	switch err {
	case ErrNotFound, ErrForbidden, ErrRateLimited:
		return err
	}
	return nil
}

func notFound(op, what string) error {
	return &Error{Op: op, Kind: ErrNotFound, Err: fmt.Errorf("unknown %s", what)}
}

func (m *Memory) checkGuild(op, guildID string) error {
	if guildID != m.guildID {
		return notFound(op, "guild "+guildID)
	}
	return nil
}

func copyMember(mem *Member) *Member {
	cp := *mem
	cp.Roles = append([]Role(nil), mem.Roles...)
	return &cp
}

func (m *Memory) Member(ctx context.Context, guildID, userID string) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("member"); err != nil {
		return nil, err
	}
	if err := m.checkGuild("member", guildID); err != nil {
		return nil, err
	}
	mem, ok := m.members[userID]
	if !ok {
		return nil, notFound("member", "member "+userID)
	}
	return copyMember(mem), nil
}

func (m *Memory) Members(ctx context.Context, guildID string) ([]*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("members"); err != nil {
		return nil, err
	}
	if err := m.checkGuild("members", guildID); err != nil {
		return nil, err
	}
	out := make([]*Member, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, copyMember(mem))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) Roles(ctx context.Context, guildID string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("roles"); err != nil {
		return nil, err
	}
	if err := m.checkGuild("roles", guildID); err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("add_role"); err != nil {
		return err
	}
	mem, ok := m.members[userID]
	if !ok {
		return notFound("add_role", "member "+userID)
	}
	role, ok := m.roles[roleID]
	if !ok {
		return notFound("add_role", "role "+roleID)
	}
	for _, r := range mem.Roles {
		if r.ID == roleID {
			return nil
		}
	}
	mem.Roles = append(mem.Roles, role)
	return nil
}

func (m *Memory) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("remove_role"); err != nil {
		return err
	}
	mem, ok := m.members[userID]
	if !ok {
		return notFound("remove_role", "member "+userID)
	}
	kept := mem.Roles[:0]
	for _, r := range mem.Roles {
		if r.ID != roleID {
			kept = append(kept, r)
		}
	}
	mem.Roles = kept
	return nil
}

func (m *Memory) EnsureCategory(ctx context.Context, guildID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ensure_category"); err != nil {
		return "", err
	}
	for _, c := range m.channels {
		if c.Category && c.Name == name {
			return c.ID, nil
		}
	}
	id := m.id("cat-")
	m.channels[id] = &MemoryChannel{ID: id, Name: name, Category: true}
	return id, nil
}

func (m *Memory) CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("create_channel"); err != nil {
		return "", err
	}
	id := m.id("chan-")
	c := &MemoryChannel{ID: id, Name: spec.Name, ParentID: spec.ParentID, Allowed: make(map[Target]bool)}
	for _, t := range spec.Allowed {
		c.Allowed[t] = true
	}
	m.channels[id] = c
	return id, nil
}

func (m *Memory) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("channel_exists"); err != nil {
		return false, err
	}
	_, ok := m.channels[channelID]
	return ok, nil
}

func (m *Memory) Allow(ctx context.Context, channelID string, target Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("allow"); err != nil {
		return err
	}
	c, ok := m.channels[channelID]
	if !ok {
		return notFound("allow", "channel "+channelID)
	}
	c.Allowed[target] = true
	return nil
}

func (m *Memory) Revoke(ctx context.Context, channelID string, target Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("revoke"); err != nil {
		return err
	}
	c, ok := m.channels[channelID]
	if !ok {
		return notFound("revoke", "channel "+channelID)
	}
	delete(c.Allowed, target)
	return nil
}

func (m *Memory) DeleteChannel(ctx context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete_channel"); err != nil {
		return err
	}
	if _, ok := m.channels[channelID]; !ok {
		return notFound("delete_channel", "channel "+channelID)
	}
	delete(m.channels, channelID)
	return nil
}

func (m *Memory) SendMessage(ctx context.Context, channelID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("send_message"); err != nil {
		return err
	}
	m.messages[channelID] = append(m.messages[channelID], content)
	return nil
}
