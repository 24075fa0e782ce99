package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flor3z/tierbot/internal/platform"
	"github.com/flor3z/tierbot/internal/ticket"
	"github.com/flor3z/tierbot/internal/tier"
)

// Authorization modes for privileged commands
const (
	AuthRole     = "role"
	AuthPosition = "position"
	AuthNone     = "none"
)

// Policy is the YAML-configurable part of the bot: the tier ladder, who
// counts as staff, and the ticket menu.
type Policy struct {
	Tiers   TierPolicy     `yaml:"tiers"`
	Staff   StaffPolicy    `yaml:"staff"`
	Tickets []TicketPolicy `yaml:"tickets"`
}

type TierPolicy struct {
	Labels    []string       `yaml:"labels"`
	Direction tier.Direction `yaml:"direction"`
}

type StaffPolicy struct {
	// Roles may manage tiers (in "role" mode) and see every ticket.
	Roles []string `yaml:"roles"`
	// Auth is one of role, position or none.
	Auth          string `yaml:"auth"`
	ReferenceRole string `yaml:"reference_role"`
}

type TicketPolicy struct {
	Kind    string `yaml:"kind"`
	Label   string `yaml:"label"`
	Group   string `yaml:"group"`
	MinTier string `yaml:"min_tier"`
}

// DefaultPolicy is used for anything the policy file leaves out
func DefaultPolicy() *Policy {
	p := &Policy{
		Tiers: TierPolicy{
			Labels:    append([]string(nil), tier.DefaultLabels...),
			Direction: tier.DefaultDirection,
		},
		Staff: StaffPolicy{
			Roles: []string{"Staff"},
			Auth:  AuthRole,
		},
	}
	for _, c := range ticket.DefaultCategories() {
		p.Tickets = append(p.Tickets, TicketPolicy{
			Kind:    string(c.Kind),
			Label:   c.Label,
			Group:   c.Group,
			MinTier: c.MinTier,
		})
	}
	return p
}

// LoadPolicy reads a policy file; an empty path yields DefaultPolicy.
// Sections missing from the file keep their defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file Policy
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	if len(file.Tiers.Labels) > 0 {
		p.Tiers.Labels = file.Tiers.Labels
		p.Tiers.Direction = file.Tiers.Direction
	}
	if file.Tiers.Direction != "" {
		p.Tiers.Direction = file.Tiers.Direction
	}
	if len(file.Staff.Roles) > 0 {
		p.Staff.Roles = file.Staff.Roles
	}
	if file.Staff.Auth != "" {
		p.Staff.Auth = file.Staff.Auth
	}
	if file.Staff.ReferenceRole != "" {
		p.Staff.ReferenceRole = file.Staff.ReferenceRole
	}
	if len(file.Tickets) > 0 {
		p.Tickets = file.Tickets
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the policy is internally consistent
func (p *Policy) Validate() error {
	ranking, err := p.Ranking()
	if err != nil {
		return err
	}

	switch p.Staff.Auth {
	case AuthRole:
		if len(p.Staff.Roles) == 0 {
			return fmt.Errorf("staff.auth %q needs at least one staff role", AuthRole)
		}
	case AuthPosition:
		if p.Staff.ReferenceRole == "" {
			return fmt.Errorf("staff.auth %q needs staff.reference_role", AuthPosition)
		}
	case AuthNone:
	default:
		return fmt.Errorf("unknown staff.auth %q", p.Staff.Auth)
	}

	for _, t := range p.Tickets {
		if t.MinTier != "" && !ranking.Contains(t.MinTier) {
			return fmt.Errorf("ticket %q: min_tier %q is not a tier", t.Kind, t.MinTier)
		}
	}
	_, err = p.Categories()
	return err
}

// Ranking builds the tier ladder
func (p *Policy) Ranking() (*tier.Ranking, error) {
	return tier.NewRanking(p.Tiers.Labels, p.Tiers.Direction)
}

// Categories builds the ticket menu
func (p *Policy) Categories() (*ticket.Registry, error) {
	specs := make([]ticket.CategorySpec, len(p.Tickets))
	for i, t := range p.Tickets {
		specs[i] = ticket.CategorySpec{
			Kind:    ticket.Category(t.Kind),
			Label:   t.Label,
			Group:   t.Group,
			MinTier: t.MinTier,
		}
	}
	return ticket.NewRegistry(specs...)
}

// Authorizer builds the staff check for privileged commands
func (p *Policy) Authorizer(pl platform.Platform) tier.Authorizer {
	switch p.Staff.Auth {
	case AuthPosition:
		return tier.RequirePosition(pl, p.Staff.ReferenceRole)
	case AuthNone:
		return tier.AllowAll()
	default:
		return tier.RequireRole(pl, p.Staff.Roles...)
	}
}
