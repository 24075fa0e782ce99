package ticket

import (
	"fmt"
	"strings"
	"sync"
)

// Category is a ticket kind offered in the menu
type Category string

const (
	Support   Category = "support"
	Whitelist Category = "whitelist"
	Purge     Category = "purge"
	HighTest  Category = "hightest"
)

// CustomIDPrefix marks menu buttons that open tickets
const CustomIDPrefix = "ticket:"

// CustomID returns the button ID that selects c
func (c Category) CustomID() string {
	return CustomIDPrefix + string(c)
}

// ParseCustomID decodes a menu button ID into a category. Only the
// prefixed form is accepted; anything else is not a ticket button.
func ParseCustomID(id string) (Category, error) {
	rest, ok := strings.CutPrefix(id, CustomIDPrefix)
	if !ok || rest == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, id)
	}
	return Category(rest), nil
}

// CategorySpec configures one ticket category
type CategorySpec struct {
	Kind  Category
	Label string
	// Group is the name of the channel category tickets are created under.
	Group string
	// MinTier gates the category; empty means open to everyone.
	MinTier string
}

// DefaultCategories is the stock ticket menu
func DefaultCategories() []CategorySpec {
	return []CategorySpec{
		{Kind: Support, Label: "Support", Group: "Support Tickets"},
		{Kind: Whitelist, Label: "Whitelist", Group: "Whitelist Tickets"},
		{Kind: Purge, Label: "Purge", Group: "Purge Tickets"},
		{Kind: HighTest, Label: "High Test", Group: "High Test Tickets", MinTier: "LT3"},
	}
}

// Registry holds the configured categories in menu order
type Registry struct {
	mu    sync.RWMutex
	specs map[Category]CategorySpec
	order []Category
}

// NewRegistry creates a registry from specs
func NewRegistry(specs ...CategorySpec) (*Registry, error) {
	r := &Registry{specs: make(map[Category]CategorySpec)}
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a category
func (r *Registry) Register(spec CategorySpec) error {
	if spec.Kind == "" || strings.ContainsAny(string(spec.Kind), "- :") {
		return fmt.Errorf("invalid ticket category %q", spec.Kind)
	}
	if spec.Label == "" {
		spec.Label = string(spec.Kind)
	}
	if spec.Group == "" {
		spec.Group = spec.Label + " Tickets"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.specs[spec.Kind]; dup {
		return fmt.Errorf("ticket category %q registered twice", spec.Kind)
	}
	r.specs[spec.Kind] = spec
	r.order = append(r.order, spec.Kind)
	return nil
}

// Get retrieves a category by kind
func (r *Registry) Get(kind Category) (CategorySpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[kind]
	if !ok {
		return CategorySpec{}, fmt.Errorf("%w: %s", ErrUnknownCategory, kind)
	}
	return spec, nil
}

// List returns every category in registration order
func (r *Registry) List() []CategorySpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CategorySpec, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.specs[k])
	}
	return out
}
