package tier

import "fmt"

// Direction says which end of the configured ladder is most senior.
type Direction string

const (
	// SeniorFirst treats the first configured label as the highest tier.
	SeniorFirst Direction = "senior_first"
	// SeniorLast treats the last configured label as the highest tier.
	SeniorLast Direction = "senior_last"
)

// DefaultLabels is the stock ladder, listed in configuration order.
var DefaultLabels = []string{"HT1", "LT1", "HT2", "LT2", "HT3", "LT3", "HT4", "LT4", "HT5", "LT5"}

// DefaultDirection pairs with DefaultLabels: HT1 is the most senior tier.
const DefaultDirection = SeniorFirst

// Ranking is a fixed total order over tier labels
type Ranking struct {
	labels []string       // most senior first
	index  map[string]int // label -> seniority position, 0 = most senior
}

// NewRanking builds a ranking from labels in configuration order.
func NewRanking(labels []string, dir Direction) (*Ranking, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("tier ladder is empty")
	}

	ordered := make([]string, len(labels))
	switch dir {
	case SeniorFirst, "":
		copy(ordered, labels)
	case SeniorLast:
		for i, l := range labels {
			ordered[len(labels)-1-i] = l
		}
	default:
		return nil, fmt.Errorf("unknown tier direction %q", dir)
	}

	index := make(map[string]int, len(ordered))
	for i, l := range ordered {
		if l == "" {
			return nil, fmt.Errorf("tier ladder contains an empty label")
		}
		if _, dup := index[l]; dup {
			return nil, fmt.Errorf("tier ladder contains %q twice", l)
		}
		index[l] = i
	}

	return &Ranking{labels: ordered, index: index}, nil
}

// DefaultRanking returns the stock ladder.
func DefaultRanking() *Ranking {
	r, err := NewRanking(DefaultLabels, DefaultDirection)
	if err != nil {
		panic(err)
	}
	return r
}

// Rank returns the seniority position of label, 0 being the most senior.
func (r *Ranking) Rank(label string) (int, bool) {
	i, ok := r.index[label]
	return i, ok
}

// Contains reports whether label is part of the ladder.
func (r *Ranking) Contains(label string) bool {
	_, ok := r.index[label]
	return ok
}

// Labels returns the ladder, most senior first.
func (r *Ranking) Labels() []string {
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

// Highest returns the most senior recognized label in labels.
// Unrecognized labels are ignored.
func (r *Ranking) Highest(labels []string) (string, bool) {
	best := -1
	for _, l := range labels {
		i, ok := r.index[l]
		if !ok {
			continue
		}
		if best == -1 || i < best {
			best = i
		}
	}
	if best == -1 {
		return "", false
	}
	return r.labels[best], true
}

// AtLeast reports whether label ranks at or above threshold.
// Unknown labels never satisfy a threshold.
func (r *Ranking) AtLeast(label, threshold string) bool {
	li, ok := r.index[label]
	if !ok {
		return false
	}
	ti, ok := r.index[threshold]
	if !ok {
		return false
	}
	return li <= ti
}

// Less orders two labels by seniority, unknown labels last.
func (r *Ranking) Less(a, b string) bool {
	ai, aok := r.index[a]
	bi, bok := r.index[b]
	switch {
	case aok && bok:
		return ai < bi
	case aok:
		return true
	default:
		return false
	}
}
