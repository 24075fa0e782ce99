package tier

import (
	"context"
	"time"
)

// EventKind names what happened to a member's tier
type EventKind string

const (
	EventAssigned EventKind = "assigned"
	EventRemoved  EventKind = "removed"
)

// Event is the payload pushed to the notification sink after a tier change
type Event struct {
	Kind        EventKind
	GuildID     string
	RequestedBy string
	Target      string
	TargetName  string
	Tier        string
	Region      string
	Username    string
	Date        time.Time
}

// Notifier receives tier events. Failures are logged, never surfaced.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }
