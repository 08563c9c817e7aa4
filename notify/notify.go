// Package notify delivers the emails triggered by identity events.
// Bodies are rendered from pongo2 templates and handed to a transport.
package notify

import (
	"context"
)

// Message is a rendered or renderable notification
type Message struct {
	Event    string         `json:"event"`
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Template string         `json:"template,omitempty"`
	Body     string         `json:"body,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Notifier sends a message
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, msg Message) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// Multi fans a message out to every notifier, stopping at the first error
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, msg Message) error {
		for _, n := range notifiers {
			if n == nil {
				continue
			}
			if err := n.Notify(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}
