package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventIdentityRegistered ActivityEventType = "identity.registered"
	ActivityEventApproveLinkIssued  ActivityEventType = "identity.approve_link.issued"
	ActivityEventIdentityApproved   ActivityEventType = "identity.approved"
	ActivityEventForgottenIssued    ActivityEventType = "identity.forgotten_link.issued"
	ActivityEventPasswordReset      ActivityEventType = "identity.password.reset"
	ActivityEventIdentitiesPurged   ActivityEventType = "identity.purged"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// SystemActor is used for actions without an authenticated actor
var SystemActor = ActorRef{ID: "system", Type: "system"}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	IdentityID int64
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// MultiActivitySink records every event on each sink. All sinks are
// tried, the first error is returned.
func MultiActivitySink(sinks ...ActivitySink) ActivitySink {
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		var first error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Record(ctx, event); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
