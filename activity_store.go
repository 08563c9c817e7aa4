package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityRecord is the persisted form of an ActivityEvent
type ActivityRecord struct {
	bun.BaseModel `bun:"table:identity_activity,alias:act"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id"`
	EventType     string         `bun:"event_type,notnull" json:"event_type"`
	ActorID       string         `bun:"actor_id" json:"actor_id,omitempty"`
	ActorType     string         `bun:"actor_type" json:"actor_type,omitempty"`
	IdentityID    int64          `bun:"identity_id" json:"identity_id,omitempty"`
	Metadata      map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	OccurredAt    *time.Time     `bun:"occurred_at,nullzero" json:"occurred_at,omitempty"`
}

// NewActivityRepository creates the repository backing the activity log
func NewActivityRepository(db *bun.DB) repository.Repository[*ActivityRecord] {
	handlers := repository.ModelHandlers[*ActivityRecord]{
		NewRecord: func() *ActivityRecord {
			return &ActivityRecord{}
		},
		GetID: func(record *ActivityRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ActivityRecord, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
	}
	return repository.NewRepository(db, handlers)
}

// BunActivitySink persists activity events
type BunActivitySink struct {
	repo repository.Repository[*ActivityRecord]
}

// NewBunActivitySink wraps an activity repository
func NewBunActivitySink(repo repository.Repository[*ActivityRecord]) *BunActivitySink {
	return &BunActivitySink{repo: repo}
}

// Record implements ActivitySink
func (s *BunActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	_, err := s.repo.Create(ctx, activityRecordFromEvent(event))
	return err
}

func activityRecordFromEvent(event ActivityEvent) *ActivityRecord {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	occurredAt = occurredAt.UTC()

	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return &ActivityRecord{
		ID:         uuid.New(),
		EventType:  string(event.EventType),
		ActorID:    event.Actor.ID,
		ActorType:  event.Actor.Type,
		IdentityID: event.IdentityID,
		Metadata:   metadata,
		OccurredAt: &occurredAt,
	}
}
