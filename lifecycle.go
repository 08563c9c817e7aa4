package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Lifecycle drives the approve and forgotten password flows. It combines
// the hash link codec with the identity store and keeps no state between
// calls.
type Lifecycle struct {
	store    Identities
	codec    *HashLinkCodec
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// LifecycleOption customizes the lifecycle
type LifecycleOption func(*Lifecycle)

// WithLifecycleActivitySink sets the sink used to emit lifecycle events.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *Lifecycle) {
		l.activity = normalizeActivitySink(sink)
	}
}

// WithLifecycleLogger overrides the logger
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *Lifecycle) {
		l.logger = normalizeLogger(logger)
	}
}

// WithLifecycleClock injects a custom clock for activity timestamps
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// NewLifecycle creates a lifecycle over store. Integrity tags are hashed
// and verified with the store hasher.
func NewLifecycle(store Identities, codec *HashLinkCodec, opts ...LifecycleOption) *Lifecycle {
	if codec == nil {
		codec = NewHashLinkCodec(storeHasher{store})
	}

	l := &Lifecycle{
		store:    store,
		codec:    codec,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Store returns the identity store
func (l *Lifecycle) Store() Identities {
	return l.store
}

// Codec returns the hash link codec
func (l *Lifecycle) Codec() *HashLinkCodec {
	return l.codec
}

// IssueApprovalLink creates the token sent after registration
func (l *Lifecycle) IssueApprovalLink(ctx context.Context, id int64, login, ttl string) (string, error) {
	token, err := l.codec.Encode(id, login, ttl)
	if err != nil {
		return "", err
	}
	l.record(ctx, ActivityEventApproveLinkIssued, id, map[string]any{"ttl": ttl})
	return token, nil
}

// IssueForgottenLink creates the token sent on a password recovery request
func (l *Lifecycle) IssueForgottenLink(ctx context.Context, id int64, login, ttl string) (string, error) {
	token, err := l.codec.Encode(id, login, ttl)
	if err != nil {
		return "", err
	}
	l.record(ctx, ActivityEventForgottenIssued, id, map[string]any{"ttl": ttl})
	return token, nil
}

// ProcessApprove activates the identity the token was issued for
func (l *Lifecycle) ProcessApprove(ctx context.Context, token string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during approval")
	default:
	}

	record, vt, err := l.resolve(ctx, token)
	if err != nil {
		return err
	}

	if record.Active {
		return ErrAlreadyApproved
	}

	if !l.verify(record, vt) {
		return ErrInvalidHash
	}

	ok, err := l.store.Update(ctx, record.ID, Fields{FieldActive: true})
	if err != nil {
		return err
	}

	// deleted between load and update
	if !ok {
		return ErrUserNotFound
	}

	l.record(ctx, ActivityEventIdentityApproved, record.ID, map[string]any{
		"login": record.Login,
	})

	return nil
}

// IsValidForgotten reports whether a forgotten password token still
// matches its identity. Decoding failures are returned as errors, an
// unknown identity is simply not valid.
func (l *Lifecycle) IsValidForgotten(ctx context.Context, token string) (bool, error) {
	record, vt, err := l.resolve(ctx, token)
	if err != nil {
		if KindOf(err) == KindUserNotFound {
			return false, nil
		}
		return false, err
	}

	return l.verify(record, vt), nil
}

// ProcessForgotten replaces the password of the token subject. The same
// token can be used again until it expires.
func (l *Lifecycle) ProcessForgotten(ctx context.Context, token, password string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset")
	default:
	}

	if password == "" {
		return ErrNoEmptyString
	}

	record, vt, err := l.resolve(ctx, token)
	if err != nil {
		return err
	}

	if !l.verify(record, vt) {
		return ErrInvalidHash
	}

	ok, err := l.store.Update(ctx, record.ID, Fields{FieldPassword: password})
	if err != nil {
		return err
	}

	if !ok {
		return ErrUserNotFound
	}

	l.record(ctx, ActivityEventPasswordReset, record.ID, nil)

	return nil
}

func (l *Lifecycle) resolve(ctx context.Context, token string) (*Identity, *VerificationToken, error) {
	vt, err := l.codec.Decode(token)
	if err != nil {
		return nil, nil, err
	}

	record, found, err := l.store.FindByID(ctx, vt.SubjectID)
	if err != nil {
		return nil, nil, err
	}

	if !found || record.ID != vt.SubjectID {
		return nil, nil, ErrUserNotFound
	}

	return record, vt, nil
}

func (l *Lifecycle) verify(record *Identity, vt *VerificationToken) bool {
	return l.store.VerifyHash(IntegrityInput(record.ID, record.Login), vt.IntegrityTag)
}

// storeHasher hashes integrity tags with the store hasher
type storeHasher struct {
	Identities
}

func (s storeHasher) Verify(secret, hash string) bool {
	return s.VerifyHash(secret, hash)
}

func (l *Lifecycle) record(ctx context.Context, eventType ActivityEventType, id int64, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      SystemActor,
		IdentityID: id,
		Metadata:   metadata,
		OccurredAt: l.now(),
	}
	if err := l.activity.Record(ctx, event); err != nil {
		l.logger.Error("failed to record %s activity for identity %d: %v", eventType, id, err)
	}
}
