package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/notify"
)

// Step names
const (
	StepValidateRegistration = "validate_registration"
	StepRegister             = "register"
	StepApproveLink          = "approve_link"
	StepApprove              = "approve"
	StepForgottenRequest     = "forgotten_request"
	StepForgottenCommit      = "forgotten_commit"
	StepCleanup              = "cleanup"
	StepNotify               = "notify"
)

// RegistrationPayload holds the submitted registration values
type RegistrationPayload struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegistrationFromValues reads a payload from submitted values
func RegistrationFromValues(values Values) RegistrationPayload {
	return RegistrationPayload{
		Login:    strings.TrimSpace(values.Get(KeyLogin)),
		Email:    strings.TrimSpace(values.Get(KeyEmail)),
		Username: strings.TrimSpace(values.Get(KeyUsername)),
		Password: values.Get(KeyPassword),
	}
}

// Validate will run validation rules
func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Login, validation.Required, validation.Length(3, 64)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.EmailFormat),
		validation.Field(&r.Username, validation.Length(0, 200)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 0), validation.By(ValidateMaxBytes(identity.MaxPasswordLength))),
	)
}

// ValidateMaxBytes limits the byte length of a string, Length counts runes
func ValidateMaxBytes(limit int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) > limit {
			return validation.NewError("validation_max_bytes", fmt.Sprintf("the length must be no more than %d bytes", limit))
		}
		return nil
	}
}

// ValidateRegistration checks the submitted fields and that neither the
// login nor the email are taken.
type ValidateRegistration struct {
	Store identity.Identities
}

func (s ValidateRegistration) Name() string { return StepValidateRegistration }

func (s ValidateRegistration) Apply(ctx context.Context, _ *Context, values Values) error {
	payload := RegistrationFromValues(values)

	if err := payload.Validate(); err != nil {
		return goerrors.FromOzzoValidation(err, "invalid registration data").
			WithTextCode("VALIDATION_ERROR").
			WithCode(goerrors.CodeBadRequest)
	}

	n, err := s.Store.ExistsByLogin(ctx, payload.Login)
	if err != nil {
		return err
	}
	if n > 0 {
		return goerrors.New("login is already taken", goerrors.CategoryConflict).
			WithTextCode(identity.TextCodeDuplicateIdentity).
			WithCode(goerrors.CodeConflict).
			WithMetadata(map[string]any{"field": KeyLogin})
	}

	n, err = s.Store.ExistsByEmail(ctx, payload.Email)
	if err != nil {
		return err
	}
	if n > 0 {
		return goerrors.New("email is already registered", goerrors.CategoryConflict).
			WithTextCode(identity.TextCodeDuplicateIdentity).
			WithCode(goerrors.CodeConflict).
			WithMetadata(map[string]any{"field": KeyEmail})
	}

	return nil
}

// Register inserts a pending identity and stores its id under id_user
type Register struct {
	Store       identity.Identities
	DefaultRole identity.Role
	Activity    identity.ActivitySink
	Logger      identity.Logger
	Now         func() time.Time
}

func (s Register) Name() string { return StepRegister }

func (s Register) Apply(ctx context.Context, pc *Context, values Values) error {
	payload := RegistrationFromValues(values)

	role := values.Get(KeyRole)
	if role == "" {
		role = s.DefaultRole
	}
	if role == "" {
		role = identity.RoleMember
	}

	fields := identity.Fields{
		identity.FieldLogin:    payload.Login,
		identity.FieldEmail:    payload.Email,
		identity.FieldUsername: payload.Username,
		identity.FieldPassword: payload.Password,
		identity.FieldRole:     role,
		identity.FieldActive:   false,
	}

	id, err := s.Store.Insert(ctx, fields)
	if err != nil {
		return err
	}

	pc.Set(KeyIdentityID, id)
	pc.Set(KeyLogin, payload.Login)
	pc.Set(KeyEmail, payload.Email)
	pc.Set(KeyUsername, payload.Username)
	pc.Set(KeyRole, role)

	// the identity exists at this point, a failing sink must not undo it
	recordActivity(ctx, s.Activity, s.Logger, s.Now, identity.ActivityEvent{
		EventType:  identity.ActivityEventIdentityRegistered,
		Actor:      identity.SystemActor,
		IdentityID: id,
		Metadata:   map[string]any{"login": payload.Login},
	})

	return nil
}

// ApproveLink issues the approval token for the registered identity.
// It does nothing when no id_user is present.
type ApproveLink struct {
	Lifecycle   *identity.Lifecycle
	TTL         string
	Links       *identity.LinkBuilder
	Destination string
}

func (s ApproveLink) Name() string { return StepApproveLink }

func (s ApproveLink) Apply(ctx context.Context, pc *Context, values Values) error {
	id, ok := pc.Int64(KeyIdentityID)
	if !ok {
		return nil
	}

	login := pc.String(KeyLogin)
	if login == "" {
		login = values.Get(KeyLogin)
	}

	token, err := s.Lifecycle.IssueApprovalLink(ctx, id, login, s.TTL)
	if err != nil {
		return err
	}

	setLink(pc, s.Links, s.Destination, token)
	return nil
}

// Approve activates the identity referenced by the submitted hash
type Approve struct {
	Lifecycle *identity.Lifecycle
}

func (s Approve) Name() string { return StepApprove }

func (s Approve) Apply(ctx context.Context, _ *Context, values Values) error {
	return s.Lifecycle.ProcessApprove(ctx, values.Get(KeyHash))
}

// ForgottenRequest looks up an active identity by email and issues a
// password reset link for it.
type ForgottenRequest struct {
	Lifecycle   *identity.Lifecycle
	TTL         string
	Links       *identity.LinkBuilder
	Destination string
}

func (s ForgottenRequest) Name() string { return StepForgottenRequest }

func (s ForgottenRequest) Apply(ctx context.Context, pc *Context, values Values) error {
	email := strings.TrimSpace(values.Get(KeyEmail))

	record, found, err := s.Lifecycle.Store().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !found {
		return &Failure{
			Message: "user does not exist or not active",
			Err:     identity.ErrUserNotFound,
		}
	}

	pc.Add(record.ToFields())
	pc.Set(KeyIdentityID, record.ID)

	token, err := s.Lifecycle.IssueForgottenLink(ctx, record.ID, record.Login, s.TTL)
	if err != nil {
		return err
	}

	setLink(pc, s.Links, s.Destination, token)
	return nil
}

// ForgottenCommit stores the submitted password for the hash subject
type ForgottenCommit struct {
	Lifecycle *identity.Lifecycle
}

func (s ForgottenCommit) Name() string { return StepForgottenCommit }

func (s ForgottenCommit) Apply(ctx context.Context, _ *Context, values Values) error {
	return s.Lifecycle.ProcessForgotten(ctx, values.Get(KeyHash), values.Get(KeyPassword))
}

// Cleanup purges the pending identities older than OlderThan and stores
// the count under purged.
type Cleanup struct {
	Store     identity.Identities
	OlderThan string
	Activity  identity.ActivitySink
	Logger    identity.Logger
	Now       func() time.Time
}

func (s Cleanup) Name() string { return StepCleanup }

func (s Cleanup) Apply(ctx context.Context, pc *Context, _ Values) error {
	n, err := s.Store.PurgeInactive(ctx, s.OlderThan)
	pc.Set(KeyPurged, n)
	if err != nil {
		return err
	}

	if n > 0 {
		recordActivity(ctx, s.Activity, s.Logger, s.Now, identity.ActivityEvent{
			EventType: identity.ActivityEventIdentitiesPurged,
			Actor:     identity.SystemActor,
			Metadata:  map[string]any{"count": n, "older_than": s.OlderThan},
		})
	}

	return nil
}

// Notify sends a templated message to the address stored under ToKey.
// The template receives every context entry.
type Notify struct {
	Notifier notify.Notifier
	Event    string
	Template string
	Subject  string
	ToKey    string
}

func (s Notify) Name() string { return StepNotify }

func (s Notify) Apply(ctx context.Context, pc *Context, _ Values) error {
	if s.Notifier == nil {
		return nil
	}

	key := s.ToKey
	if key == "" {
		key = KeyEmail
	}

	to := pc.String(key)
	if to == "" {
		return Fail("missing notification recipient")
	}

	return s.Notifier.Notify(ctx, notify.Message{
		Event:    s.Event,
		To:       to,
		Subject:  s.Subject,
		Template: s.Template,
		Data:     pc.Snapshot(),
	})
}

func recordActivity(ctx context.Context, sink identity.ActivitySink, logger identity.Logger, now func() time.Time, event identity.ActivityEvent) {
	if sink == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	event.OccurredAt = now()

	if err := sink.Record(ctx, event); err != nil {
		if logger == nil {
			logger = identity.NopLogger{}
		}
		logger.Error("failed to record %s activity for identity %d: %v", event.EventType, event.IdentityID, err)
	}
}

func setLink(pc *Context, links *identity.LinkBuilder, destination, token string) {
	pc.Set(KeyToken, token)
	if links == nil {
		pc.Set(KeyApproveLink, token)
		return
	}
	pc.Set(KeyApproveLink, links.Link(destination, token))
}
