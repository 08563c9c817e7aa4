package pipeline

import (
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/notify"
)

// Pipeline names
const (
	FlowRegistration     = "registration"
	FlowApprove          = "approve"
	FlowForgottenRequest = "forgotten_request"
	FlowForgottenCommit  = "forgotten_commit"
	FlowCleanup          = "cleanup"
)

// Event names passed to the notifier
const (
	EventApproveNotify   = "identity.approve_notify"
	EventForgottenNotify = "identity.forgotten_notify"
)

// Flows assembles the standard pipelines from shared collaborators
type Flows struct {
	Lifecycle *identity.Lifecycle
	Config    identity.Config
	Links     *identity.LinkBuilder
	Notifier  notify.Notifier
	Activity  identity.ActivitySink
	Logger    identity.Logger

	ApprovePath   string
	ForgottenPath string
}

func (f Flows) opts() []Option {
	return []Option{WithLogger(f.Logger)}
}

// Registration validates, inserts, issues the approve link and
// notifies the new identity.
func (f Flows) Registration() *Pipeline {
	store := f.Lifecycle.Store()
	steps := []Step{
		ValidateRegistration{Store: store},
		Register{Store: store, Activity: f.Activity, Logger: f.Logger},
		ApproveLink{
			Lifecycle:   f.Lifecycle,
			TTL:         f.Config.ApproveTTL,
			Links:       f.Links,
			Destination: f.ApprovePath,
		},
	}
	if f.Notifier != nil {
		steps = append(steps, Notify{
			Notifier: f.Notifier,
			Event:    EventApproveNotify,
			Template: notify.TemplateApprove,
			Subject:  "Confirm your account",
		})
	}
	return New(FlowRegistration, steps, f.opts()...)
}

// Approve activates the identity referenced by the hash value
func (f Flows) Approve() *Pipeline {
	return New(FlowApprove, []Step{
		Approve{Lifecycle: f.Lifecycle},
	}, f.opts()...)
}

// ForgottenRequest issues and sends a password reset link
func (f Flows) ForgottenRequest() *Pipeline {
	steps := []Step{
		ForgottenRequest{
			Lifecycle:   f.Lifecycle,
			TTL:         f.Config.ForgottenTTL,
			Links:       f.Links,
			Destination: f.ForgottenPath,
		},
	}
	if f.Notifier != nil {
		steps = append(steps, Notify{
			Notifier: f.Notifier,
			Event:    EventForgottenNotify,
			Template: notify.TemplateForgotten,
			Subject:  "Reset your password",
		})
	}
	return New(FlowForgottenRequest, steps, f.opts()...)
}

// ForgottenCommit replaces the password of the hash subject
func (f Flows) ForgottenCommit() *Pipeline {
	return New(FlowForgottenCommit, []Step{
		ForgottenCommit{Lifecycle: f.Lifecycle},
	}, f.opts()...)
}

// Cleanup purges stale pending identities
func (f Flows) Cleanup() *Pipeline {
	return New(FlowCleanup, []Step{
		Cleanup{
			Store:     f.Lifecycle.Store(),
			OlderThan: f.Config.PurgeOlderThan,
			Activity:  f.Activity,
			Logger:    f.Logger,
		},
	}, f.opts()...)
}
