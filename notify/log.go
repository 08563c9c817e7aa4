package notify

import (
	"context"

	"github.com/goliatone/go-print"
	identity "github.com/goliatone/go-identity"
)

// LogNotifier writes rendered messages to a logger, for development
type LogNotifier struct {
	logger    identity.Logger
	templates *Templates
}

// NewLogNotifier creates a notifier writing to logger
func NewLogNotifier(logger identity.Logger, templates *Templates) *LogNotifier {
	if logger == nil {
		logger = identity.NopLogger{}
	}
	return &LogNotifier{logger: logger, templates: templates}
}

// Notify implements Notifier
func (l *LogNotifier) Notify(_ context.Context, msg Message) error {
	msg, err := l.templates.RenderMessage(msg)
	if err != nil {
		return err
	}
	l.logger.Info("notification %s to %s:\n%s", msg.Event, msg.To, print.MaybePrettyJSON(msg))
	return nil
}
