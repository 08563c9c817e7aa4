package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/notify"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesRender(t *testing.T) {
	templates, err := notify.NewTemplates(notify.DefaultTemplates)
	require.NoError(t, err)

	assert.True(t, templates.Has(notify.TemplateApprove))
	assert.True(t, templates.Has(notify.TemplateForgotten))

	body, err := templates.Render(notify.TemplateApprove, map[string]any{
		"login":        "alice",
		"approve_link": "https://example.com/approve?hash=abc",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Hello alice,")
	assert.Contains(t, body, "https://example.com/approve?hash=abc")
}

func TestTemplatesUnknown(t *testing.T) {
	templates, err := notify.NewTemplates(nil)
	require.NoError(t, err)

	_, err = templates.Render("missing", nil)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "TEMPLATE_NOT_FOUND", richErr.TextCode)

	var none *notify.Templates
	assert.False(t, none.Has(notify.TemplateApprove))
}

func TestTemplatesCompileError(t *testing.T) {
	_, err := notify.NewTemplates(map[string]string{"broken": "{{ login"})
	assert.Error(t, err)
}

func TestRenderMessage(t *testing.T) {
	templates, err := notify.NewTemplates(notify.DefaultTemplates)
	require.NoError(t, err)

	msg, err := templates.RenderMessage(notify.Message{
		Template: notify.TemplateForgotten,
		Data:     map[string]any{"login": "bob", "approve_link": "link"},
	})
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "Hello bob,")

	msg, err = templates.RenderMessage(notify.Message{Template: notify.TemplateApprove, Body: "preset"})
	require.NoError(t, err)
	assert.Equal(t, "preset", msg.Body)

	var none *notify.Templates
	msg, err = none.RenderMessage(notify.Message{Body: "plain"})
	require.NoError(t, err)
	assert.Equal(t, "plain", msg.Body)
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier(t *testing.T) {
	templates, err := notify.NewTemplates(notify.DefaultTemplates)
	require.NoError(t, err)

	writer := &fakeWriter{}
	n := notify.NewKafkaNotifier(writer, templates).WithTimeout(time.Second)

	err = n.Notify(context.Background(), notify.Message{
		Event:    "identity.approve_notify",
		To:       "alice@example.com",
		Subject:  "Confirm your account",
		Template: notify.TemplateApprove,
		Data:     map[string]any{"login": "alice", "approve_link": "https://example.com/approve?hash=x"},
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)
	assert.True(t, writer.deadline)

	km := writer.messages[0]
	assert.Equal(t, "alice@example.com", string(km.Key))
	require.Len(t, km.Headers, 1)
	assert.Equal(t, "event", km.Headers[0].Key)
	assert.Equal(t, "identity.approve_notify", string(km.Headers[0].Value))

	var decoded notify.Message
	require.NoError(t, json.Unmarshal(km.Value, &decoded))
	assert.Equal(t, "Confirm your account", decoded.Subject)
	assert.True(t, strings.Contains(decoded.Body, "https://example.com/approve?hash=x"))

	require.NoError(t, n.Close())
	assert.True(t, writer.closed)
}

func TestKafkaNotifierPublishFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	n := notify.NewKafkaNotifier(writer, nil)

	err := n.Notify(context.Background(), notify.Message{Event: "e", To: "a@b.c", Body: "hi"})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryExternal, richErr.Category)
}

func TestNewKafkaWriter(t *testing.T) {
	w := notify.NewKafkaWriter([]string{"localhost:9092"}, "identity")
	assert.Equal(t, "identity", w.Topic)
	assert.Equal(t, "localhost:9092", w.Addr.String())
}

type captureLogger struct {
	lines []string
}

func (c *captureLogger) Debug(string, ...any) {}
func (c *captureLogger) Info(format string, args ...any) {
	c.lines = append(c.lines, format)
}
func (c *captureLogger) Warn(string, ...any)  {}
func (c *captureLogger) Error(string, ...any) {}

func TestLogNotifier(t *testing.T) {
	logger := &captureLogger{}
	n := notify.NewLogNotifier(logger, nil)

	require.NoError(t, n.Notify(context.Background(), notify.Message{Event: "e", To: "a@b.c", Body: "hi"}))
	assert.Len(t, logger.lines, 1)

	err := n.Notify(context.Background(), notify.Message{Template: notify.TemplateApprove})
	assert.Error(t, err, "no templates registered")
}

func TestMulti(t *testing.T) {
	var calls []string
	first := notify.NotifierFunc(func(context.Context, notify.Message) error {
		calls = append(calls, "first")
		return nil
	})
	failing := notify.NotifierFunc(func(context.Context, notify.Message) error {
		calls = append(calls, "failing")
		return errors.New("down")
	})
	last := notify.NotifierFunc(func(context.Context, notify.Message) error {
		calls = append(calls, "last")
		return nil
	})

	err := notify.Multi(first, nil, failing, last).Notify(context.Background(), notify.Message{})
	assert.EqualError(t, err, "down")
	assert.Equal(t, []string{"first", "failing"}, calls)
}
