package notify

import (
	"github.com/flosch/pongo2/v6"
	goerrors "github.com/goliatone/go-errors"
)

// Template names used by the default templates
const (
	TemplateApprove   = "approve"
	TemplateForgotten = "forgotten"
)

// DefaultTemplates are plain text bodies for the approve and forgotten emails
var DefaultTemplates = map[string]string{
	TemplateApprove: `Hello {{ login }},

please confirm your account by following this link:
{{ approve_link }}
`,
	TemplateForgotten: `Hello {{ login }},

a password reset was requested for your account. Follow this link to
choose a new password:
{{ approve_link }}

If you did not request it you can ignore this message.
`,
}

// Templates holds compiled pongo2 templates by name
type Templates struct {
	compiled map[string]*pongo2.Template
}

// NewTemplates compiles every source template
func NewTemplates(sources map[string]string) (*Templates, error) {
	t := &Templates{compiled: make(map[string]*pongo2.Template, len(sources))}
	for name, src := range sources {
		tpl, err := pongo2.FromString(src)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to compile template "+name).
				WithMetadata(map[string]any{"template": name})
		}
		t.compiled[name] = tpl
	}
	return t, nil
}

// Has reports whether a template is registered under name
func (t *Templates) Has(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.compiled[name]
	return ok
}

// Render executes the named template with data
func (t *Templates) Render(name string, data map[string]any) (string, error) {
	if !t.Has(name) {
		return "", goerrors.New("unknown template "+name, goerrors.CategoryNotFound).
			WithTextCode("TEMPLATE_NOT_FOUND")
	}

	out, err := t.compiled[name].Execute(pongo2.Context(data))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render template "+name)
	}
	return out, nil
}

// RenderMessage fills msg.Body from msg.Template when the body is empty
func (t *Templates) RenderMessage(msg Message) (Message, error) {
	if msg.Body != "" || msg.Template == "" {
		return msg, nil
	}
	body, err := t.Render(msg.Template, msg.Data)
	if err != nil {
		return msg, err
	}
	msg.Body = body
	return msg, nil
}
