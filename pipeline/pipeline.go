// Package pipeline runs ordered chains of named steps over a shared
// context bag. A failing step stops the chain and is reported as a
// single *Failure. Side effects of earlier steps are kept.
package pipeline

import (
	"context"
	"strconv"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
)

// Keys shared between steps
const (
	KeyIdentityID  = "id_user"
	KeyLogin       = "login"
	KeyEmail       = "email"
	KeyUsername    = "username"
	KeyRole        = "role"
	KeyApproveLink = "approve_link"
	KeyToken       = "token"
	KeyHash        = "hash"
	KeyPassword    = "password"
	KeyPurged      = "purged"
)

// Values are the submitted form values
type Values map[string]string

// Get returns the value for key or an empty string
func (v Values) Get(key string) string {
	if v == nil {
		return ""
	}
	return v[key]
}

// Context is the mutable bag shared by the steps of one run
type Context struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewContext creates a context seeded with initial
func NewContext(initial map[string]any) *Context {
	data := make(map[string]any, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &Context{data: data}
}

// Get returns the entry stored under key
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Has reports whether key is set
func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set stores value under key
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string]any{}
	}
	c.data[key] = value
}

// Add stores every entry of fields
func (c *Context) Add(fields map[string]any) {
	for k, v := range fields {
		c.Set(k, v)
	}
}

// String returns the entry under key as a string
func (c *Context) String(key string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Int64 returns the entry under key as an int64
func (c *Context) Int64(key string) (int64, bool) {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Snapshot returns a copy of every entry
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Step is a single unit of a pipeline
type Step interface {
	Name() string
	Apply(ctx context.Context, pc *Context, values Values) error
}

// StepFunc adapts a function to Step
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, pc *Context, values Values) error
}

// Name implements Step
func (s StepFunc) Name() string {
	return s.StepName
}

// Apply implements Step
func (s StepFunc) Apply(ctx context.Context, pc *Context, values Values) error {
	if s.Fn == nil {
		return nil
	}
	return s.Fn(ctx, pc, values)
}

// Failure is the error reported when a step aborts the chain
type Failure struct {
	Step    string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Step + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Kind returns the identity failure kind of the underlying error
func (f *Failure) Kind() identity.FailureKind {
	return identity.KindOf(f.Err)
}

// Fail creates a failure carrying a user facing message
func Fail(message string) error {
	return &Failure{Message: message}
}

// Pipeline is an ordered list of steps
type Pipeline struct {
	name   string
	steps  []Step
	logger identity.Logger
}

// Option customizes a pipeline
type Option func(*Pipeline)

// WithLogger overrides the logger
func WithLogger(logger identity.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline running steps in order
func New(name string, steps []Step, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:   name,
		steps:  append([]Step(nil), steps...),
		logger: identity.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Name returns the pipeline name
func (p *Pipeline) Name() string {
	return p.name
}

// Steps returns the step names in execution order
func (p *Pipeline) Steps() []string {
	out := make([]string, 0, len(p.steps))
	for _, s := range p.steps {
		out = append(out, s.Name())
	}
	return out
}

// Run applies every step in order. The first failing step stops the
// run and is returned as a *Failure.
func (p *Pipeline) Run(ctx context.Context, pc *Context, values Values) error {
	if pc == nil {
		pc = NewContext(nil)
	}

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			return &Failure{
				Step:    step.Name(),
				Message: "request cancelled",
				Err:     ctx.Err(),
			}
		default:
		}

		p.logger.Debug("pipeline %s: running step %s", p.name, step.Name())

		if err := step.Apply(ctx, pc, values); err != nil {
			failure := asFailure(step.Name(), err)
			p.logger.Warn("pipeline %s: step %s failed: %s", p.name, step.Name(), failure.Message)
			return failure
		}
	}

	return nil
}

func asFailure(step string, err error) *Failure {
	var failure *Failure
	if goerrors.As(err, &failure) {
		out := *failure
		if out.Step == "" {
			out.Step = step
		}
		return &out
	}

	return &Failure{
		Step:    step,
		Message: messageOf(err),
		Err:     err,
	}
}

func messageOf(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}
