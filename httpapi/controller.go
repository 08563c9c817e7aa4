// Package httpapi exposes the identity flows as a JSON API on fiber.
package httpapi

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/pipeline"
	"github.com/goliatone/go-print"
)

// Routes holds the paths served by the controller
type Routes struct {
	Register       string
	Approve        string
	Forgotten      string
	ForgottenReset string
}

// DefaultRoutes returns the default paths
func DefaultRoutes() Routes {
	return Routes{
		Register:       "/register",
		Approve:        "/approve",
		Forgotten:      "/forgotten",
		ForgottenReset: "/forgotten/reset",
	}
}

// Controller serves registration, approval and password recovery
type Controller struct {
	Debug  bool
	Logger identity.Logger
	Routes Routes
	Flows  pipeline.Flows

	registration     *pipeline.Pipeline
	approve          *pipeline.Pipeline
	forgottenRequest *pipeline.Pipeline
	forgottenCommit  *pipeline.Pipeline
}

// ControllerOption customizes the controller
type ControllerOption func(*Controller) *Controller

// WithDebug includes issued links in responses and dumps payloads
func WithDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// WithLogger overrides the logger
func WithLogger(logger identity.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithRoutes overrides the served paths
func WithRoutes(routes Routes) ControllerOption {
	return func(c *Controller) *Controller {
		c.Routes = routes
		return c
	}
}

// NewController builds the controller pipelines from flows
func NewController(flows pipeline.Flows, opts ...ControllerOption) *Controller {
	if flows.Lifecycle == nil {
		panic("missing Lifecycle in identity controller")
	}

	c := &Controller{
		Logger: identity.NopLogger{},
		Routes: DefaultRoutes(),
		Flows:  flows,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Flows.Logger == nil {
		c.Flows.Logger = c.Logger
	}

	c.registration = c.Flows.Registration()
	c.approve = c.Flows.Approve()
	c.forgottenRequest = c.Flows.ForgottenRequest()
	c.forgottenCommit = c.Flows.ForgottenCommit()

	return c
}

// Register mounts the controller routes on r
func Register(r fiber.Router, c *Controller) {
	r.Post(c.Routes.Register, c.RegistrationCreate).Name("identity.register")
	r.Get(c.Routes.Approve, c.ApproveGet).Name("identity.approve")
	r.Post(c.Routes.Forgotten, c.ForgottenPost).Name("identity.forgotten")
	r.Get(c.Routes.ForgottenReset, c.ForgottenResetGet).Name("identity.forgotten.reset.get")
	r.Post(c.Routes.ForgottenReset, c.ForgottenResetPost).Name("identity.forgotten.reset.post")
}

// RegistrationRequest is the registration payload
type RegistrationRequest struct {
	Login    string `form:"login" json:"login"`
	Email    string `form:"email" json:"email"`
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

func (r RegistrationRequest) values() pipeline.Values {
	return pipeline.Values{
		pipeline.KeyLogin:    r.Login,
		pipeline.KeyEmail:    r.Email,
		pipeline.KeyUsername: r.Username,
		pipeline.KeyPassword: r.Password,
	}
}

func (c *Controller) RegistrationCreate(ctx *fiber.Ctx) error {
	payload := new(RegistrationRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	pc := pipeline.NewContext(nil)
	if err := c.registration.Run(ctx.UserContext(), pc, payload.values()); err != nil {
		return c.fail(ctx, err)
	}

	id, _ := pc.Int64(pipeline.KeyIdentityID)
	res := fiber.Map{
		"id":    id,
		"login": pc.String(pipeline.KeyLogin),
		"email": pc.String(pipeline.KeyEmail),
	}
	if c.Debug {
		res[pipeline.KeyApproveLink] = pc.String(pipeline.KeyApproveLink)
	}

	return ctx.Status(fiber.StatusCreated).JSON(res)
}

func (c *Controller) ApproveGet(ctx *fiber.Ctx) error {
	values := pipeline.Values{pipeline.KeyHash: ctx.Query(pipeline.KeyHash)}

	if err := c.approve.Run(ctx.UserContext(), nil, values); err != nil {
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{"status": "approved"})
}

// ForgottenRequest is the password recovery request payload
type ForgottenRequest struct {
	Email string `form:"email" json:"email"`
}

func (c *Controller) ForgottenPost(ctx *fiber.Ctx) error {
	payload := new(ForgottenRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	pc := pipeline.NewContext(nil)
	values := pipeline.Values{pipeline.KeyEmail: payload.Email}
	if err := c.forgottenRequest.Run(ctx.UserContext(), pc, values); err != nil {
		return c.fail(ctx, err)
	}

	res := fiber.Map{"status": "sent"}
	if c.Debug {
		res[pipeline.KeyApproveLink] = pc.String(pipeline.KeyApproveLink)
	}

	return ctx.Status(fiber.StatusAccepted).JSON(res)
}

func (c *Controller) ForgottenResetGet(ctx *fiber.Ctx) error {
	valid, err := c.Flows.Lifecycle.IsValidForgotten(ctx.UserContext(), ctx.Query(pipeline.KeyHash))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(fiber.Map{"valid": valid})
}

// ResetRequest is the new password payload
type ResetRequest struct {
	Hash            string `form:"hash" json:"hash"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Hash, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 0), validation.By(pipeline.ValidateMaxBytes(identity.MaxPasswordLength))),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (c *Controller) ForgottenResetPost(ctx *fiber.Ctx) error {
	payload := new(ResetRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if payload.Hash == "" {
		payload.Hash = ctx.Query(pipeline.KeyHash)
	}

	if err := payload.Validate(); err != nil {
		return c.fail(ctx, goerrors.FromOzzoValidation(err, "invalid password reset data").
			WithTextCode("VALIDATION_ERROR").
			WithCode(goerrors.CodeBadRequest))
	}

	values := pipeline.Values{
		pipeline.KeyHash:     payload.Hash,
		pipeline.KeyPassword: payload.Password,
	}
	if err := c.forgottenCommit.Run(ctx.UserContext(), nil, values); err != nil {
		return c.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{"status": "updated"})
}

// ValidateStringEquals checks that the value equals str
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return validation.NewError("validation_equals", "values do not match")
		}
		return nil
	}
}

func (c *Controller) badRequest(ctx *fiber.Ctx, err error) error {
	c.Logger.Warn("identity api parse payload: %v", err)
	return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: "failed to parse request body",
		Code:  "BAD_REQUEST",
	})
}

func (c *Controller) fail(ctx *fiber.Ctx, err error) error {
	res := NewErrorResponse(err)

	if c.Debug {
		fmt.Println("======= IDENTITY API ERROR ======")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("=================================")
	}

	c.Logger.Info("identity api %s %s: %s", ctx.Method(), ctx.Path(), res.Error)
	return ctx.Status(res.Status).JSON(res)
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Status     int               `json:"-"`
	Error      string            `json:"error"`
	Code       string            `json:"code,omitempty"`
	Step       string            `json:"step,omitempty"`
	Validation map[string]string `json:"validation,omitempty"`
}

// NewErrorResponse maps err to a response body and HTTP status
func NewErrorResponse(err error) ErrorResponse {
	res := ErrorResponse{
		Status: http.StatusInternalServerError,
		Error:  "internal error",
	}

	var failure *pipeline.Failure
	if goerrors.As(err, &failure) {
		res.Step = failure.Step
		res.Error = failure.Message
		res.Status = http.StatusBadRequest
		if failure.Err == nil {
			return res
		}
		err = failure.Err
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return res
	}

	if res.Step == "" || res.Error == "" {
		res.Error = richErr.Message
	}
	res.Code = richErr.TextCode
	res.Status = statusOf(richErr)
	if len(richErr.ValidationErrors) > 0 {
		res.Validation = richErr.ValidationMap()
	}

	// store failures never leak driver details
	if identity.KindOf(richErr) == identity.KindStoreError && richErr.TextCode == identity.TextCodeStoreError {
		res.Error = "internal error"
	}

	return res
}

func statusOf(err *goerrors.Error) int {
	if err.Code > 0 {
		return err.Code
	}
	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}
