package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Authenticator is what the HTTP layer needs from Auther
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error)
	IssueTokenPair(ctx context.Context, identity Identity) (*TokenPair, error)
}

// AccountRegistrar creates new accounts
type AccountRegistrar interface {
	Register(ctx context.Context, msg RegisterUserMessage) (*User, error)
}

var _ Authenticator = (*Auther)(nil)
var _ AccountRegistrar = (*RegisterUserHandler)(nil)

const (
	messageInvalidCredentials = "Invalid credentials"
	messageUnauthorized       = "Unauthorized"
	messageInvalidPayload     = "Invalid payload"
	messageInternal           = "Internal server error"
)

// ClaimsResponse is the body of the claims endpoint
type ClaimsResponse struct {
	Subject   string    `json:"sub"`
	ExpiresAt time.Time `json:"expiresAt"`
	Claims    []Claim   `json:"claims"`
}

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController, protected router.MiddlewareFunc) {
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login")

	app.Post(controller.Routes.Refresh, controller.RefreshPost).
		SetName("auth.refresh")

	if controller.Registrar != nil {
		app.Post(controller.Routes.Register, controller.RegisterPost).
			SetName("auth.register")
	}

	if protected != nil {
		app.Get(controller.Routes.Claims, protected(controller.ClaimsGet)).
			SetName("auth.me.claims")
	}
}

type AuthControllerRoutes struct {
	Login    string
	Refresh  string
	Register string
	Claims   string
}

type AuthController struct {
	Debug      bool
	Logger     Logger
	Auther     Authenticator
	Registrar  AccountRegistrar
	Routes     *AuthControllerRoutes
	ContextKey string
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerAuther(auther Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerRegistrar(registrar AccountRegistrar) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Registrar = registrar
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithControllerContextKey(key string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if key != "" {
			c.ContextKey = key
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:     defLogger{},
		ContextKey: "user",
		Routes: &AuthControllerRoutes{
			Login:    "/login",
			Refresh:  "/refresh",
			Register: "/register",
			Claims:   "/me/claims",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshRequest payload. AccessToken may be expired or omitted.
type RefreshRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Validate will run validation rules
func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// RegisterRequest payload
type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Username, validation.Length(0, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login bind payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, ErrorResponse{Message: messageInvalidPayload})
	}

	status, body := a.login(ctx.Context(), *payload)
	return ctx.JSON(status, body)
}

func (a *AuthController) login(ctx context.Context, payload LoginRequest) (int, any) {
	if err := payload.Validate(); err != nil {
		return router.StatusBadRequest, validationResponse(err)
	}

	pair, err := a.Auther.Login(ctx, payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return router.StatusUnauthorized, ErrorResponse{Message: messageInvalidCredentials}
		}
		return a.internalError("login", err)
	}

	return router.StatusOK, pair
}

func (a *AuthController) RefreshPost(ctx router.Context) error {
	payload := new(RefreshRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("refresh bind payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, ErrorResponse{Message: messageInvalidPayload})
	}

	status, body := a.refresh(ctx.Context(), *payload)
	return ctx.JSON(status, body)
}

func (a *AuthController) refresh(ctx context.Context, payload RefreshRequest) (int, any) {
	if err := payload.Validate(); err != nil {
		return router.StatusBadRequest, validationResponse(err)
	}

	pair, err := a.Auther.Refresh(ctx, payload.AccessToken, payload.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenRejected) {
			return router.StatusUnauthorized, ErrorResponse{Message: messageUnauthorized}
		}
		return a.internalError("refresh", err)
	}

	return router.StatusOK, pair
}

func (a *AuthController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register bind payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, ErrorResponse{Message: messageInvalidPayload})
	}

	status, body := a.register(ctx.Context(), *payload)
	return ctx.JSON(status, body)
}

func (a *AuthController) register(ctx context.Context, payload RegisterRequest) (int, any) {
	if err := payload.Validate(); err != nil {
		return router.StatusBadRequest, validationResponse(err)
	}

	if a.Registrar == nil {
		return a.internalError("register", errors.New("registration is not configured"))
	}

	user, err := a.Registrar.Register(ctx, RegisterUserMessage{
		Email:     payload.Email,
		Username:  payload.Username,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	if err != nil {
		for _, conflict := range []*goerrors.Error{ErrEmailAlreadyInUse, ErrUsernameAlreadyInUse} {
			if errors.Is(err, conflict) {
				return goerrors.CodeConflict, ErrorResponse{
					Message: conflict.Message,
					Code:    conflict.TextCode,
				}
			}
		}
		return a.internalError("register", err)
	}

	pair, err := a.Auther.IssueTokenPair(ctx, IdentityFromUser(user))
	if err != nil {
		return a.internalError("register issue tokens", err)
	}

	a.Logger.Info("registered user", "user_id", user.ID.String())

	return http.StatusCreated, pair
}

// ClaimsGet returns the caller's validated claims
func (a *AuthController) ClaimsGet(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.ContextKey)
	if !ok {
		return ctx.JSON(router.StatusUnauthorized, ErrorResponse{Message: messageUnauthorized})
	}

	return ctx.JSON(router.StatusOK, ClaimsResponse{
		Subject:   claims.Subject(),
		ExpiresAt: claims.Expires(),
		Claims:    claims.ClaimSet().Claims(),
	})
}

func (a *AuthController) internalError(op string, err error) (int, any) {
	a.Logger.Error("auth controller error", "op", op, "error", err)

	if a.Debug {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			a.Logger.Debug("auth controller error details", "details", print.MaybePrettyJSON(richErr.Metadata))
		}
	}

	status := StatusCode(err)
	if status < router.StatusBadRequest {
		status = router.StatusInternalServerError
	}
	return status, ErrorResponse{Message: messageInternal}
}

func validationResponse(err error) ErrorResponse {
	return ErrorResponse{
		Message: messageInvalidPayload,
		Fields:  FormatValidationErrorToMap(err),
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors by field
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, fieldErr := range verrs {
			if fieldErr != nil {
				out[field] = fieldErr.Error()
			}
		}
		return out
	}
	if err != nil {
		out["payload"] = err.Error()
	}
	return out
}
