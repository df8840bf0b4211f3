package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-market-auth/middleware/jwtware"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator guards routes: bearer token validation plus policy
// checks. Missing or invalid tokens answer 401, denied policies 403.
type RouteAuthenticator struct {
	cfg          Config
	validator    TokenValidator
	authorizer   *Authorizer
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(validator TokenValidator, authorizer *Authorizer, cfg Config) (*RouteAuthenticator, error) {
	if validator == nil {
		return nil, errors.New("token validator is required", errors.CategoryValidation).
			WithTextCode(TextCodeInvalidConfig)
	}

	if authorizer == nil {
		authorizer = NewAuthorizer(nil, nil)
	}

	a := &RouteAuthenticator{
		cfg:        cfg,
		validator:  validator,
		authorizer: authorizer,
		Logger:     defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	a.Logger = normalizeLogger(logger)
	return a
}

// ProtectedRoute validates the bearer token and stores the claims under
// the configured context key and in the request context.
func (a *RouteAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		ErrorHandler:   a.authErrorHandler,
		TokenValidator: jwtValidator{validator: a.validator},
		AuthScheme:     a.cfg.GetAuthScheme(),
		ContextKey:     a.cfg.GetContextKey(),
		TokenLookup:    a.cfg.GetTokenLookup(),
		ContextEnricher: func(c context.Context, claims jwtware.AuthClaims) context.Context {
			if ac, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(c, ac)
			}
			return c
		},
	})
}

// RequirePolicy authorizes the caller against policyName. It must run
// after ProtectedRoute, or on its own where anonymous callers get 401.
func (a *RouteAuthenticator) RequirePolicy(policyName string) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			claims, _ := GetRouterClaims(c, a.cfg.GetContextKey())
			principal := PrincipalFromClaims(claims)

			decision, err := a.authorizer.Authorize(c.Context(), principal, policyName)
			if err != nil {
				return a.ErrorHandler(c, err)
			}

			if err := AuthorizationError(principal, decision); err != nil {
				a.Logger.Info("policy denied", "policy", policyName, "user_id", principal.Subject)
				return a.ErrorHandler(c, err)
			}

			return hf(c)
		}
	}
}

// RequirePermission is RequirePolicy for "Permission:<permission>"
func (a *RouteAuthenticator) RequirePermission(permission string) router.MiddlewareFunc {
	return a.RequirePolicy(PermissionPolicy(permission))
}

func (a *RouteAuthenticator) authErrorHandler(c router.Context, err error) error {
	a.Logger.Debug("token rejected", "error", err, "malformed", IsMalformedError(err))
	return a.ErrorHandler(c, ErrTokenInvalid)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth:
		return c.JSON(router.StatusUnauthorized, ErrorResponse{Message: messageUnauthorized, Code: richErr.TextCode})
	case errors.CategoryAuthz:
		return c.JSON(router.StatusForbidden, ErrorResponse{Message: "Forbidden", Code: richErr.TextCode})
	default:
		return c.JSON(router.StatusInternalServerError, ErrorResponse{Message: messageInternal})
	}
}

// jwtValidator narrows TokenValidator to the middleware's claims interface
type jwtValidator struct {
	validator TokenValidator
}

func (v jwtValidator) Validate(token string) (jwtware.AuthClaims, error) {
	claims, err := v.validator.Validate(token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
