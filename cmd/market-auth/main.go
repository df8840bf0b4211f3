package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-market-auth"
	"github.com/goliatone/go-market-auth/activitymap"
)

type App struct {
	cfg        *auth.EnvConfig
	logger     *auth.SlogLogger
	db         *bun.DB
	repo       auth.RepositoryManager
	auther     *auth.Auther
	routeAuth  *auth.RouteAuthenticator
	registry   *prometheus.Registry
	activities auth.ActivitySink
	srv        router.Server[*fiber.App]
}

func main() {
	ctx := context.Background()

	cfg, err := auth.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	app := &App{
		cfg:    cfg,
		logger: auth.NewSlogLogger("market-auth", cfg.LogLevel),
	}

	if cfg.LogLevel == "debug" {
		redacted := *cfg
		redacted.SigningKey = "***"
		fmt.Println(print.MaybePrettyJSON(redacted))
	}

	if err := WithPersistence(ctx, app); err != nil {
		app.logger.Error("persistence setup failed", "error", err)
		os.Exit(1)
	}
	defer app.db.Close()

	if err := WithAuth(app); err != nil {
		app.logger.Error("auth setup failed", "error", err)
		os.Exit(1)
	}

	WithHTTPServer(app)
	Routes(app)

	app.logger.Info("listening", "addr", cfg.HTTPAddr)
	app.srv.Serve(cfg.HTTPAddr)

	sig := WaitExitSignal()
	app.logger.Info("shutting down", "signal", sig.String())
}

func WithPersistence(ctx context.Context, app *App) error {
	client, err := auth.OpenDatabase(ctx, app.cfg.Persistence, app.logger)
	if err != nil {
		return err
	}

	if report := client.Report(); report != nil && !report.IsZero() {
		app.logger.Info("migrations applied", "report", report.String())
	}

	app.db = client.DB()
	app.repo = auth.NewRepositoryManager(app.db)
	app.repo.MustValidate()

	if app.cfg.SeedDefaults {
		if err := auth.Seed(ctx, app.repo, app.logger); err != nil {
			return err
		}
	}

	return nil
}

func WithAuth(app *App) error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector())

	metrics := auth.NewMetricsSink(app.registry)
	app.activities = auth.MultiActivitySink{
		metrics,
		activitymap.AsActivitySink(func(n activitymap.Normalized) {
			app.logger.Info("activity",
				"verb", n.Verb,
				"actor_id", n.ActorID,
				"object_type", n.ObjectType,
				"object_id", n.ObjectID,
			)
		}),
	}

	users := app.repo.Users()
	aggregator := auth.NewClaimsAggregator(app.repo.Profiles(), app.repo.Roles()).
		WithLogger(app.logger)

	auther, err := auth.NewAuthenticator(auth.NewUserProvider(users).WithLogger(app.logger), users, aggregator, app.cfg)
	if err != nil {
		return err
	}
	app.auther = auther.
		WithLogger(app.logger).
		WithActivitySink(app.activities)

	policies := auth.NewStaticPolicyRegistry().
		Register("Authenticated", auth.AuthenticatedRequirement{}).
		Register("AdminOnly", auth.RoleRequirement{Roles: []string{auth.RoleAdmin}})

	handler := auth.NewPermissionHandler().
		WithLogger(app.logger).
		WithActivitySink(app.activities)

	authorizer := auth.NewAuthorizer(auth.NewPermissionPolicyResolver(policies), handler).
		WithLogger(app.logger)

	routeAuth, err := auth.NewHTTPAuthenticator(app.auther.TokenService(), authorizer, app.cfg)
	if err != nil {
		return err
	}
	app.routeAuth = routeAuth.WithLogger(app.logger)

	return nil
}

func WithHTTPServer(app *App) {
	app.srv = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		f := router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:       "market-auth",
			UnescapePath:  true,
			StrictRouting: false,
		}))
		f.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})))
		return f
	})
}

func Routes(app *App) {
	r := app.srv.Router()

	protected := app.routeAuth.ProtectedRoute()

	controller := auth.NewAuthController(
		auth.WithControllerAuther(app.auther),
		auth.WithControllerRegistrar(
			auth.NewRegisterUserHandler(app.repo, app.cfg.GetDefaultRole()).
				WithLogger(app.logger).
				WithActivitySink(app.activities),
		),
		auth.WithControllerLogger(app.logger),
		auth.WithControllerContextKey(app.cfg.GetContextKey()),
	)
	auth.RegisterAuthRoutes(r, controller, protected)

	r.Get("/admin/users",
		protected(app.routeAuth.RequirePolicy("Permission:users.manage")(AdminUsersIndex(app))),
	)

	r.Post("/products",
		protected(app.routeAuth.RequirePermission("products.create")(ProductCreate(app))),
	)

	r.Get("/admin/dashboard",
		protected(app.routeAuth.RequirePolicy("AdminOnly")(func(ctx router.Context) error {
			return ctx.JSON(router.StatusOK, map[string]string{"status": "ok"})
		})),
	)
}

type userRecord struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func AdminUsersIndex(app *App) router.HandlerFunc {
	return func(ctx router.Context) error {
		var users []auth.User
		if err := app.db.NewSelect().
			Model(&users).
			Column("id", "email", "username").
			OrderExpr("email ASC").
			Scan(ctx.Context()); err != nil {
			app.logger.Error("list users failed", "error", err)
			return ctx.JSON(router.StatusInternalServerError, auth.ErrorResponse{Message: "Internal server error"})
		}

		out := make([]userRecord, 0, len(users))
		for _, u := range users {
			out = append(out, userRecord{ID: u.ID.String(), Email: u.Email, Username: u.Username})
		}
		return ctx.JSON(router.StatusOK, out)
	}
}

type productRequest struct {
	Name string `json:"name"`
}

func ProductCreate(app *App) router.HandlerFunc {
	return func(ctx router.Context) error {
		payload := new(productRequest)
		if err := ctx.Bind(payload); err != nil || payload.Name == "" {
			return ctx.JSON(router.StatusBadRequest, auth.ErrorResponse{Message: "Invalid payload"})
		}

		principal := auth.PrincipalFromContext(ctx.Context())
		app.logger.Info("product accepted", "name", payload.Name, "seller", principal.Subject)

		return ctx.JSON(http.StatusCreated, map[string]string{
			"name":   payload.Name,
			"seller": principal.Subject,
		})
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
