package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-market-auth"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const testSigningKey = "test-signing-key-0123456789"

func testConfig() *auth.EnvConfig {
	return &auth.EnvConfig{
		SigningKey:         testSigningKey,
		SigningMethod:      "HS256",
		Issuer:             "market-auth",
		Audience:           []string{"market-web"},
		AccessTokenMinutes: 15,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		ContextKey:         "user",
		TokenLookup:        "header:Authorization",
		AuthScheme:         "Bearer",
		DefaultRole:        auth.RoleCustomer,
	}
}

// newTestDB returns a private in-memory database with the schema applied.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	return newTestClient(t).DB()
}

// newTestClient returns a migrated persistence client over a private
// in-memory database.
func newTestClient(t *testing.T) *persistence.Client {
	t.Helper()

	cfg := auth.PersistenceConfig{
		DSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		Driver:      "sqlite",
		PingTimeout: time.Second,
	}

	client, err := auth.OpenDatabase(context.Background(), cfg, nopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.DB().Close() })

	return client
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

func (c *capturingSink) Count(eventType auth.ActivityEventType) int {
	n := 0
	for _, t := range c.Types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// fixture wires the real repositories, seeded roles and an authenticator
// running on a controllable clock.
type fixture struct {
	db     *bun.DB
	repo   auth.RepositoryManager
	auther *auth.Auther
	sink   *capturingSink
	clock  *testClock
	cfg    *auth.EnvConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	db := newTestDB(t)
	clock := newTestClock()
	repo := auth.NewRepositoryManager(db, auth.WithUsersClock(clock.Now))
	require.NoError(t, auth.Seed(ctx, repo, nopLogger{}))

	cfg := testConfig()
	sink := &capturingSink{}

	aggregator := auth.NewClaimsAggregator(repo.Profiles(), repo.Roles()).WithLogger(nopLogger{})
	provider := auth.NewUserProvider(repo.Users()).WithLogger(nopLogger{})

	auther, err := auth.NewAuthenticator(provider, repo.Users(), aggregator, cfg)
	require.NoError(t, err)

	auther = auther.
		WithLogger(nopLogger{}).
		WithClock(clock.Now).
		WithActivitySink(sink)

	return &fixture{
		db:     db,
		repo:   repo,
		auther: auther,
		sink:   sink,
		clock:  clock,
		cfg:    cfg,
	}
}

func (f *fixture) register(t *testing.T, email, password string, roles ...string) *auth.User {
	t.Helper()
	user, err := auth.NewRegisterUserHandler(f.repo, f.cfg.GetDefaultRole()).
		Register(context.Background(), auth.RegisterUserMessage{
			Email:     email,
			Password:  password,
			FirstName: "Test",
			LastName:  "User",
			Roles:     roles,
		})
	require.NoError(t, err)
	return user
}
