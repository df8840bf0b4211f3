package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Roles     []string `json:"roles"`
	UseHashid bool     `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates a user with its profile and role
// memberships in one transaction.
type RegisterUserHandler struct {
	repo         RepositoryManager
	defaultRole  string
	logger       Logger
	activitySink ActivitySink
}

// NewRegisterUserHandler returns a handler assigning defaultRole when the
// message names no roles.
func NewRegisterUserHandler(repo RepositoryManager, defaultRole string) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:         repo,
		defaultRole:  defaultRole,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

// Execute runs the registration and discards the created user
func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	_, err := h.Register(ctx, event)
	return err
}

// Register runs the registration and returns the created user
func (h *RegisterUserHandler) Register(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		if user.Username, err = h.resolveUsername(ctx, tx, event); err != nil {
			return err
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(normalizeEmail(event.Email)); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			if goerrors.Is(err, ErrEmailAlreadyInUse) || goerrors.Is(err, ErrUsernameAlreadyInUse) {
				return err
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}

		if event.FirstName != "" || event.LastName != "" {
			profile := &Profile{
				UserID:    user.ID,
				FirstName: strings.TrimSpace(event.FirstName),
				LastName:  strings.TrimSpace(event.LastName),
			}
			if _, err := h.repo.Profiles().SaveTx(ctx, tx, profile); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create profile")
			}
		}

		roles := event.Roles
		if len(roles) == 0 && h.defaultRole != "" {
			roles = []string{h.defaultRole}
		}

		for _, role := range roles {
			if err := h.repo.Roles().AssignRoleTx(ctx, tx, user.ID, role); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not assign role").
					WithMetadata(map[string]any{"role": role})
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	identity := IdentityFromUser(user)
	recordActivity(ctx, h.activitySink, h.logger, time.Now(), ActivityEvent{
		EventType: ActivityEventRegistered,
		Actor:     actorFromIdentity(identity),
		UserID:    identity.ID(),
		Metadata: map[string]any{
			"email": user.Email,
		},
	})

	return user, nil
}

// maxUsernameSuffix bounds the numbered variants tried for a derived
// username before falling back to a random suffix
const maxUsernameSuffix = 20

// resolveUsername keeps an explicit username as given and lets RegisterTx
// reject it when taken. A username derived from the email gets a numeric
// suffix until it is free.
func (h *RegisterUserHandler) resolveUsername(ctx context.Context, tx bun.IDB, event RegisterUserMessage) (string, error) {
	if name := strings.TrimSpace(event.Username); name != "" {
		return name, nil
	}

	base := getUsername("", event.Email)
	candidate := base
	for i := 2; i <= maxUsernameSuffix+1; i++ {
		_, err := h.repo.Users().GetByUsernameTx(ctx, tx, candidate)
		if isRecordNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "could not check username")
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}

	return base + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8], nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
