package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	// DefaultAdminEmail is the seeded administrator account
	DefaultAdminEmail = "admin@example.com"
	// DefaultAdminPassword is the seeded administrator password
	DefaultAdminPassword = "Qwerty-1!"
)

// DefaultRolePermissions lists the permission claims each seeded role holds
var DefaultRolePermissions = map[string][]string{
	RoleAdmin: {
		"users.manage",
		"products.create",
		"products.update",
		"products.delete",
		"stores.manage",
		"categories.manage",
		"profile.update.self",
	},
	RoleSeller: {
		"products.create",
		"products.update",
		"stores.manage",
		"profile.update.self",
	},
	RoleCustomer: {
		"orders.create",
		"profile.update.self",
	},
}

// Seed creates the default roles with their permissions and the admin
// account. Running it again is a no-op.
func Seed(ctx context.Context, repo RepositoryManager, logger Logger) error {
	logger = normalizeLogger(logger)

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, name := range []string{RoleAdmin, RoleSeller, RoleCustomer} {
			claims := make([]Claim, 0, len(DefaultRolePermissions[name]))
			for _, p := range DefaultRolePermissions[name] {
				claims = append(claims, PermissionClaim(p))
			}
			if _, err := repo.Roles().EnsureRoleTx(ctx, tx, name, claims...); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to seed role").
					WithMetadata(map[string]any{"role": name})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := repo.Users().GetByEmail(ctx, DefaultAdminEmail); err == nil {
		logger.Debug("seed admin already present")
		return nil
	} else if !isRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up admin")
	}

	_, err = NewRegisterUserHandler(repo, "").Register(ctx, RegisterUserMessage{
		Email:     DefaultAdminEmail,
		Username:  "admin",
		Password:  DefaultAdminPassword,
		FirstName: "Site",
		LastName:  "Admin",
		Roles:     []string{RoleAdmin},
		UseHashid: true,
	})
	if err != nil {
		return err
	}

	logger.Info("seeded admin account", "email", DefaultAdminEmail)
	return nil
}
