package auth

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const migrationsDir = "data/sql/migrations"

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// RegisterModels makes the package models known to the persistence client
func RegisterModels() {
	persistence.RegisterModel((*User)(nil))
	persistence.RegisterModel((*Profile)(nil))
	persistence.RegisterModel((*Role)(nil))
}

// RegisterMigrations adds the embedded schema to client. Migrations run
// on the next client.Migrate call.
func RegisterMigrations(client *persistence.Client) error {
	sub, err := fs.Sub(GetMigrationsFS(), migrationsDir)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to open migrations")
	}

	client.RegisterDialectMigrations(
		sub,
		persistence.WithDialectSourceLabel(migrationsDir),
	)
	return nil
}

// OpenDatabase opens the sqlite database named by cfg, registers models
// and migrations and applies pending migrations.
func OpenDatabase(ctx context.Context, cfg PersistenceConfig, logger Logger) (*persistence.Client, error) {
	sqlDB, err := sql.Open(sqliteshim.ShimName, cfg.GetDSN())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open database").
			WithMetadata(map[string]any{"driver": cfg.GetDriver()})
	}
	// shared-cache sqlite only tolerates one writer connection
	sqlDB.SetMaxOpenConns(1)

	RegisterModels()

	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create persistence client")
	}
	client.SetLogger(normalizeLogger(logger))

	if err := RegisterMigrations(client); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if err := client.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to apply migrations")
	}

	return client, nil
}
