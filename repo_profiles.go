package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles is the one-to-one profile repository
type Profiles interface {
	repository.Repository[*Profile]
	ProfileStore

	SaveTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var _ Profiles = (*profiles)(nil)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.UserID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.UserID = id
			}
		},
		GetIdentifier: func() string {
			return "user_id"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

// FindProfile returns nil, nil when the user has no profile.
func (p *profiles) FindProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	record := &Profile{}
	err := p.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (p *profiles) SaveTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error) {
	_, err := tx.NewInsert().
		Model(profile).
		On("CONFLICT (user_id) DO UPDATE").
		Set("first_name = EXCLUDED.first_name").
		Set("last_name = EXCLUDED.last_name").
		Set("avatar_ref = EXCLUDED.avatar_ref").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return profile, nil
}
