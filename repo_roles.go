package auth

import (
	"context"
	"sort"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles stores roles, their claims, memberships and per-user claims.
type Roles interface {
	repository.Repository[*Role]
	ClaimStore

	GetByName(ctx context.Context, name string) (*Role, error)
	EnsureRoleTx(ctx context.Context, tx bun.IDB, name string, claims ...Claim) (*Role, error)
	AssignRoleTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, roleName string) error
	AddUserClaimTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, claim Claim) error
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &roles{
		Repository: repo,
		db:         db,
	}
}

func (r *roles) GetByName(ctx context.Context, name string) (*Role, error) {
	return r.getByNameTx(ctx, r.db, name)
}

func (r *roles) getByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"role": name,
				})
		}
		return nil, err
	}
	return record, nil
}

// EnsureRoleTx creates the role when missing and attaches any claim it
// does not hold yet.
func (r *roles) EnsureRoleTx(ctx context.Context, tx bun.IDB, name string, claims ...Claim) (*Role, error) {
	role, err := r.getByNameTx(ctx, tx, name)
	if err != nil {
		if !isRecordNotFound(err) {
			return nil, err
		}
		role = &Role{ID: uuid.New(), Name: name}
		if role, err = r.Repository.CreateTx(ctx, tx, role); err != nil {
			return nil, err
		}
	}

	var existing []RoleClaim
	if err := tx.NewSelect().
		Model(&existing).
		Where("?TableAlias.role_id = ?", role.ID).
		Scan(ctx); err != nil && !isRecordNotFound(err) {
		return nil, err
	}

	have := map[Claim]bool{}
	for _, rc := range existing {
		have[NewClaim(rc.ClaimType, rc.ClaimValue)] = true
	}

	for _, c := range claims {
		if have[c] {
			continue
		}
		have[c] = true
		record := &RoleClaim{
			ID:         uuid.New(),
			RoleID:     role.ID,
			ClaimType:  c.Type,
			ClaimValue: c.Value,
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return nil, err
		}
	}

	return role, nil
}

func (r *roles) AssignRoleTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, roleName string) error {
	role, err := r.getByNameTx(ctx, tx, roleName)
	if err != nil {
		return err
	}

	membership := &UserRoleMembership{UserID: userID, RoleID: role.ID}
	_, err = tx.NewInsert().
		Model(membership).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

func (r *roles) AddUserClaimTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, claim Claim) error {
	record := &UserClaim{
		ID:         uuid.New(),
		UserID:     userID,
		ClaimType:  claim.Type,
		ClaimValue: claim.Value,
	}
	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

func (r *roles) FindUserClaims(ctx context.Context, userID uuid.UUID) ([]Claim, error) {
	var records []UserClaim
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.claim_type ASC, ?TableAlias.claim_value ASC").
		Scan(ctx)
	if err != nil && !isRecordNotFound(err) {
		return nil, err
	}

	out := make([]Claim, 0, len(records))
	for _, rec := range records {
		out = append(out, NewClaim(rec.ClaimType, rec.ClaimValue))
	}
	return out, nil
}

// FindUserRoles returns memberships ordered by role name, each with its
// claims ordered by type then value.
func (r *roles) FindUserRoles(ctx context.Context, userID uuid.UUID) ([]RoleGrant, error) {
	var memberships []Role
	err := r.db.NewSelect().
		Model(&memberships).
		Join("JOIN user_roles AS ur ON ur.role_id = rl.id").
		Where("ur.user_id = ?", userID).
		OrderExpr("rl.name ASC").
		Scan(ctx)
	if err != nil && !isRecordNotFound(err) {
		return nil, err
	}

	if len(memberships) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.ID)
	}

	var roleClaims []RoleClaim
	err = r.db.NewSelect().
		Model(&roleClaims).
		Where("?TableAlias.role_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil && !isRecordNotFound(err) {
		return nil, err
	}

	sort.Slice(roleClaims, func(i, j int) bool {
		if roleClaims[i].ClaimType != roleClaims[j].ClaimType {
			return roleClaims[i].ClaimType < roleClaims[j].ClaimType
		}
		return roleClaims[i].ClaimValue < roleClaims[j].ClaimValue
	})

	byRole := map[uuid.UUID][]Claim{}
	for _, rc := range roleClaims {
		byRole[rc.RoleID] = append(byRole[rc.RoleID], NewClaim(rc.ClaimType, rc.ClaimValue))
	}

	grants := make([]RoleGrant, 0, len(memberships))
	for _, m := range memberships {
		grants = append(grants, RoleGrant{Name: m.Name, Claims: byRole[m.ID]})
	}

	return grants, nil
}
