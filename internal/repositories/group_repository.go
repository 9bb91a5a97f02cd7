package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"alumni-service/internal/models"
)

var (
	ErrGroupNotFound       = errors.New("group not found")
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrDuplicateMembership = errors.New("membership already exists")
)

const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

const groupColumns = `id, name, description, created_by, is_private, created_at, updated_at`
const memberColumns = `id, group_id, user_id, role, joined_at`

// GroupRepository abstracts group and membership persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group models.NewGroup) (models.Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	ListPublicGroups(ctx context.Context) ([]models.Group, error)
	AddMember(ctx context.Context, groupID, userID string, role models.Role) (models.Membership, error)
	GetMembership(ctx context.Context, groupID, userID string) (models.Membership, error)
	ListMembers(ctx context.Context, groupID string) ([]models.Membership, error)
	DeleteOrphanGroups(ctx context.Context, createdBefore time.Time) (int64, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup inserts the group row only.
func (r *GroupRepo) CreateGroup(ctx context.Context, group models.NewGroup) (models.Group, error) {
	var created models.Group
	err := r.db.QueryRowxContext(ctx, `INSERT INTO groups (name, description, created_by, is_private) VALUES ($1, $2, $3, $4) RETURNING `+groupColumns,
		group.Name, group.Description, group.CreatedBy, group.IsPrivate).StructScan(&created)
	return created, err
}

// CreateGroupWithFounder creates a group and its founder's admin membership atomically.
func (r *GroupRepo) CreateGroupWithFounder(ctx context.Context, group models.NewGroup) (models.Group, models.Membership, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, models.Membership{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var created models.Group
	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (name, description, created_by, is_private) VALUES ($1, $2, $3, $4) RETURNING `+groupColumns,
		group.Name, group.Description, group.CreatedBy, group.IsPrivate).StructScan(&created); err != nil {
		return models.Group{}, models.Membership{}, err
	}

	var founder models.Membership
	if err = tx.QueryRowxContext(ctx, `INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3) RETURNING `+memberColumns,
		created.ID, group.CreatedBy, models.RoleAdmin).StructScan(&founder); err != nil {
		return models.Group{}, models.Membership{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, models.Membership{}, err
	}
	return created, founder, nil
}

// DeleteGroup removes a group; memberships and posts cascade.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ListPublicGroups returns every non-private group in creation order.
func (r *GroupRepo) ListPublicGroups(ctx context.Context) ([]models.Group, error) {
	groups := []models.Group{}
	err := r.db.SelectContext(ctx, &groups, `SELECT `+groupColumns+` FROM groups WHERE is_private = FALSE ORDER BY created_at ASC, id ASC`)
	return groups, err
}

// AddMember inserts a membership. A second membership for the same pair fails with
// ErrDuplicateMembership; a missing group fails with ErrGroupNotFound.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID string, role models.Role) (models.Membership, error) {
	var m models.Membership
	err := r.db.QueryRowxContext(ctx, `INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3) RETURNING `+memberColumns,
		groupID, userID, role).StructScan(&m)
	switch {
	case isPQError(err, uniqueViolation):
		return models.Membership{}, ErrDuplicateMembership
	case isPQError(err, foreignKeyViolation):
		return models.Membership{}, ErrGroupNotFound
	}
	return m, err
}

// GetMembership fetches the membership of userID in groupID.
func (r *GroupRepo) GetMembership(ctx context.Context, groupID, userID string) (models.Membership, error) {
	var m models.Membership
	err := r.db.GetContext(ctx, &m, `SELECT `+memberColumns+` FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrMembershipNotFound
	}
	return m, err
}

// ListMembers returns the memberships of a group, oldest first.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID string) ([]models.Membership, error) {
	members := []models.Membership{}
	err := r.db.SelectContext(ctx, &members, `SELECT `+memberColumns+` FROM group_members WHERE group_id=$1 ORDER BY joined_at ASC, id ASC`, groupID)
	return members, err
}

// DeleteOrphanGroups removes groups without any membership created before the cutoff.
func (r *GroupRepo) DeleteOrphanGroups(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups g WHERE g.created_at < $1 AND NOT EXISTS (SELECT 1 FROM group_members gm WHERE gm.group_id = g.id)`, createdBefore)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isPQError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
