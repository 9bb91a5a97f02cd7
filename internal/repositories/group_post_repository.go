package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"alumni-service/internal/models"
)

const postColumns = `id, seq, group_id, user_id, content, created_at, updated_at`

// GroupPostRepository defines interactions for group posts.
type GroupPostRepository interface {
	CreatePost(ctx context.Context, groupID, userID, content string) (models.Post, error)
	ListPosts(ctx context.Context, groupID string) ([]models.Post, error)
}

// GroupPostRepo is a sqlx-backed implementation.
type GroupPostRepo struct {
	db *sqlx.DB
}

// NewGroupPostRepo constructs a GroupPostRepo.
func NewGroupPostRepo(db *sqlx.DB) *GroupPostRepo {
	return &GroupPostRepo{db: db}
}

// CreatePost persists a group post.
func (r *GroupPostRepo) CreatePost(ctx context.Context, groupID, userID, content string) (models.Post, error) {
	var post models.Post
	err := r.db.QueryRowxContext(ctx, `INSERT INTO group_posts (group_id, user_id, content) VALUES ($1, $2, $3) RETURNING `+postColumns,
		groupID, userID, content).StructScan(&post)
	if isPQError(err, foreignKeyViolation) {
		return models.Post{}, ErrGroupNotFound
	}
	return post, err
}

// ListPosts returns a group's posts newest first; equal timestamps keep reverse insertion order.
func (r *GroupPostRepo) ListPosts(ctx context.Context, groupID string) ([]models.Post, error) {
	posts := []models.Post{}
	err := r.db.SelectContext(ctx, &posts, `SELECT `+postColumns+` FROM group_posts WHERE group_id=$1 ORDER BY created_at DESC, seq DESC`, groupID)
	return posts, err
}
