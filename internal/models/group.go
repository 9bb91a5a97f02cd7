package models

import "time"

// Role is the standing a member holds within a group.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Group represents an alumni interest group.
type Group struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	IsPrivate   bool      `db:"is_private" json:"is_private"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NewGroup carries the caller-supplied fields of a group being created.
type NewGroup struct {
	Name        string
	Description *string
	IsPrivate   bool
	CreatedBy   string
}

// Membership is the join row granting a user standing within a group.
type Membership struct {
	ID       string    `db:"id" json:"id"`
	GroupID  string    `db:"group_id" json:"group_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// Post is a message published to a group by one of its members.
type Post struct {
	ID        string    `db:"id" json:"id"`
	Seq       int64     `db:"seq" json:"-"`
	GroupID   string    `db:"group_id" json:"group_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// JoinResult reports the membership produced by a join and whether it already existed.
type JoinResult struct {
	Membership    Membership `json:"membership"`
	AlreadyMember bool       `json:"already_member"`
}

// GroupEvent is emitted over WebSocket connections for groups.
type GroupEvent struct {
	Type string `json:"type"`
	Post *Post  `json:"post,omitempty"`
}
