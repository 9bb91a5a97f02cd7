package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"alumni-service/internal/auth"
	"alumni-service/internal/models"
	"alumni-service/internal/repositories"
	"alumni-service/internal/telemetry"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, group models.NewGroup) (models.Group, error) {
	args := m.Called(ctx, group)
	var created models.Group
	if val := args.Get(0); val != nil {
		created = val.(models.Group)
	}
	return created, args.Error(1)
}

func (m *GroupRepositoryMock) DeleteGroup(ctx context.Context, groupID string) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ListPublicGroups(ctx context.Context) ([]models.Group, error) {
	args := m.Called(ctx)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID, userID string, role models.Role) (models.Membership, error) {
	args := m.Called(ctx, groupID, userID, role)
	var membership models.Membership
	if val := args.Get(0); val != nil {
		membership = val.(models.Membership)
	}
	return membership, args.Error(1)
}

func (m *GroupRepositoryMock) GetMembership(ctx context.Context, groupID, userID string) (models.Membership, error) {
	args := m.Called(ctx, groupID, userID)
	var membership models.Membership
	if val := args.Get(0); val != nil {
		membership = val.(models.Membership)
	}
	return membership, args.Error(1)
}

func (m *GroupRepositoryMock) ListMembers(ctx context.Context, groupID string) ([]models.Membership, error) {
	args := m.Called(ctx, groupID)
	var members []models.Membership
	if val := args.Get(0); val != nil {
		members = val.([]models.Membership)
	}
	return members, args.Error(1)
}

func (m *GroupRepositoryMock) DeleteOrphanGroups(ctx context.Context, createdBefore time.Time) (int64, error) {
	args := m.Called(ctx, createdBefore)
	return args.Get(0).(int64), args.Error(1)
}

type GroupPostRepositoryMock struct {
	mock.Mock
}

func (m *GroupPostRepositoryMock) CreatePost(ctx context.Context, groupID, userID, content string) (models.Post, error) {
	args := m.Called(ctx, groupID, userID, content)
	var post models.Post
	if val := args.Get(0); val != nil {
		post = val.(models.Post)
	}
	return post, args.Error(1)
}

func (m *GroupPostRepositoryMock) ListPosts(ctx context.Context, groupID string) ([]models.Post, error) {
	args := m.Called(ctx, groupID)
	var posts []models.Post
	if val := args.Get(0); val != nil {
		posts = val.([]models.Post)
	}
	return posts, args.Error(1)
}

type GroupServiceMock struct {
	mock.Mock
}

func (m *GroupServiceMock) CreateGroup(ctx context.Context, actor string, in models.NewGroup) (models.Group, error) {
	args := m.Called(ctx, actor, in)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupServiceMock) ListPublicGroups(ctx context.Context) ([]models.Group, error) {
	args := m.Called(ctx)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupServiceMock) GetGroupDetails(ctx context.Context, groupID, actor string) (models.Group, error) {
	args := m.Called(ctx, groupID, actor)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupServiceMock) JoinGroup(ctx context.Context, actor, groupID string) (models.JoinResult, error) {
	args := m.Called(ctx, actor, groupID)
	var res models.JoinResult
	if val := args.Get(0); val != nil {
		res = val.(models.JoinResult)
	}
	return res, args.Error(1)
}

func (m *GroupServiceMock) CreatePost(ctx context.Context, actor, groupID, content string) (models.Post, error) {
	args := m.Called(ctx, actor, groupID, content)
	var post models.Post
	if val := args.Get(0); val != nil {
		post = val.(models.Post)
	}
	return post, args.Error(1)
}

func (m *GroupServiceMock) ListPosts(ctx context.Context, actor, groupID string) ([]models.Post, error) {
	args := m.Called(ctx, actor, groupID)
	var posts []models.Post
	if val := args.Get(0); val != nil {
		posts = val.([]models.Post)
	}
	return posts, args.Error(1)
}

func (m *GroupServiceMock) ListMembers(ctx context.Context, actor, groupID string) ([]models.Membership, error) {
	args := m.Called(ctx, actor, groupID)
	var members []models.Membership
	if val := args.Get(0); val != nil {
		members = val.([]models.Membership)
	}
	return members, args.Error(1)
}

func (m *GroupServiceMock) CanViewPosts(ctx context.Context, actor, groupID string) error {
	args := m.Called(ctx, actor, groupID)
	return args.Error(0)
}

// PublisherMock records audit and domain event publishes.
type PublisherMock struct {
	mock.Mock
}

// Publish records the routing key and envelope.
func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

// Close returns the configured error.
func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ repositories.GroupPostRepository = (*GroupPostRepositoryMock)(nil)
var _ auth.TokenValidator = (*TokenValidatorMock)(nil)
var _ telemetry.Publisher = (*PublisherMock)(nil)
var _ interface {
	CreateGroup(context.Context, string, models.NewGroup) (models.Group, error)
	ListPublicGroups(context.Context) ([]models.Group, error)
	GetGroupDetails(context.Context, string, string) (models.Group, error)
	JoinGroup(context.Context, string, string) (models.JoinResult, error)
	CreatePost(context.Context, string, string, string) (models.Post, error)
	ListPosts(context.Context, string, string) ([]models.Post, error)
	ListMembers(context.Context, string, string) ([]models.Membership, error)
	CanViewPosts(context.Context, string, string) error
} = (*GroupServiceMock)(nil)
