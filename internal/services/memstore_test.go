package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"alumni-service/internal/models"
	"alumni-service/internal/repositories"
)

// memStore mirrors the Postgres constraints: unique (group_id, user_id),
// membership and post foreign keys, and cascading deletes.
type memStore struct {
	mu      sync.Mutex
	groups  map[string]models.Group
	members map[string]map[string]models.Membership
	posts   []models.Post
	seq     int64
	now     func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		groups:  make(map[string]models.Group),
		members: make(map[string]map[string]models.Membership),
		now:     now,
	}
}

func (s *memStore) CreateGroup(_ context.Context, in models.NewGroup) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now()
	g := models.Group{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		CreatedBy:   in.CreatedBy,
		IsPrivate:   in.IsPrivate,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	s.groups[g.ID] = g
	return g, nil
}

func (s *memStore) DeleteGroup(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return repositories.ErrGroupNotFound
	}
	delete(s.groups, groupID)
	delete(s.members, groupID)
	kept := s.posts[:0]
	for _, p := range s.posts {
		if p.GroupID != groupID {
			kept = append(kept, p)
		}
	}
	s.posts = kept
	return nil
}

func (s *memStore) GetGroup(_ context.Context, groupID string) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return models.Group{}, repositories.ErrGroupNotFound
	}
	return g, nil
}

func (s *memStore) ListPublicGroups(_ context.Context) ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Group{}
	for _, g := range s.groups {
		if !g.IsPrivate {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memStore) AddMember(_ context.Context, groupID, userID string, role models.Role) (models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return models.Membership{}, repositories.ErrGroupNotFound
	}
	if _, ok := s.members[groupID][userID]; ok {
		return models.Membership{}, repositories.ErrDuplicateMembership
	}
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[string]models.Membership)
	}
	m := models.Membership{ID: uuid.NewString(), GroupID: groupID, UserID: userID, Role: role, JoinedAt: s.now()}
	s.members[groupID][userID] = m
	return m, nil
}

func (s *memStore) GetMembership(_ context.Context, groupID, userID string) (models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[groupID][userID]
	if !ok {
		return models.Membership{}, repositories.ErrMembershipNotFound
	}
	return m, nil
}

func (s *memStore) ListMembers(_ context.Context, groupID string) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Membership{}
	for _, m := range s.members[groupID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *memStore) DeleteOrphanGroups(_ context.Context, createdBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, g := range s.groups {
		if g.CreatedAt.Before(createdBefore) && len(s.members[id]) == 0 {
			delete(s.groups, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreatePost(_ context.Context, groupID, userID, content string) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return models.Post{}, repositories.ErrGroupNotFound
	}
	s.seq++
	ts := s.now()
	p := models.Post{ID: uuid.NewString(), Seq: s.seq, GroupID: groupID, UserID: userID, Content: content, CreatedAt: ts, UpdatedAt: ts}
	s.posts = append(s.posts, p)
	return p, nil
}

func (s *memStore) ListPosts(_ context.Context, groupID string) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Post{}
	for _, p := range s.posts {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq > out[j].Seq
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memStore) memberCount(groupID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members[groupID])
}

// txStore adds the atomic group-plus-founder path.
type txStore struct {
	*memStore
}

func (s txStore) CreateGroupWithFounder(ctx context.Context, in models.NewGroup) (models.Group, models.Membership, error) {
	g, err := s.CreateGroup(ctx, in)
	if err != nil {
		return models.Group{}, models.Membership{}, err
	}
	m, err := s.AddMember(ctx, g.ID, in.CreatedBy, models.RoleAdmin)
	if err != nil {
		return models.Group{}, models.Membership{}, err
	}
	return g, m, nil
}

var _ repositories.GroupRepository = (*memStore)(nil)
var _ repositories.GroupPostRepository = (*memStore)(nil)
var _ founderCreator = txStore{}
