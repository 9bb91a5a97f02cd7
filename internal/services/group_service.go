package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"alumni-service/internal/apperr"
	"alumni-service/internal/models"
	"alumni-service/internal/observability"
	"alumni-service/internal/repositories"
)

// Routing keys for group domain events.
const (
	RoutingGroupCreated  = "group_events.created"
	RoutingMemberJoined  = "group_events.member_joined"
	RoutingPostCreated   = "group_events.post_created"
	defaultCallTimeout   = 5 * time.Second
	compensationDeadline = 5 * time.Second
)

var tracer = otel.Tracer("alumni-service/services")

// EventPublisher publishes domain events for downstream notification workers.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// PostBroadcaster pushes freshly created posts to live subscribers of a group.
type PostBroadcaster interface {
	BroadcastGroupPost(groupID string, post models.Post)
}

// founderCreator is implemented by stores able to insert a group and its
// founder membership in one transaction.
type founderCreator interface {
	CreateGroupWithFounder(ctx context.Context, group models.NewGroup) (models.Group, models.Membership, error)
}

// GroupService gates every group-scoped transition behind membership, role
// and visibility checks. It keeps no mutable state of its own.
type GroupService struct {
	groups  repositories.GroupRepository
	posts   repositories.GroupPostRepository
	events  EventPublisher
	feed    PostBroadcaster
	timeout time.Duration
	now     func() time.Time
}

// Option configures a GroupService.
type Option func(*GroupService)

// WithEvents sets the domain event publisher.
func WithEvents(p EventPublisher) Option {
	return func(s *GroupService) { s.events = p }
}

// WithFeed sets the live post broadcaster.
func WithFeed(b PostBroadcaster) Option {
	return func(s *GroupService) { s.feed = b }
}

// WithTimeout bounds each persistence round trip.
func WithTimeout(d time.Duration) Option {
	return func(s *GroupService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the clock used by orphan repair.
func WithClock(now func() time.Time) Option {
	return func(s *GroupService) { s.now = now }
}

// NewGroupService constructs a GroupService over the given stores.
func NewGroupService(groups repositories.GroupRepository, posts repositories.GroupPostRepository, opts ...Option) *GroupService {
	s := &GroupService{
		groups:  groups,
		posts:   posts,
		timeout: defaultCallTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGroup creates a group owned by actor together with actor's admin membership.
func (s *GroupService) CreateGroup(ctx context.Context, actor string, in models.NewGroup) (models.Group, error) {
	ctx, span := tracer.Start(ctx, "groups.CreateGroup")
	group, err := s.createGroup(ctx, actor, in)
	s.finish(span, "create_group", err)
	return group, err
}

func (s *GroupService) createGroup(ctx context.Context, actor string, in models.NewGroup) (models.Group, error) {
	if actor == "" {
		return models.Group{}, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return models.Group{}, apperr.New(apperr.KindInvalid, "group name is required")
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		in.Description = nil
		if desc != "" {
			in.Description = &desc
		}
	}
	in.CreatedBy = actor

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if tx, ok := s.groups.(founderCreator); ok {
		group, _, err := tx.CreateGroupWithFounder(ctx, in)
		if err != nil {
			return models.Group{}, unavailable(err)
		}
		s.publish(ctx, RoutingGroupCreated, "group_created", group)
		return group, nil
	}

	group, err := s.groups.CreateGroup(ctx, in)
	if err != nil {
		return models.Group{}, unavailable(err)
	}
	if _, err := s.groups.AddMember(ctx, group.ID, actor, models.RoleAdmin); err != nil {
		log.Printf("integrity: founder membership insert failed group_id=%s user_id=%s: %v", group.ID, actor, err)
		s.compensateGroup(ctx, group.ID)
		return models.Group{}, apperr.Wrap(apperr.KindInternal, "group creation failed", err)
	}

	s.publish(ctx, RoutingGroupCreated, "group_created", group)
	return group, nil
}

// compensateGroup deletes a group whose founder membership could not be written.
// It runs once; a failure leaves the orphan to RepairOrphanGroups.
func (s *GroupService) compensateGroup(ctx context.Context, groupID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationDeadline)
	defer cancel()
	if err := s.groups.DeleteGroup(ctx, groupID); err != nil {
		log.Printf("integrity: compensating delete failed group_id=%s: %v", groupID, err)
		return
	}
	log.Printf("integrity: orphan group removed group_id=%s", groupID)
}

// ListPublicGroups returns all groups that are not private.
func (s *GroupService) ListPublicGroups(ctx context.Context) ([]models.Group, error) {
	ctx, span := tracer.Start(ctx, "groups.ListPublicGroups")
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	groups, err := s.groups.ListPublicGroups(ctx)
	if err != nil {
		err = unavailable(err)
	}
	s.finish(span, "list_public_groups", err)
	return groups, err
}

// GetGroupDetails returns the group regardless of its privacy or the actor's membership.
func (s *GroupService) GetGroupDetails(ctx context.Context, groupID, actor string) (models.Group, error) {
	ctx, span := tracer.Start(ctx, "groups.GetGroupDetails", trace.WithAttributes(attribute.String("group.id", groupID)))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	group, err := s.loadGroup(ctx, groupID)
	s.finish(span, "get_group", err)
	return group, err
}

// JoinGroup adds actor to a public group as a member. Joining twice is not an error.
func (s *GroupService) JoinGroup(ctx context.Context, actor, groupID string) (models.JoinResult, error) {
	ctx, span := tracer.Start(ctx, "groups.JoinGroup", trace.WithAttributes(attribute.String("group.id", groupID)))
	res, err := s.joinGroup(ctx, actor, groupID)
	if err == nil {
		span.SetAttributes(attribute.Bool("group.already_member", res.AlreadyMember))
	}
	s.finish(span, "join_group", err)
	return res, err
}

func (s *GroupService) joinGroup(ctx context.Context, actor, groupID string) (models.JoinResult, error) {
	if actor == "" {
		return models.JoinResult{}, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return models.JoinResult{}, err
	}
	if group.IsPrivate {
		return models.JoinResult{}, apperr.New(apperr.KindForbidden, "cannot join a private group without an invitation")
	}

	existing, err := s.groups.GetMembership(ctx, groupID, actor)
	switch {
	case err == nil:
		return models.JoinResult{Membership: existing, AlreadyMember: true}, nil
	case !errors.Is(err, repositories.ErrMembershipNotFound):
		return models.JoinResult{}, unavailable(err)
	}

	m, err := s.groups.AddMember(ctx, groupID, actor, models.RoleMember)
	switch {
	case errors.Is(err, repositories.ErrDuplicateMembership):
		// lost the race against a concurrent join for the same pair
		existing, err := s.groups.GetMembership(ctx, groupID, actor)
		if err != nil {
			return models.JoinResult{}, unavailable(err)
		}
		return models.JoinResult{Membership: existing, AlreadyMember: true}, nil
	case errors.Is(err, repositories.ErrGroupNotFound):
		return models.JoinResult{}, apperr.New(apperr.KindNotFound, "group not found")
	case err != nil:
		return models.JoinResult{}, unavailable(err)
	}

	s.publish(ctx, RoutingMemberJoined, "member_joined", m)
	return models.JoinResult{Membership: m}, nil
}

// CreatePost publishes content to a group on behalf of one of its members.
func (s *GroupService) CreatePost(ctx context.Context, actor, groupID, content string) (models.Post, error) {
	ctx, span := tracer.Start(ctx, "groups.CreatePost", trace.WithAttributes(attribute.String("group.id", groupID)))
	post, err := s.createPost(ctx, actor, groupID, content)
	s.finish(span, "create_post", err)
	return post, err
}

func (s *GroupService) createPost(ctx context.Context, actor, groupID, content string) (models.Post, error) {
	if actor == "" {
		return models.Post{}, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Post{}, apperr.New(apperr.KindInvalid, "content is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	member, err := s.isMember(ctx, groupID, actor)
	if err != nil {
		return models.Post{}, err
	}
	if !member {
		return models.Post{}, apperr.New(apperr.KindForbidden, "user is not a member of this group")
	}

	post, err := s.posts.CreatePost(ctx, groupID, actor, content)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		return models.Post{}, apperr.New(apperr.KindNotFound, "group not found")
	}
	if err != nil {
		return models.Post{}, unavailable(err)
	}

	if s.feed != nil {
		s.feed.BroadcastGroupPost(groupID, post)
	}
	s.publish(ctx, RoutingPostCreated, "post_created", post)
	return post, nil
}

// ListPosts returns a group's posts newest first when actor may see them.
func (s *GroupService) ListPosts(ctx context.Context, actor, groupID string) ([]models.Post, error) {
	ctx, span := tracer.Start(ctx, "groups.ListPosts", trace.WithAttributes(attribute.String("group.id", groupID)))
	posts, err := s.listPosts(ctx, actor, groupID)
	s.finish(span, "list_posts", err)
	return posts, err
}

func (s *GroupService) listPosts(ctx context.Context, actor, groupID string) ([]models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.authorizeView(ctx, actor, groupID); err != nil {
		return nil, err
	}
	posts, err := s.posts.ListPosts(ctx, groupID)
	if err != nil {
		return nil, unavailable(err)
	}
	return posts, nil
}

// ListMembers returns a group's memberships under the same visibility rule as posts.
func (s *GroupService) ListMembers(ctx context.Context, actor, groupID string) ([]models.Membership, error) {
	ctx, span := tracer.Start(ctx, "groups.ListMembers", trace.WithAttributes(attribute.String("group.id", groupID)))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var members []models.Membership
	err := s.authorizeView(ctx, actor, groupID)
	if err == nil {
		members, err = s.groups.ListMembers(ctx, groupID)
		if err != nil {
			err = unavailable(err)
		}
	}
	s.finish(span, "list_members", err)
	return members, err
}

// CanViewPosts reports, as an error, whether actor may read the group's posts.
func (s *GroupService) CanViewPosts(ctx context.Context, actor, groupID string) error {
	ctx, span := tracer.Start(ctx, "groups.CanViewPosts", trace.WithAttributes(attribute.String("group.id", groupID)))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.authorizeView(ctx, actor, groupID)
	s.finish(span, "view_feed", err)
	return err
}

// authorizeView lets members through; everyone else only into public groups.
func (s *GroupService) authorizeView(ctx context.Context, actor, groupID string) error {
	if actor != "" {
		member, err := s.isMember(ctx, groupID, actor)
		if err != nil {
			return err
		}
		if member {
			return nil
		}
	}
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.IsPrivate {
		return apperr.New(apperr.KindForbidden, "cannot view posts in a private group without being a member")
	}
	return nil
}

// RepairOrphanGroups deletes groups left without any membership for longer than grace.
func (s *GroupService) RepairOrphanGroups(ctx context.Context, grace time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.groups.DeleteOrphanGroups(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, unavailable(err)
	}
	if removed > 0 {
		log.Printf("integrity: orphan repair removed groups=%d grace=%s", removed, grace)
	}
	return removed, nil
}

// RunOrphanRepair calls RepairOrphanGroups every interval until ctx is done.
func (s *GroupService) RunOrphanRepair(ctx context.Context, interval, grace time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RepairOrphanGroups(ctx, grace); err != nil {
				log.Printf("orphan repair failed: %v", err)
			}
		}
	}
}

func (s *GroupService) loadGroup(ctx context.Context, groupID string) (models.Group, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		return models.Group{}, apperr.New(apperr.KindNotFound, "group not found")
	}
	if err != nil {
		return models.Group{}, unavailable(err)
	}
	return group, nil
}

func (s *GroupService) isMember(ctx context.Context, groupID, userID string) (bool, error) {
	_, err := s.groups.GetMembership(ctx, groupID, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repositories.ErrMembershipNotFound):
		return false, nil
	default:
		return false, unavailable(err)
	}
}

func (s *GroupService) publish(ctx context.Context, routingKey, name string, payload any) {
	if s.events == nil {
		return
	}
	envelope := observability.EventEnvelope{EventType: "group_events", EventName: name, Payload: payload}
	if err := s.events.Publish(ctx, routingKey, envelope); err != nil {
		observability.IncAMQPPublishError()
		log.Printf("group event publish failed routing_key=%s: %v", routingKey, err)
	}
}

func (s *GroupService) finish(span trace.Span, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
	}
	span.SetAttributes(attribute.String("policy.outcome", outcome))
	span.End()
	observability.ObservePolicyDecision(operation, outcome)
}

func unavailable(err error) error {
	return apperr.Wrap(apperr.KindUnavailable, "persistence unavailable", err)
}
