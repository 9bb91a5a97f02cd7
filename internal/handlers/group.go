package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"alumni-service/internal/apperr"
	"alumni-service/internal/middleware"
	"alumni-service/internal/models"
	"alumni-service/internal/telemetry"
)

type groupService interface {
	CreateGroup(ctx context.Context, actor string, in models.NewGroup) (models.Group, error)
	ListPublicGroups(ctx context.Context) ([]models.Group, error)
	GetGroupDetails(ctx context.Context, groupID, actor string) (models.Group, error)
	JoinGroup(ctx context.Context, actor, groupID string) (models.JoinResult, error)
	CreatePost(ctx context.Context, actor, groupID, content string) (models.Post, error)
	ListPosts(ctx context.Context, actor, groupID string) ([]models.Post, error)
	ListMembers(ctx context.Context, actor, groupID string) ([]models.Membership, error)
}

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groups groupService
	audit  *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groups groupService, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groups: groups, audit: audit}
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name        string  `json:"name" binding:"required"`
		Description *string `json:"description"`
		IsPrivate   bool    `json:"is_private"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload", "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": apperr.KindInvalid})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), actorFromContext(c), models.NewGroup{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		h.respondError(c, "", err)
		return
	}

	h.emitAudit(c, "INFO", "Group created", group.ID)
	c.JSON(http.StatusCreated, group)
}

// ListGroups handles GET /groups and returns every public group.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.ListPublicGroups(c.Request.Context())
	if err != nil {
		h.respondError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup handles GET /groups/:group_id.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	group, err := h.groups.GetGroupDetails(c.Request.Context(), groupID, actorFromContext(c))
	if err != nil {
		h.respondError(c, groupID, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// JoinGroup handles POST /groups/:group_id/join.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	res, err := h.groups.JoinGroup(c.Request.Context(), actorFromContext(c), groupID)
	if err != nil {
		h.respondError(c, groupID, err)
		return
	}

	if res.AlreadyMember {
		c.JSON(http.StatusOK, gin.H{"message": "User is already a member of this group.", "already_member": true, "membership": res.Membership})
		return
	}
	h.emitAudit(c, "INFO", "Group joined", groupID)
	c.JSON(http.StatusCreated, gin.H{"message": "Successfully joined group", "already_member": false, "membership": res.Membership})
}

// CreatePost handles POST /groups/:group_id/posts.
func (h *GroupHandler) CreatePost(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload", groupID)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": apperr.KindInvalid})
		return
	}

	post, err := h.groups.CreatePost(c.Request.Context(), actorFromContext(c), groupID, req.Content)
	if err != nil {
		h.respondError(c, groupID, err)
		return
	}

	h.emitAudit(c, "INFO", "Group post created", groupID)
	c.JSON(http.StatusCreated, post)
}

// ListPosts handles GET /groups/:group_id/posts.
func (h *GroupHandler) ListPosts(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	posts, err := h.groups.ListPosts(c.Request.Context(), actorFromContext(c), groupID)
	if err != nil {
		h.respondError(c, groupID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// ListMembers handles GET /groups/:group_id/members.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	members, err := h.groups.ListMembers(c.Request.Context(), actorFromContext(c), groupID)
	if err != nil {
		h.respondError(c, groupID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *GroupHandler) respondError(c *gin.Context, groupID string, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnknown {
		kind = apperr.KindInternal
	}
	switch {
	case errors.Is(err, apperr.ErrForbidden):
		h.emitAudit(c, "ERROR", "not allowed", groupID)
	case errors.Is(err, apperr.ErrNotFound):
		h.emitAudit(c, "ERROR", "group not found", groupID)
	case kind == apperr.KindInternal, errors.Is(err, apperr.ErrUnavailable):
		h.emitAudit(c, "ERROR", "internal error", groupID)
		_ = c.Error(err)
	}
	c.JSON(kind.HTTPStatus(), gin.H{"error": apperr.Message(err), "kind": kind})
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text, groupID string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c), groupID)
}

func actorFromContext(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

func parseGroupID(c *gin.Context) (string, bool) {
	groupID := c.Param("group_id")
	if _, err := uuid.Parse(groupID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id", "kind": apperr.KindInvalid})
		return "", false
	}
	return groupID, true
}
