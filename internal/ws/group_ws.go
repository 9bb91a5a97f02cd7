package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"alumni-service/internal/apperr"
	"alumni-service/internal/auth"
	"alumni-service/internal/middleware"
	"alumni-service/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// FeedAuthorizer decides whether a user may follow a group's posts.
type FeedAuthorizer interface {
	CanViewPosts(ctx context.Context, actor, groupID string) error
}

// GroupWebSocketHandler handles live group feed connections.
type GroupWebSocketHandler struct {
	hub        *Hub
	authorizer FeedAuthorizer
	validator  auth.TokenValidator
}

// NewGroupWebSocketHandler constructs a GroupWebSocketHandler.
func NewGroupWebSocketHandler(hub *Hub, authorizer FeedAuthorizer, validator auth.TokenValidator) *GroupWebSocketHandler {
	return &GroupWebSocketHandler{hub: hub, authorizer: authorizer, validator: validator}
}

// Handle authorizes, upgrades and registers a websocket connection for a group feed.
func (h *GroupWebSocketHandler) Handle(c *gin.Context) {
	groupID := c.Param("group_id")
	if _, err := uuid.Parse(groupID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id", "kind": apperr.KindInvalid})
		return
	}

	ctx, span := otel.Tracer("alumni-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	userID, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": apperr.KindUnauthenticated})
		return
	}

	if err := h.authorizer.CanViewPosts(ctx, userID, groupID); err != nil {
		kind := apperr.KindOf(err)
		c.JSON(kind.HTTPStatus(), gin.H{"error": apperr.Message(err), "kind": kind})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		GroupID:     groupID,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddGroupClient(groupID, conn, info)
	observability.IncWSActive("group")
	h.hub.publishWSEvent(info, "ws_connect", "")

	go func() {
		defer func() {
			h.hub.RemoveGroupClient(groupID, conn)
			conn.Close()
			observability.DecWSActive("group")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.hub.publishWSEvent(info, "ws_disconnect", err.Error())
				return
			}
		}
	}()
}
