package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"alumni-service/internal/apperr"
	"alumni-service/internal/auth"
	"alumni-service/internal/mocks"
	"alumni-service/internal/models"
	"alumni-service/internal/observability"
)

const testGroupID = "8d7b1c52-3f0e-4a8e-9d43-2f8c6f1d7a11"

func TestHubAddAndRemoveGroupClient(t *testing.T) {
	hub := NewHub(nil)

	hub.AddGroupClient(testGroupID, nil, ConnInfo{})
	if hub.Subscribers(testGroupID) != 1 {
		t.Fatalf("expected group room to be created")
	}

	hub.RemoveGroupClient(testGroupID, nil)
	if len(hub.groupRooms) != 0 {
		t.Fatalf("expected group room to be removed")
	}
}

func TestBroadcastWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub(nil)
	hub.BroadcastGroupPost(testGroupID, models.Post{ID: "p1"})
	assert.Zero(t, hub.Subscribers(testGroupID))
}

func setupFeedServer(t *testing.T, hub *Hub, authorizer *mocks.GroupServiceMock, validator *mocks.TokenValidatorMock) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws/groups/:group_id", NewGroupWebSocketHandler(hub, authorizer, validator).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestGroupFeedReceivesBroadcastPost(t *testing.T) {
	hub := NewHub(nil)
	authorizer := new(mocks.GroupServiceMock)
	validator := new(mocks.TokenValidatorMock)
	validator.On("ValidateToken", mock.Anything, "tok").Return("u2", nil).Once()
	authorizer.On("CanViewPosts", mock.Anything, "u2", testGroupID).Return(nil).Once()
	srv := setupFeedServer(t, hub, authorizer, validator)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/groups/"+testGroupID+"?token=tok"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers(testGroupID) == 1 }, time.Second, 10*time.Millisecond)
	hub.BroadcastGroupPost(testGroupID, models.Post{ID: "p1", GroupID: testGroupID, UserID: "u1", Content: "hello"})

	var event models.GroupEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "post", event.Type)
	require.NotNil(t, event.Post)
	assert.Equal(t, "hello", event.Post.Content)

	validator.AssertExpectations(t)
	authorizer.AssertExpectations(t)
}

func TestGroupFeedRejects(t *testing.T) {
	hub := NewHub(nil)
	authorizer := new(mocks.GroupServiceMock)
	validator := new(mocks.TokenValidatorMock)
	validator.On("ValidateToken", mock.Anything, "bad").Return("", auth.ErrInvalidToken).Once()
	validator.On("ValidateToken", mock.Anything, "tok").Return("u3", nil).Once()
	authorizer.On("CanViewPosts", mock.Anything, "u3", testGroupID).
		Return(apperr.New(apperr.KindForbidden, "cannot view posts in a private group without being a member")).Once()
	srv := setupFeedServer(t, hub, authorizer, validator)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/groups/not-a-uuid?token=tok"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/ws/groups/"+testGroupID+"?token=bad"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer tok")
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/ws/groups/"+testGroupID), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Zero(t, hub.Subscribers(testGroupID))
	validator.AssertExpectations(t)
	authorizer.AssertExpectations(t)
}

func TestPublishWSEventEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	hub := NewHub(pub)
	info := ConnInfo{ConnID: "c1", GroupID: testGroupID, UserID: "u2", ConnectedAt: time.Now()}

	pub.On("Publish", mock.Anything, "ws_events.groups", mock.MatchedBy(func(env observability.EventEnvelope) bool {
		payload, ok := env.Payload.(map[string]interface{})
		if !ok || env.EventName != "ws_connect" {
			return false
		}
		ws := payload["ws"].(map[string]interface{})
		identity := payload["identity"].(map[string]interface{})
		return ws["resource_id"] == testGroupID && ws["conn_id"] == "c1" && identity["user_id"] == "u2"
	})).Return(nil).Once()

	hub.publishWSEvent(info, "ws_connect", "")
	pub.AssertExpectations(t)
}
