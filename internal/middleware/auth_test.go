package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"alumni-service/internal/auth"
	"alumni-service/internal/mocks"
)

func setupRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", handler, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey)})
	})
	return r
}

func doRequest(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddlewareSetsUserID(t *testing.T) {
	validator := new(mocks.TokenValidatorMock)
	validator.On("ValidateToken", mock.Anything, "tok").Return("u1", nil).Once()

	rec := doRequest(setupRouter(AuthMiddleware(validator)), "Bearer tok")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u1"}`, rec.Body.String())
	validator.AssertExpectations(t)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	validator := new(mocks.TokenValidatorMock)
	validator.On("ValidateToken", mock.Anything, "bad").Return("", auth.ErrInvalidToken).Once()
	r := setupRouter(AuthMiddleware(validator))

	for _, header := range []string{"", "Token abc", "Bearer", "Bearer    ", "Bearer bad"} {
		rec := doRequest(r, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
	validator.AssertExpectations(t)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	validator := new(mocks.TokenValidatorMock)
	validator.On("ValidateToken", mock.Anything, "tok").Return("u2", nil).Once()
	validator.On("ValidateToken", mock.Anything, "bad").Return("", auth.ErrInvalidToken).Once()
	r := setupRouter(OptionalAuthMiddleware(validator))

	rec := doRequest(r, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":""}`, rec.Body.String())

	rec = doRequest(r, "Bearer tok")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u2"}`, rec.Body.String())

	rec = doRequest(r, "Bearer bad")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	validator.AssertExpectations(t)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("bearer abc.def")
	require.True(t, ok)
	assert.Equal(t, "abc.def", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
}
