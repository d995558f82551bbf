package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/config"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
	"shopnest-backend/internal/store/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testTokens() *Tokens {
	return NewTokens(config.AuthConfig{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := testTokens()
	u := &models.User{Role: models.RoleSeller}
	u.ID[0] = 1

	access, err := tokens.IssueAccess(u)
	require.NoError(t, err)
	claims, err := tokens.ParseAccess(access)
	require.NoError(t, err)
	assert.Equal(t, u.ID.Hex(), claims.UserID)
	assert.Equal(t, models.RoleSeller, claims.Role)

	// Access and refresh tokens are not interchangeable.
	_, err = tokens.ParseRefresh(access)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	r1, err := tokens.IssueRefresh(u)
	require.NoError(t, err)
	r2, err := tokens.IssueRefresh(u)
	require.NoError(t, err)
	assert.NotEqual(t, r1, r2)
	_, err = tokens.ParseRefresh(r1)
	assert.NoError(t, err)
}

func TestExpiredToken(t *testing.T) {
	tokens := testTokens()
	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := tokens.IssueAccess(&models.User{})
	require.NoError(t, err)

	_, err = tokens.ParseAccess(tok)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, "Token expired", apperr.Message(err))
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", h)
	assert.True(t, CheckPassword(h, "s3cret!"))
	assert.False(t, CheckPassword(h, "wrong"))
}

func TestBearer(t *testing.T) {
	assert.Equal(t, "abc", bearer("Bearer abc"))
	assert.Equal(t, "abc", bearer("bearer  abc "))
	assert.Equal(t, "", bearer("Basic abc"))
	assert.Equal(t, "", bearer("abc"))
}

func newRouter(tokens *Tokens, users store.Users) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if err := c.Errors.Last(); err != nil {
			c.JSON(apperr.Status(err.Err), gin.H{"message": apperr.Message(err.Err)})
		}
	})
	authed := r.Group("/", Authenticate(tokens, users))
	authed.GET("/me", func(c *gin.Context) {
		u, _ := CurrentUser(c)
		c.String(http.StatusOK, u.Username)
	})
	authed.GET("/seller", RequireRole(models.RoleSeller), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	tokens := testTokens()
	st := memstore.New()
	buyer := &models.User{Username: "bea", Email: "bea@example.com", Role: models.RoleBuyer}
	require.NoError(t, st.Users().Create(context.Background(), buyer))
	access, err := tokens.IssueAccess(buyer)
	require.NoError(t, err)
	r := newRouter(tokens, st.Users())

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: AccessCookie, Value: access})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "bea", w.Body.String())
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("buyer on seller route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/seller", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		require.NoError(t, st.Users().Delete(context.Background(), buyer.ID))
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

// unreachableUsers fails every lookup the way a dropped database connection does.
type unreachableUsers struct {
	store.Users
}

func (unreachableUsers) Get(context.Context, primitive.ObjectID) (*models.User, error) {
	return nil, errors.New("server selection timeout")
}

func TestAuthenticateStoreFailureIsNotUnauthorized(t *testing.T) {
	tokens := testTokens()
	st := memstore.New()
	u := &models.User{Username: "cy", Email: "cy@example.com", Role: models.RoleBuyer}
	require.NoError(t, st.Users().Create(context.Background(), u))
	access, err := tokens.IssueAccess(u)
	require.NoError(t, err)

	r := newRouter(tokens, unreachableUsers{st.Users()})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSessionCookies(t *testing.T) {
	tokens := testTokens()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/login", nil)

	SetSessionCookies(c, tokens, "a", "r", true)
	cookies := map[string]*http.Cookie{}
	for _, ck := range w.Result().Cookies() {
		cookies[ck.Name] = ck
	}
	require.Len(t, cookies, 3)
	assert.True(t, cookies[AccessCookie].HttpOnly)
	assert.True(t, cookies[RefreshCookie].HttpOnly)
	assert.False(t, cookies[CheckCookie].HttpOnly)
	assert.Equal(t, "true", cookies[CheckCookie].Value)
	assert.Equal(t, http.SameSiteNoneMode, cookies[AccessCookie].SameSite)
	assert.Equal(t, 60, cookies[AccessCookie].MaxAge)
}
