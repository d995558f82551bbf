package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/store"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
	// CheckCookie is readable by the storefront so it can tell a session exists.
	CheckCookie = "checkToken"

	userKey = "user"
)

// Authenticate loads the user named by the access token from the cookie or
// the Authorization header. Failures are recorded with c.Error and abort
// the chain; the error middleware renders them.
func Authenticate(tokens *Tokens, users store.Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.ParseAccess(accessToken(c))
		if err != nil {
			fail(c, err)
			return
		}
		id, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			fail(c, apperr.Unauthorized("Invalid token"))
			return
		}
		u, err := users.Get(c.Request.Context(), id)
		if errors.Is(err, apperr.ErrNotFound) {
			fail(c, apperr.Wrap(apperr.ErrUnauthorized, "Invalid token", err))
			return
		}
		if err != nil {
			fail(c, err)
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// RequireRole lets only users with role through. Must run after Authenticate.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			fail(c, apperr.Unauthorized("Unauthorized request"))
			return
		}
		if u.Role != role {
			fail(c, apperr.Forbidden("Only a "+role+" can access this resource"))
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by Authenticate.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

func accessToken(c *gin.Context) string {
	if tok, err := c.Cookie(AccessCookie); err == nil && tok != "" {
		return tok
	}
	return bearer(c.GetHeader("Authorization"))
}

func bearer(header string) string {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// SetSessionCookies writes both tokens as httpOnly cookies plus the
// client-visible checkToken marker.
func SetSessionCookies(c *gin.Context, t *Tokens, access, refresh string, secure bool) {
	sameSite(c, secure)
	c.SetCookie(AccessCookie, access, int(t.AccessTTL.Seconds()), "/", "", secure, true)
	c.SetCookie(RefreshCookie, refresh, int(t.RefreshTTL.Seconds()), "/", "", secure, true)
	c.SetCookie(CheckCookie, "true", int(t.RefreshTTL.Seconds()), "/", "", secure, false)
}

func ClearSessionCookies(c *gin.Context, secure bool) {
	sameSite(c, secure)
	c.SetCookie(AccessCookie, "", -1, "/", "", secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", secure, true)
	c.SetCookie(CheckCookie, "", -1, "/", "", secure, false)
}

// Cross-site cookies need SameSite=None, which browsers only accept on
// secure cookies.
func sameSite(c *gin.Context, secure bool) {
	if secure {
		c.SetSameSite(http.SameSiteNoneMode)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
}

func RefreshToken(c *gin.Context) string {
	tok, _ := c.Cookie(RefreshCookie)
	return tok
}
