// Package auth issues and checks the JWTs behind the session cookies and
// provides the gin middleware that guards authenticated routes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/config"
	"shopnest-backend/internal/models"
)

type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
	jwt.StandardClaims
}

// Tokens signs access and refresh tokens with separate secrets.
type Tokens struct {
	accessSecret  []byte
	refreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	now           func() time.Time
}

func NewTokens(cfg config.AuthConfig) *Tokens {
	return &Tokens{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// IssueAccess returns a short-lived token carrying the user's role.
func (t *Tokens) IssueAccess(u *models.User) (string, error) {
	return t.sign(t.accessSecret, Claims{
		UserID: u.ID.Hex(),
		Role:   u.Role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  t.now().Unix(),
			ExpiresAt: t.now().Add(t.AccessTTL).Unix(),
		},
	})
}

// IssueRefresh returns a long-lived token. Each one gets a unique ID so a
// rotated token never equals the one it replaces.
func (t *Tokens) IssueRefresh(u *models.User) (string, error) {
	return t.sign(t.refreshSecret, Claims{
		UserID: u.ID.Hex(),
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			IssuedAt:  t.now().Unix(),
			ExpiresAt: t.now().Add(t.RefreshTTL).Unix(),
		},
	})
}

func (t *Tokens) sign(secret []byte, c Claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}

func (t *Tokens) ParseAccess(token string) (*Claims, error) {
	return parse(token, t.accessSecret)
}

func (t *Tokens) ParseRefresh(token string) (*Claims, error) {
	return parse(token, t.refreshSecret)
}

func parse(token string, secret []byte) (*Claims, error) {
	if token == "" {
		return nil, apperr.Unauthorized("Unauthorized request")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperr.Wrap(apperr.ErrUnauthorized, "Token expired", err)
		}
		return nil, apperr.Wrap(apperr.ErrUnauthorized, "Invalid token", err)
	}
	return claims, nil
}

func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
