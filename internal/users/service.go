// Package users handles accounts: registration, sessions, password reset,
// profile changes and account deletion.
package users

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/auth"
	"shopnest-backend/internal/logging"
	"shopnest-backend/internal/mailer"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/ratelimit"
	"shopnest-backend/internal/store"
)

const (
	minPasswordLen = 8
	// bcrypt refuses longer input.
	maxPasswordLen = 72
)

var tracer = otel.Tracer("shopnest-backend/internal/users")

// Images uploads avatars and removes images of deleted accounts.
type Images interface {
	Upload(ctx context.Context, file *multipart.FileHeader, folder string) (models.Image, error)
	Destroy(ctx context.Context, publicID string) error
}

type Service struct {
	store     store.Store
	tokens    *auth.Tokens
	images    Images
	limiter   ratelimit.Limiter
	mail      mailer.Sender
	log       logging.Logger
	clientURL string
	resetTTL  time.Duration
	now       func() time.Time
}

type Deps struct {
	Store     store.Store
	Tokens    *auth.Tokens
	Images    Images
	Limiter   ratelimit.Limiter
	Mail      mailer.Sender
	Log       logging.Logger
	ClientURL string
	ResetTTL  time.Duration
}

func NewService(d Deps) *Service {
	if d.Limiter == nil {
		d.Limiter = ratelimit.Disabled{}
	}
	return &Service{
		store:     d.Store,
		tokens:    d.Tokens,
		images:    d.Images,
		limiter:   d.Limiter,
		mail:      d.Mail,
		log:       d.Log,
		clientURL: strings.TrimRight(d.ClientURL, "/"),
		resetTTL:  d.ResetTTL,
		now:       time.Now,
	}
}

// Session is a logged-in user with a fresh token pair.
type Session struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkPassword(p string) error {
	if len(p) < minPasswordLen {
		return apperr.Validation("Password must be at least 8 characters")
	}
	if len(p) > maxPasswordLen {
		return apperr.Validation("Password must be at most 72 bytes")
	}
	return nil
}

// Register creates an account. The avatar is optional.
func (s *Service) Register(ctx context.Context, in RegisterInput, avatar *multipart.FileHeader) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "users.Register")
	defer span.End()

	u := &models.User{
		Username:  strings.TrimSpace(in.Username),
		Email:     normalizeEmail(in.Email),
		Role:      in.Role,
		CreatedAt: s.now(),
	}
	if u.Username == "" || u.Email == "" {
		return nil, apperr.Validation("Username and email are required")
	}
	switch u.Role {
	case "":
		u.Role = models.RoleBuyer
	case models.RoleBuyer, models.RoleSeller:
	default:
		return nil, apperr.Validation("Role must be buyer or seller")
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}
	if _, err := s.store.Users().GetByEmail(ctx, u.Email); err == nil {
		return nil, apperr.Conflict("User with this email already exists")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u.Password = hash

	if avatar != nil {
		img, err := s.images.Upload(ctx, avatar, "avatars")
		if err != nil {
			return nil, apperr.Upstream("Failed to upload avatar", err)
		}
		u.Avatar = img
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		s.destroy(ctx, u.Avatar)
		return nil, err
	}
	s.log.Info("user registered", map[string]interface{}{"userId": u.ID.Hex(), "role": u.Role})
	return u, nil
}

// Login checks the credentials and starts a session. Attempts are
// throttled per email and client IP.
func (s *Service) Login(ctx context.Context, email, password, clientIP string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "users.Login")
	defer span.End()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("Email and password are required")
	}
	key := email + "|" + clientIP
	if ok, retry := s.limiter.Allow(ctx, key); !ok {
		return nil, apperr.TooManyRequests("Too many login attempts, try again in " + retry.Round(time.Second).String())
	}

	u, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorized("Invalid email or password")
		}
		return nil, err
	}
	if !auth.CheckPassword(u.Password, password) {
		return nil, apperr.Unauthorized("Invalid email or password")
	}
	s.limiter.Reset(ctx, key)
	return s.startSession(ctx, u)
}

func (s *Service) startSession(ctx context.Context, u *models.User) (*Session, error) {
	access, err := s.tokens.IssueAccess(u)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(u)
	if err != nil {
		return nil, err
	}
	u.RefreshToken = refresh
	if err := s.store.Users().Update(ctx, u); err != nil {
		return nil, err
	}
	return &Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

// Logout forgets the user's refresh token.
func (s *Service) Logout(ctx context.Context, u *models.User) error {
	fresh, err := s.store.Users().Get(ctx, u.ID)
	if err != nil {
		return err
	}
	fresh.RefreshToken = ""
	return s.store.Users().Update(ctx, fresh)
}

// Refresh swaps a valid refresh token for a new token pair. A token that
// is not the user's current one is rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid refresh token")
	}
	u, err := s.store.Users().Get(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnauthorized, "Invalid refresh token", err)
	}
	if u.RefreshToken == "" || u.RefreshToken != refreshToken {
		return nil, apperr.Unauthorized("Refresh token is expired or used")
	}
	return s.startSession(ctx, u)
}

type ProfileInput struct {
	Username *string
	Email    *string
}

// UpdateProfile changes username, email and avatar. The old avatar is
// removed once the new one is saved.
func (s *Service) UpdateProfile(ctx context.Context, u *models.User, in ProfileInput, avatar *multipart.FileHeader) (*models.User, error) {
	next, err := s.store.Users().Get(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if name == "" {
			return nil, apperr.Validation("Username cannot be empty")
		}
		next.Username = name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email == "" {
			return nil, apperr.Validation("Email cannot be empty")
		}
		next.Email = email
	}
	old := next.Avatar
	if avatar != nil {
		img, err := s.images.Upload(ctx, avatar, "avatars")
		if err != nil {
			return nil, apperr.Upstream("Failed to upload avatar", err)
		}
		next.Avatar = img
	}
	if err := s.store.Users().Update(ctx, next); err != nil {
		if avatar != nil {
			s.destroy(ctx, next.Avatar)
		}
		return nil, err
	}
	if avatar != nil {
		s.destroy(ctx, old)
	}
	return next, nil
}

// Delete removes the account and everything hanging off it: the user's
// products, their line items in other buyers' orders (and orders left
// empty), the user's own orders and finally their images.
func (s *Service) Delete(ctx context.Context, userID primitive.ObjectID) error {
	ctx, span := tracer.Start(ctx, "users.Delete")
	defer span.End()

	var images []models.Image
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		u, err := s.store.Users().Get(ctx, userID)
		if err != nil {
			return err
		}
		owned, err := s.store.Products().ListByOwner(ctx, userID)
		if err != nil {
			return err
		}
		ids := make([]primitive.ObjectID, 0, len(owned))
		images = images[:0]
		images = append(images, u.Avatar)
		for _, p := range owned {
			ids = append(ids, p.ID)
			images = append(images, p.Images...)
		}
		if len(ids) > 0 {
			if err := s.store.Orders().PullProducts(ctx, ids); err != nil {
				return err
			}
			if err := s.store.Products().DeleteByOwner(ctx, userID); err != nil {
				return err
			}
		}
		if err := s.store.Orders().DeleteByUser(ctx, userID); err != nil {
			return err
		}
		return s.store.Users().Delete(ctx, userID)
	})
	if err != nil {
		return err
	}
	for _, img := range images {
		s.destroy(ctx, img)
	}
	s.log.Info("user deleted", map[string]interface{}{"userId": userID.Hex()})
	return nil
}

func (s *Service) destroy(ctx context.Context, img models.Image) {
	if img.PublicID == "" {
		return
	}
	if err := s.images.Destroy(ctx, img.PublicID); err != nil {
		s.log.Warn("failed to destroy image", map[string]interface{}{"publicId": img.PublicID, "error": err})
	}
}
