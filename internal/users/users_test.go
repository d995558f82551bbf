package users

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/auth"
	"shopnest-backend/internal/config"
	"shopnest-backend/internal/logging"
	"shopnest-backend/internal/mailer"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/ratelimit"
	"shopnest-backend/internal/store/memstore"
)

type mockImages struct {
	mock.Mock
}

func (m *mockImages) Upload(ctx context.Context, fh *multipart.FileHeader, folder string) (models.Image, error) {
	args := m.Called(ctx, fh, folder)
	return args.Get(0).(models.Image), args.Error(1)
}

func (m *mockImages) Destroy(ctx context.Context, publicID string) error {
	return m.Called(ctx, publicID).Error(0)
}

type outbox struct {
	sent []mailer.Message
	err  error
}

func (o *outbox) Send(_ context.Context, m mailer.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, m)
	return nil
}

type fixture struct {
	st     *memstore.Store
	svc    *Service
	images *mockImages
	mail   *outbox
	tokens *auth.Tokens
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:     memstore.New(),
		images: &mockImages{},
		mail:   &outbox{},
		tokens: auth.NewTokens(config.AuthConfig{
			AccessSecret:  "a",
			RefreshSecret: "r",
			AccessTTL:     time.Minute,
			RefreshTTL:    time.Hour,
		}),
	}
	f.svc = NewService(Deps{
		Store:     f.st,
		Tokens:    f.tokens,
		Images:    f.images,
		Limiter:   ratelimit.NewMemory(3, time.Minute),
		Mail:      f.mail,
		Log:       logging.Nop{},
		ClientURL: "https://shop.example/",
		ResetTTL:  15 * time.Minute,
	})
	return f
}

func (f *fixture) register(t *testing.T, email, role string) *models.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "user " + email,
		Email:    email,
		Password: "password1",
		Role:     role,
	}, nil)
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "  Ann@Example.COM ", "")
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, models.RoleBuyer, u.Role)
	assert.NotEqual(t, "password1", u.Password)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "again", Email: "ann@example.com", Password: "password1",
	}, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Register(context.Background(), RegisterInput{
		Username: "x", Email: "x@example.com", Password: "short",
	}, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Register(context.Background(), RegisterInput{
		Username: "x", Email: "x@example.com", Password: "password1", Role: "admin",
	}, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPasswordLengthLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{
		Username: "long", Email: "long@example.com", Password: strings.Repeat("a", 80),
	}, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))

	_, err = f.svc.Register(ctx, RegisterInput{
		Username: "edge", Email: "edge@example.com", Password: strings.Repeat("a", 72),
	}, nil)
	require.NoError(t, err)

	f.register(t, "gil@example.com", "")
	require.NoError(t, f.svc.ForgotPassword(ctx, "gil@example.com"))
	token := linkToken.FindStringSubmatch(f.mail.sent[0].Body)[1]
	long := strings.Repeat("b", 73)
	_, err = f.svc.ResetPassword(ctx, token, long, long)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRegisterWithAvatar(t *testing.T) {
	f := newFixture(t)
	fh := &multipart.FileHeader{Filename: "me.png"}
	f.images.On("Upload", mock.Anything, fh, "avatars").Return(models.Image{PublicID: "avatars/me", URL: "u"}, nil)

	u, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "me", Email: "me@example.com", Password: "password1",
	}, fh)
	require.NoError(t, err)
	assert.Equal(t, "avatars/me", u.Avatar.PublicID)
}

func TestLoginAndThrottle(t *testing.T) {
	f := newFixture(t)
	f.register(t, "bob@example.com", models.RoleSeller)
	ctx := context.Background()

	sess, err := f.svc.Login(ctx, "BOB@example.com", "password1", "10.0.0.1")
	require.NoError(t, err)
	claims, err := f.tokens.ParseAccess(sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSeller, claims.Role)

	stored, err := f.st.Users().Get(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.RefreshToken, stored.RefreshToken)

	for i := 0; i < 3; i++ {
		_, err = f.svc.Login(ctx, "bob@example.com", "wrong", "10.0.0.1")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	}
	_, err = f.svc.Login(ctx, "bob@example.com", "password1", "10.0.0.1")
	assert.ErrorIs(t, err, apperr.ErrTooManyRequests)

	// Another address is unaffected.
	_, err = f.svc.Login(ctx, "bob@example.com", "password1", "10.0.0.2")
	assert.NoError(t, err)

	_, err = f.svc.Login(ctx, "nobody@example.com", "password1", "10.0.0.3")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRefreshRotates(t *testing.T) {
	f := newFixture(t)
	f.register(t, "cy@example.com", "")
	ctx := context.Background()

	sess, err := f.svc.Login(ctx, "cy@example.com", "password1", "ip")
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.RefreshToken, next.RefreshToken)

	_, err = f.svc.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, f.svc.Logout(ctx, next.User))
	_, err = f.svc.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

var linkToken = regexp.MustCompile(`https://shop\.example/password/reset/([0-9a-f]+)`)

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "dee@example.com", "")
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	require.NoError(t, f.svc.ForgotPassword(ctx, "DEE@example.com"))
	require.Len(t, f.mail.sent, 1)
	m := linkToken.FindStringSubmatch(f.mail.sent[0].Body)
	require.Len(t, m, 2)
	token := m[1]

	stored, err := f.st.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, token, stored.ResetPasswordToken)
	assert.Equal(t, hashToken(token), stored.ResetPasswordToken)

	_, err = f.svc.ResetPassword(ctx, token, "newpassword", "different")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.ResetPassword(ctx, token, "newpassword", "newpassword")
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "dee@example.com", "newpassword", "ip")
	assert.NoError(t, err)

	// Tokens are single use.
	_, err = f.svc.ResetPassword(ctx, token, "another1", "another1")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.ErrorIs(t, f.svc.ForgotPassword(ctx, "ghost@example.com"), apperr.ErrNotFound)
}

func TestPasswordResetExpires(t *testing.T) {
	f := newFixture(t)
	f.register(t, "eve@example.com", "")
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	require.NoError(t, f.svc.ForgotPassword(ctx, "eve@example.com"))
	token := linkToken.FindStringSubmatch(f.mail.sent[0].Body)[1]

	now = now.Add(16 * time.Minute)
	_, err := f.svc.ResetPassword(ctx, token, "newpassword", "newpassword")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestForgotPasswordMailFailureClearsToken(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "fay@example.com", "")
	f.mail.err = errors.New("smtp down")

	err := f.svc.ForgotPassword(context.Background(), "fay@example.com")
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	stored, err := f.st.Users().Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ResetPasswordToken)
	assert.Nil(t, stored.ResetPasswordExpire)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "gus@example.com", "")
	f.register(t, "taken@example.com", "")
	ctx := context.Background()

	name := "Gus"
	got, err := f.svc.UpdateProfile(ctx, u, ProfileInput{Username: &name}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Gus", got.Username)
	assert.Equal(t, "gus@example.com", got.Email)

	email := "TAKEN@example.com"
	_, err = f.svc.UpdateProfile(ctx, u, ProfileInput{Email: &email}, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.register(t, "seller@example.com", models.RoleSeller)
	other := f.register(t, "other@example.com", models.RoleSeller)
	buyer := f.register(t, "buyer@example.com", "")

	mine := &models.Product{Name: "Mine", Owner: seller.ID, Images: []models.Image{{PublicID: "p/mine"}}}
	theirs := &models.Product{Name: "Theirs", Owner: other.ID}
	require.NoError(t, f.st.Products().Create(ctx, mine))
	require.NoError(t, f.st.Products().Create(ctx, theirs))

	item := func(p *models.Product) models.OrderItem {
		return models.OrderItem{ID: primitive.NewObjectID(), Product: p.ID, Quantity: 1, OrderStatus: models.StatusProcessing}
	}
	mixed := &models.Order{User: buyer.ID, OrderItems: []models.OrderItem{item(mine), item(theirs)}}
	onlyMine := &models.Order{User: buyer.ID, OrderItems: []models.OrderItem{item(mine)}}
	sellersOwn := &models.Order{User: seller.ID, OrderItems: []models.OrderItem{item(theirs)}}
	for _, o := range []*models.Order{mixed, onlyMine, sellersOwn} {
		require.NoError(t, f.st.Orders().Create(ctx, o))
	}

	f.images.On("Destroy", mock.Anything, "p/mine").Return(nil).Once()
	require.NoError(t, f.svc.Delete(ctx, seller.ID))
	f.images.AssertExpectations(t)

	_, err := f.st.Users().Get(ctx, seller.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.st.Products().Get(ctx, mine.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.st.Products().Get(ctx, theirs.ID)
	assert.NoError(t, err)

	got, err := f.st.Orders().Get(ctx, mixed.ID)
	require.NoError(t, err)
	require.Len(t, got.OrderItems, 1)
	assert.Equal(t, theirs.ID, got.OrderItems[0].Product)

	_, err = f.st.Orders().Get(ctx, onlyMine.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.st.Orders().Get(ctx, sellersOwn.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, seller.ID), apperr.ErrNotFound)
}
