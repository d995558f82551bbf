package users

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/auth"
	"shopnest-backend/internal/mailer"
	"shopnest-backend/internal/models"
)

// Only the hash of a reset token is stored.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ForgotPassword emails a single-use reset link to the account owner.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "users.ForgotPassword")
	defer span.End()

	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("Email is required")
	}
	u, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	expires := s.now().Add(s.resetTTL)
	u.ResetPasswordToken = hashToken(token)
	u.ResetPasswordExpire = &expires
	if err := s.store.Users().Update(ctx, u); err != nil {
		return err
	}

	link := s.clientURL + "/password/reset/" + token
	err = s.mail.Send(ctx, mailer.Message{
		To:      u.Email,
		Subject: "ShopNest password recovery",
		Body: fmt.Sprintf("Hi %s,\n\nReset your password here:\n\n%s\n\nThe link expires in %s. "+
			"If you did not ask for a reset, ignore this email.\n", u.Username, link, s.resetTTL),
	})
	if err != nil {
		u.ResetPasswordToken = ""
		u.ResetPasswordExpire = nil
		if uerr := s.store.Users().Update(ctx, u); uerr != nil {
			s.log.Error("failed to clear reset token", map[string]interface{}{"userId": u.ID.Hex(), "error": uerr})
		}
		return apperr.Upstream("Failed to send password reset email", err)
	}
	s.log.Info("password reset requested", map[string]interface{}{"userId": u.ID.Hex()})
	return nil
}

// ResetPassword sets a new password using an emailed token. Existing
// sessions are ended.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) (*models.User, error) {
	if password != confirm {
		return nil, apperr.Validation("Passwords do not match")
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	u, err := s.store.Users().GetByResetToken(ctx, hashToken(token), s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, "Reset password token is invalid or has expired", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u.Password = hash
	u.ResetPasswordToken = ""
	u.ResetPasswordExpire = nil
	u.RefreshToken = ""
	if err := s.store.Users().Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
