package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/auth"
	"shopnest-backend/internal/models"
	"shopnest-backend/internal/users"
)

type registerRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
	Role     string `json:"role" form:"role"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type profileRequest struct {
	Username *string `json:"username" form:"username"`
	Email    *string `json:"email" form:"email" binding:"omitempty,email"`
}

type resetRequest struct {
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// optionalFile returns the named upload or nil when none was sent.
func optionalFile(c *gin.Context, name string) (*multipart.FileHeader, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	fh, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, "Invalid "+name+" upload", err)
	}
	return fh, nil
}

func currentUser(c *gin.Context) (*models.User, error) {
	u, ok := auth.CurrentUser(c)
	if !ok {
		return nil, apperr.Unauthorized("Unauthorized request")
	}
	return u, nil
}

func objectID(raw, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("Invalid " + what + " id")
	}
	return id, nil
}

func (s *server) register(c *gin.Context) error {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		return bindError(err)
	}
	avatar, err := optionalFile(c, "avatar")
	if err != nil {
		return err
	}
	u, err := s.Users.Register(c.Request.Context(), users.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}, avatar)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, u, "User registered successfully")
}

func (s *server) login(c *gin.Context) error {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return bindError(err)
	}
	sess, err := s.Users.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		return err
	}
	auth.SetSessionCookies(c, s.Tokens, sess.AccessToken, sess.RefreshToken, s.Config.Auth.CookieSecure)
	return respond(c, http.StatusOK, sess, "User logged in successfully")
}

func (s *server) logout(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := s.Users.Logout(c.Request.Context(), u); err != nil {
		return err
	}
	auth.ClearSessionCookies(c, s.Config.Auth.CookieSecure)
	return respond(c, http.StatusOK, gin.H{}, "User logged out")
}

func (s *server) currentUser(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, u, "Current user fetched successfully")
}

func (s *server) refreshToken(c *gin.Context) error {
	token := auth.RefreshToken(c)
	if token == "" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = c.ShouldBindJSON(&body)
		token = body.RefreshToken
	}
	sess, err := s.Users.Refresh(c.Request.Context(), token)
	if err != nil {
		return err
	}
	auth.SetSessionCookies(c, s.Tokens, sess.AccessToken, sess.RefreshToken, s.Config.Auth.CookieSecure)
	return respond(c, http.StatusOK, sess, "Access token refreshed")
}

func (s *server) forgotPassword(c *gin.Context) error {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return bindError(err)
	}
	if err := s.Users.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		return err
	}
	return respond(c, http.StatusOK, gin.H{}, "Password reset email sent to "+req.Email)
}

func (s *server) resetPassword(c *gin.Context) error {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return bindError(err)
	}
	u, err := s.Users.ResetPassword(c.Request.Context(), c.Param("token"), req.Password, req.ConfirmPassword)
	if err != nil {
		return err
	}
	auth.ClearSessionCookies(c, s.Config.Auth.CookieSecure)
	return respond(c, http.StatusOK, u, "Password reset successfully")
}

func (s *server) updateProfile(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := c.ShouldBind(&req); err != nil {
		return bindError(err)
	}
	avatar, err := optionalFile(c, "avatar")
	if err != nil {
		return err
	}
	updated, err := s.Users.UpdateProfile(c.Request.Context(), u, users.ProfileInput{
		Username: req.Username,
		Email:    req.Email,
	}, avatar)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, updated, "Profile updated successfully")
}

func (s *server) deleteAccount(c *gin.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := s.Users.Delete(c.Request.Context(), u.ID); err != nil {
		return err
	}
	auth.ClearSessionCookies(c, s.Config.Auth.CookieSecure)
	return respond(c, http.StatusOK, gin.H{}, "Account deleted successfully")
}
