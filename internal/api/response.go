package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/logging"
)

// envelope is the body of every response, successful or not.
type envelope struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

func respond(c *gin.Context, status int, data interface{}, message string) error {
	c.JSON(status, envelope{StatusCode: status, Data: data, Message: message, Success: status < http.StatusBadRequest})
	return nil
}

// handlerFunc is a gin handler that reports failure by returning an error.
type handlerFunc func(c *gin.Context) error

func wrap(h handlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h(c); err != nil {
			_ = c.Error(err)
			c.Abort()
		}
	}
}

// errorHandler renders the last error recorded on the context.
func errorHandler(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		status := apperr.Status(last.Err)
		fields := map[string]interface{}{
			"requestId": c.GetString(requestIDKey),
			"method":    c.Request.Method,
			"path":      c.FullPath(),
			"status":    status,
			"error":     last.Err,
		}
		if status >= http.StatusInternalServerError {
			log.Error("request failed", fields)
		} else {
			log.Debug("request rejected", fields)
		}
		c.JSON(status, envelope{StatusCode: status, Data: nil, Message: apperr.Message(last.Err), Success: false})
	}
}

// recovery turns a panic into a 500 envelope.
func recovery(log logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered", map[string]interface{}{
			"requestId": c.GetString(requestIDKey),
			"path":      c.Request.URL.Path,
			"panic":     fmt.Sprint(recovered),
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal Server Error",
		})
	})
}

const (
	requestIDKey    = "requestId"
	requestIDHeader = "X-Request-ID"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// bindError turns a binding failure into a validation error with a
// readable message.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.Wrap(apperr.ErrValidation, "Invalid request body", err)
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Wrap(apperr.ErrValidation, strings.Join(msgs, "; "), err)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "numeric":
		return field + " must contain only digits"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte", "lt":
		return fmt.Sprintf("%s must be below %s", field, fe.Param())
	case statusTag:
		return field + " must be Processing, Shipped or Delivered"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
