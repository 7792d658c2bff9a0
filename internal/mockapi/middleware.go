package mockapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/auth"
)

// Context keys set by JWTAuth
const (
	ctxUserID = "userID"
	ctxEmail  = "email"
	ctxRole   = "role"
)

// RoleAdmin may mutate resources; every other role is read-only
const RoleAdmin = "admin"

// HandleAPIError maps domain errors onto the error envelope
func HandleAPIError(c *gin.Context, err error) {
	var validationErr *validationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, NewErrorResponse(HandleValidationError(validationErr.err)))
	case errors.Is(err, apperrors.ErrResourceNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(NewErrorDetail(ErrorCodeResourceNotFound, "Resource not found")))
	case errors.Is(err, apperrors.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, NewErrorResponse(NewErrorDetail(ErrorCodeForbidden, "Permission denied")))
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(NewErrorDetail(ErrorCodeInvalidCredentials, "Invalid email or password")))
	case errors.Is(err, apperrors.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(NewErrorDetail(ErrorCodeExpiredToken, "Token expired")))
	case errors.Is(err, apperrors.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(NewErrorDetail(ErrorCodeInvalidToken, "Invalid token")))
	case errors.Is(err, apperrors.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, NewErrorResponse(NewErrorDetail(ErrorCodeValidationFailed, "Validation failed")))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(NewErrorDetail(ErrorCodeInternalServer, "Internal server error")))
	}
}

type validationError struct{ err error }

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return apperrors.ErrValidationFailed }

// AuthMiddleware for authentication and authorization
type AuthMiddleware struct {
	jwtService *auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// JWTAuth rejects requests without a valid bearer token with 401
func (m *AuthMiddleware) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			detail := NewErrorDetail(ErrorCodeUnauthorized, "Authentication required").
				WithDetails("Authorization header missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewErrorResponse(detail))
			return
		}

		claims, err := m.jwtService.ValidateToken(tokenString)
		if err != nil {
			code := ErrorCodeInvalidToken
			details := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				code = ErrorCodeExpiredToken
				details = "Token has expired"
			}
			detail := NewErrorDetail(code, "Authentication failed").WithDetails(details)
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewErrorResponse(detail))
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxEmail, claims.Email)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RoleRequired answers 403 unless JWTAuth stored the required role
func (m *AuthMiddleware) RoleRequired(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != requiredRole {
			detail := NewErrorDetail(ErrorCodeForbidden, "Access denied").
				WithDetails("You don't have sufficient permissions for this operation")
			c.AbortWithStatusJSON(http.StatusForbidden, NewErrorResponse(detail))
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request
func RequestLogger(lg zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := lg.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = lg.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("requestId", c.GetHeader("X-Request-ID")).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}
