package mockapi

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yigit/academydesk/internal/academy"
	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/auth"
	"github.com/yigit/academydesk/internal/pkg/helpers"
)

// Account is a user allowed to log in to the stub API
type Account struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
}

// AuthHandler serves the login endpoint
type AuthHandler struct {
	jwtService *auth.JWTService
	logger     zerolog.Logger

	mu       sync.RWMutex
	accounts map[string]Account
}

// NewAuthHandler creates an AuthHandler over accounts keyed by email
func NewAuthHandler(jwtService *auth.JWTService, accounts []Account, logger zerolog.Logger) *AuthHandler {
	byEmail := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		byEmail[strings.ToLower(a.Email)] = a
	}
	return &AuthHandler{jwtService: jwtService, accounts: byEmail, logger: logger}
}

// Login exchanges credentials for a token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAPIError(c, &validationError{err: err})
		return
	}

	h.mu.RLock()
	account, ok := h.accounts[strings.ToLower(req.Email)]
	h.mu.RUnlock()
	if !ok || !auth.CheckPassword(account.PasswordHash, req.Password) {
		h.logger.Warn().Str("email", req.Email).Msg("Failed login attempt")
		HandleAPIError(c, apperrors.ErrInvalidCredentials)
		return
	}

	token, expiresIn, err := h.jwtService.GenerateToken(auth.Subject{
		ID:    account.ID,
		Email: account.Email,
		Name:  account.Name,
		Role:  account.Role,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("email", req.Email).Msg("Failed to issue token")
		HandleAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, DataResponse{Data: LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: expiresIn,
		User: UserResponse{
			ID:    account.ID,
			Email: account.Email,
			Name:  account.Name,
			Role:  account.Role,
		},
	}})
}

// ResourceHandler serves CRUD for one collection
type ResourceHandler[T academy.Record] struct {
	repo   *Repository[T]
	logger zerolog.Logger
}

// NewResourceHandler creates a handler over repo
func NewResourceHandler[T academy.Record](repo *Repository[T], logger zerolog.Logger) *ResourceHandler[T] {
	return &ResourceHandler[T]{repo: repo, logger: logger}
}

// List returns every record
func (h *ResourceHandler[T]) List(c *gin.Context) {
	items, err := h.repo.List(c.Request.Context())
	if err != nil {
		HandleAPIError(c, err)
		return
	}

	page, size, ok := helpers.ParsePaginationParams(c)
	if !ok {
		c.JSON(http.StatusOK, DataResponse{Data: items})
		return
	}
	start, end := helpers.CalculateSliceIndices(page, size, len(items))
	c.JSON(http.StatusOK, PageResponse{
		Data:       items[start:end],
		Pagination: helpers.NewPaginationInfo(int64(len(items)), page, size),
	})
}

// Get returns one record
func (h *ResourceHandler[T]) Get(c *gin.Context) {
	item, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: item})
}

// Create stores a new record
func (h *ResourceHandler[T]) Create(c *gin.Context) {
	var item T
	if err := c.ShouldBindJSON(&item); err != nil {
		HandleAPIError(c, &validationError{err: err})
		return
	}
	created, err := h.repo.Create(c.Request.Context(), item)
	if err != nil {
		HandleAPIError(c, err)
		return
	}
	h.logger.Debug().Str("id", created.RecordID()).Str("path", c.FullPath()).Msg("Record created")
	c.JSON(http.StatusCreated, DataResponse{Data: created})
}

// Update replaces a record
func (h *ResourceHandler[T]) Update(c *gin.Context) {
	var item T
	if err := c.ShouldBindJSON(&item); err != nil {
		HandleAPIError(c, &validationError{err: err})
		return
	}
	updated, err := h.repo.Update(c.Request.Context(), c.Param("id"), item)
	if err != nil {
		HandleAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: updated})
}

// Delete removes a record
func (h *ResourceHandler[T]) Delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		HandleAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
