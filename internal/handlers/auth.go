package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/threaddit/backend/internal/auth"
	"github.com/emilythestrangee/threaddit/backend/internal/middleware"
	"github.com/emilythestrangee/threaddit/backend/internal/models"
	"github.com/emilythestrangee/threaddit/backend/internal/observability"
	"github.com/emilythestrangee/threaddit/backend/internal/repository"
)

type AuthHandler struct {
	users   repository.UserRepository
	tokens  TokenIssuer
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewAuthHandler(users repository.UserRepository, tokens TokenIssuer, metrics *observability.Metrics, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, metrics: metrics, logger: logger}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.RegisterRequest
	if !bindJSON(c, &input) {
		return
	}
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	// length limits apply to the stored values
	if !validate(c, &input) {
		return
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		serverError(c, h.logger, "failed to hash password", err)
		return
	}

	user := models.User{
		Username: input.Username,
		Email:    input.Email,
		Password: hashed,
	}
	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"message": "Username or email already exists"})
			return
		}
		serverError(c, h.logger, "failed to create user", err)
		return
	}

	h.respondWithToken(c, http.StatusCreated, &user)
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.LoginRequest
	if !bindJSON(c, &input) {
		return
	}

	user, err := h.users.FindByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if isNotFound(err) {
			h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
			return
		}
		serverError(c, h.logger, "failed to look up user", err)
		return
	}

	if !auth.CheckPassword(user.Password, input.Password) {
		h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}

	h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.respondWithToken(c, http.StatusOK, user)
}

// GetMe returns the current authenticated user
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
			return
		}
		serverError(c, h.logger, "failed to fetch user", err)
		return
	}

	c.JSON(http.StatusOK, user.Response())
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		serverError(c, h.logger, "failed to generate token", err)
		return
	}

	c.JSON(status, models.AuthResponse{
		Token: token,
		User:  user.Response(),
	})
}
