package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/threaddit/backend/internal/middleware"
	"github.com/emilythestrangee/threaddit/backend/internal/models"
	"github.com/emilythestrangee/threaddit/backend/internal/observability"
	"github.com/emilythestrangee/threaddit/backend/internal/repository"
)

type CommentHandler struct {
	posts   repository.PostRepository
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewCommentHandler(posts repository.PostRepository, metrics *observability.Metrics, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{posts: posts, metrics: metrics, logger: logger}
}

// AddComment appends a comment to a post and returns it with its author.
func (h *CommentHandler) AddComment(c *gin.Context) {
	authorID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "User not authenticated"})
		return
	}

	postID, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Post not found"})
		return
	}

	var input models.CreateCommentRequest
	if !bindJSON(c, &input) {
		return
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "text is required"})
		return
	}

	comment := models.Comment{
		Text:     text,
		PostID:   postID,
		AuthorID: authorID,
	}
	if err := h.posts.AddComment(c.Request.Context(), &comment); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Post not found"})
			return
		}
		serverError(c, h.logger, "failed to create comment", err)
		return
	}
	h.metrics.CommentsCreatedTotal.Inc()

	c.JSON(http.StatusCreated, comment.Response())
}
