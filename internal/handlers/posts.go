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

type PostHandler struct {
	posts   repository.PostRepository
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewPostHandler(posts repository.PostRepository, metrics *observability.Metrics, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, metrics: metrics, logger: logger}
}

// GetPosts returns every post, newest first, with authors and comments populated.
func (h *PostHandler) GetPosts(c *gin.Context) {
	posts, err := h.posts.List(c.Request.Context())
	if err != nil {
		serverError(c, h.logger, "failed to fetch posts", err)
		return
	}

	responses := make([]models.PostResponse, 0, len(posts))
	for i := range posts {
		responses = append(responses, posts[i].Response())
	}

	c.JSON(http.StatusOK, responses)
}

// GetPost returns a single post by ID
func (h *PostHandler) GetPost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
		return
	}

	post, err := h.posts.Get(c.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
			return
		}
		serverError(c, h.logger, "failed to fetch post", err)
		return
	}

	c.JSON(http.StatusOK, post.Response())
}

// CreatePost creates a new post (PROTECTED - requires authentication)
func (h *PostHandler) CreatePost(c *gin.Context) {
	authorID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "User not authenticated"})
		return
	}

	var input models.CreatePostRequest
	if !bindJSON(c, &input) {
		return
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "title is required"})
		return
	}

	post := models.Post{
		Title:    title,
		Body:     input.Body,
		AuthorID: authorID,
	}
	if err := h.posts.Create(c.Request.Context(), &post); err != nil {
		serverError(c, h.logger, "failed to create post", err)
		return
	}
	h.metrics.PostsCreatedTotal.Inc()

	c.JSON(http.StatusCreated, post.Response())
}

// Upvote toggles the caller's upvote (PROTECTED - requires authentication)
func (h *PostHandler) Upvote(c *gin.Context) {
	h.toggleVote(c, models.Upvote)
}

// Downvote toggles the caller's downvote (PROTECTED - requires authentication)
func (h *PostHandler) Downvote(c *gin.Context) {
	h.toggleVote(c, models.Downvote)
}

func (h *PostHandler) toggleVote(c *gin.Context, dir models.VoteType) {
	voterID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "User not authenticated"})
		return
	}

	postID, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Post not found"})
		return
	}

	post, err := h.posts.ToggleVote(c.Request.Context(), postID, voterID, dir)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Post not found"})
			return
		}
		serverError(c, h.logger, "failed to vote", err)
		return
	}

	h.metrics.VotesTotal.WithLabelValues(dir.String(), voteOf(post, voterID).String()).Inc()
	c.JSON(http.StatusOK, post.Response())
}

func voteOf(post *models.Post, userID uint) models.VoteType {
	for _, v := range post.Votes {
		if v.UserID == userID {
			return v.VoteType
		}
	}
	return models.NoVote
}
