package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/threaddit/backend/internal/auth"
	"github.com/emilythestrangee/threaddit/backend/internal/middleware"
	"github.com/emilythestrangee/threaddit/backend/internal/models"
	"github.com/emilythestrangee/threaddit/backend/internal/observability"
	"github.com/emilythestrangee/threaddit/backend/internal/repository/mock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	users   *mock.UserRepository
	posts   *mock.PostRepository
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := mock.NewUserRepository()
	posts := mock.NewPostRepository(users)
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)
	metrics := observability.NewMetrics()

	h := NewHandler(Deps{
		Users:   users,
		Posts:   posts,
		Tokens:  tokens,
		Metrics: metrics,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	r := gin.New()
	api := r.Group("/api")
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)
	api.GET("/posts", h.Post.GetPosts)
	api.GET("/posts/:id", h.Post.GetPost)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokens))
	protected.GET("/auth/me", h.Auth.GetMe)
	protected.POST("/posts", h.Post.CreatePost)
	protected.POST("/posts/:id/upvote", h.Post.Upvote)
	protected.POST("/posts/:id/downvote", h.Post.Downvote)
	protected.POST("/posts/:id/comments", h.Comment.AddComment)

	return &testEnv{router: r, users: users, posts: posts, tokens: tokens, metrics: metrics}
}

// do sends a request; a non-zero userID is sent as a bearer token.
func (e *testEnv) do(t *testing.T, method, path string, body any, userID uint) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := e.tokens.Issue(userID, "user")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) user(t *testing.T, name, password string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := &models.User{Username: name, Email: name + "@example.com", Password: hash}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) post(t *testing.T, author *models.User, title string) *models.Post {
	t.Helper()
	p := &models.Post{Title: title, Body: "body of " + title, AuthorID: author.ID}
	require.NoError(t, e.posts.Create(context.Background(), p))
	return p
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["message"]
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestBindingMessage_NonValidationError(t *testing.T) {
	assert.Equal(t, "Invalid request body", bindingMessage(assert.AnError))
}

// =============================================================================
// Posts
// =============================================================================

func TestCreatePost(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")

	w := env.do(t, http.MethodPost, "/api/posts", gin.H{"title": "Hello", "body": "World"}, alice.ID)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	post := decode[models.PostResponse](t, w)
	assert.NotZero(t, post.ID)
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "World", post.Body)
	assert.Equal(t, models.Author{ID: alice.ID, Username: "alice"}, post.Author)
	assert.Empty(t, post.Upvotes)
	assert.Empty(t, post.Downvotes)
	assert.Empty(t, post.Comments)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.PostsCreatedTotal))
}

func TestCreatePost_Validation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")

	tests := []struct {
		name string
		body any
	}{
		{"missing title", gin.H{"body": "x"}},
		{"blank title", gin.H{"title": "   "}},
		{"not json", "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/posts", tt.body, alice.ID)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, errorOf(t, w))
		})
	}
}

func TestCreatePost_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/posts", gin.H{"title": "Hello"}, 0)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, env.posts.Calls["Create"])
}

func TestGetPosts_NewestFirstAndPopulated(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")
	bob := env.user(t, "bob", "password1")
	first := env.post(t, alice, "first")
	second := env.post(t, bob, "second")
	require.NoError(t, env.posts.AddComment(context.Background(), &models.Comment{Text: "hi", PostID: first.ID, AuthorID: bob.ID}))

	w := env.do(t, http.MethodGet, "/api/posts", nil, 0)

	require.Equal(t, http.StatusOK, w.Code)
	posts := decode[[]models.PostResponse](t, w)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID)
	assert.Equal(t, "bob", posts[0].Author.Username)
	assert.Equal(t, first.ID, posts[1].ID)
	require.Len(t, posts[1].Comments, 1)
	assert.Equal(t, "bob", posts[1].Comments[0].Author.Username)
}

func TestGetPosts_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/posts", nil, 0)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestGetPost(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")
	p := env.post(t, alice, "first")

	w := env.do(t, http.MethodGet, "/api/posts/"+itoa(p.ID), nil, 0)

	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.PostResponse](t, w)
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, "alice", got.Author.Username)
}

func TestGetPost_NotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/posts/999", "/api/posts/abc", "/api/posts/0"} {
		w := env.do(t, http.MethodGet, path, nil, 0)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "Not found", errorOf(t, w))
	}
}

func TestGetPosts_RepositoryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.posts.Err = errors.New("connection refused")

	w := env.do(t, http.MethodGet, "/api/posts", nil, 0)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server error", errorOf(t, w))
}

// =============================================================================
// Votes
// =============================================================================

func TestUpvote_TwiceRestoresState(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")
	p := env.post(t, alice, "vote me")
	path := "/api/posts/" + itoa(p.ID) + "/upvote"

	w := env.do(t, http.MethodPost, path, nil, alice.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint{alice.ID}, decode[models.PostResponse](t, w).Upvotes)

	w = env.do(t, http.MethodPost, path, nil, alice.ID)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.PostResponse](t, w)
	assert.Empty(t, got.Upvotes)
	assert.Empty(t, got.Downvotes)
}

func TestUpvote_AfterDownvoteSwitches(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")
	bob := env.user(t, "bob", "password1")
	p := env.post(t, alice, "vote me")
	base := "/api/posts/" + itoa(p.ID)

	w := env.do(t, http.MethodPost, base+"/downvote", nil, bob.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint{bob.ID}, decode[models.PostResponse](t, w).Downvotes)

	w = env.do(t, http.MethodPost, base+"/upvote", nil, bob.ID)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.PostResponse](t, w)
	assert.Equal(t, []uint{bob.ID}, got.Upvotes)
	assert.Empty(t, got.Downvotes)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.VotesTotal.WithLabelValues("upvote", "upvote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.VotesTotal.WithLabelValues("downvote", "downvote")))
}

func TestVotes_IndependentPerUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")
	bob := env.user(t, "bob", "password1")
	p := env.post(t, alice, "vote me")
	base := "/api/posts/" + itoa(p.ID)

	env.do(t, http.MethodPost, base+"/upvote", nil, alice.ID)
	w := env.do(t, http.MethodPost, base+"/downvote", nil, bob.ID)

	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.PostResponse](t, w)
	assert.Equal(t, []uint{alice.ID}, got.Upvotes)
	assert.Equal(t, []uint{bob.ID}, got.Downvotes)
}

func TestVote_MissingPost(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")

	for _, path := range []string{"/api/posts/42/upvote", "/api/posts/42/downvote", "/api/posts/x/upvote"} {
		w := env.do(t, http.MethodPost, path, nil, alice.ID)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "Post not found", errorOf(t, w))
	}
}

func TestVote_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")
	p := env.post(t, alice, "vote me")

	w := env.do(t, http.MethodPost, "/api/posts/"+itoa(p.ID)+"/upvote", nil, 0)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, env.posts.Calls["ToggleVote"])
}

// =============================================================================
// Comments
// =============================================================================

func TestAddComment(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")
	bob := env.user(t, "bob", "password1")
	p := env.post(t, alice, "discuss")

	w := env.do(t, http.MethodPost, "/api/posts/"+itoa(p.ID)+"/comments", gin.H{"text": "great post"}, bob.ID)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	c := decode[models.CommentResponse](t, w)
	assert.NotZero(t, c.ID)
	assert.Equal(t, "great post", c.Text)
	assert.Equal(t, p.ID, c.PostID)
	assert.Equal(t, models.Author{ID: bob.ID, Username: "bob"}, c.Author)

	w = env.do(t, http.MethodGet, "/api/posts/"+itoa(p.ID), nil, 0)
	got := decode[models.PostResponse](t, w)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, c.ID, got.Comments[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CommentsCreatedTotal))
}

func TestAddComment_Errors(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")
	p := env.post(t, alice, "discuss")

	tests := []struct {
		name   string
		path   string
		body   any
		userID uint
		status int
	}{
		{"missing post", "/api/posts/999/comments", gin.H{"text": "hi"}, alice.ID, http.StatusNotFound},
		{"empty text", "/api/posts/" + itoa(p.ID) + "/comments", gin.H{"text": "  "}, alice.ID, http.StatusBadRequest},
		{"missing text", "/api/posts/" + itoa(p.ID) + "/comments", gin.H{}, alice.ID, http.StatusBadRequest},
		{"anonymous", "/api/posts/" + itoa(p.ID) + "/comments", gin.H{"text": "hi"}, 0, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body, tt.userID)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

// =============================================================================
// Auth
// =============================================================================

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username": "alice",
		"email":    "Alice@Example.com",
		"password": "password1",
	}, 0)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	registered := decode[models.AuthResponse](t, w)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "alice@example.com", registered.User.Email)

	w = env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "alice@example.com", "password": "password1"}, 0)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[models.AuthResponse](t, w)
	assert.Equal(t, registered.User.ID, login.User.ID)

	id, err := env.tokens.Verify(login.Token)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, id)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.LoginsTotal.WithLabelValues("success")))
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", "password1")

	w := env.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username": "alice",
		"email":    "another@example.com",
		"password": "password1",
	}, 0)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username": "al",
		"email":    "not-an-email",
		"password": "123",
	}, 0)

	require.Equal(t, http.StatusBadRequest, w.Code)
	msg := errorOf(t, w)
	assert.Contains(t, msg, "username must be at least 3 characters")
	assert.Contains(t, msg, "email must be a valid email")
	assert.Contains(t, msg, "password must be at least 6 characters")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", "password1")

	tests := []struct {
		name  string
		email string
		pass  string
	}{
		{"wrong password", "alice@example.com", "password2"},
		{"unknown email", "nobody@example.com", "password1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": tt.email, "password": tt.pass}, 0)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Invalid credentials", errorOf(t, w))
		})
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.LoginsTotal.WithLabelValues("failure")))
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "alice@example.com"}, 0)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "password is required", errorOf(t, w))
}

func TestGetMe(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", "password1")

	w := env.do(t, http.MethodGet, "/api/auth/me", nil, alice.ID)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[models.UserResponse](t, w)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "alice@example.com", me.Email)

	w = env.do(t, http.MethodGet, "/api/auth/me", nil, 999)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegister_TrimsBeforeLengthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username": "  ab ",
		"email":    "ab@example.com",
		"password": "password1",
	}, 0)

	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "username must be at least 3 characters", errorOf(t, w))

	_, err := env.users.FindByEmail(context.Background(), "ab@example.com")
	assert.Error(t, err)
}

func TestResponses_FieldNames(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "password1",
	}, 0)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	registered := decode[map[string]any](t, w)
	assert.Contains(t, registered, "token")
	user, ok := registered["user"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"_id", "username", "email", "createdAt"}, keysOf(user))

	var aliceID uint
	if id, ok := user["_id"].(float64); ok {
		aliceID = uint(id)
	}
	require.NotZero(t, aliceID)

	w = env.do(t, http.MethodPost, "/api/posts", gin.H{"title": "hello", "body": "world"}, aliceID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	post := decode[map[string]any](t, w)
	assert.ElementsMatch(t,
		[]string{"_id", "title", "body", "author", "upvotes", "downvotes", "comments", "createdAt"},
		keysOf(post))
	author, ok := post["author"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"_id", "username"}, keysOf(author))

	postID := uint(post["_id"].(float64))
	w = env.do(t, http.MethodPost, "/api/posts/"+itoa(postID)+"/comments", gin.H{"text": "first"}, aliceID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	comment := decode[map[string]any](t, w)
	assert.ElementsMatch(t, []string{"_id", "text", "author", "post", "createdAt"}, keysOf(comment))

	w = env.do(t, http.MethodGet, "/api/posts/999", nil, 0)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Not found"}`, w.Body.String())
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
