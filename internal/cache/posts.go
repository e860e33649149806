// Package cache keeps rendered post reads in redis in front of the
// post repository.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emilythestrangee/threaddit/backend/internal/models"
	"github.com/emilythestrangee/threaddit/backend/internal/repository"
)

const feedKey = "posts:feed"

func postKey(id uint) string {
	return fmt.Sprintf("post:%d", id)
}

// genKey holds the generation counter for a logical key. Entries are stored
// under entryKey(key, gen), so bumping the counter orphans every entry a
// slow reader may still write for the previous generation.
func genKey(key string) string {
	return key + ":gen"
}

func entryKey(key string, gen int64) string {
	return fmt.Sprintf("%s:v%d", key, gen)
}

// PostRepository is a cache-aside decorator over a repository.PostRepository.
// Reads fall through to the wrapped repository on a miss or on any redis
// error; writes go to the repository first and then bump the generation of
// the affected keys.
type PostRepository struct {
	repo   repository.PostRepository
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewPostRepository(repo repository.PostRepository, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *PostRepository {
	return &PostRepository{repo: repo, client: client, ttl: ttl, logger: logger}
}

func (c *PostRepository) List(ctx context.Context) ([]models.Post, error) {
	key, cacheable := c.versioned(ctx, feedKey)

	var posts []models.Post
	if cacheable && c.load(ctx, key, &posts) {
		return posts, nil
	}

	posts, err := c.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.store(ctx, key, posts)
	}
	return posts, nil
}

func (c *PostRepository) Get(ctx context.Context, id uint) (*models.Post, error) {
	key, cacheable := c.versioned(ctx, postKey(id))

	var post models.Post
	if cacheable && c.load(ctx, key, &post) {
		return &post, nil
	}

	p, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.store(ctx, key, p)
	}
	return p, nil
}

func (c *PostRepository) Create(ctx context.Context, post *models.Post) error {
	if err := c.repo.Create(ctx, post); err != nil {
		return err
	}
	c.invalidate(ctx, feedKey)
	return nil
}

func (c *PostRepository) ToggleVote(ctx context.Context, postID, userID uint, dir models.VoteType) (*models.Post, error) {
	post, err := c.repo.ToggleVote(ctx, postID, userID, dir)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, feedKey, postKey(postID))
	return post, nil
}

func (c *PostRepository) AddComment(ctx context.Context, comment *models.Comment) error {
	if err := c.repo.AddComment(ctx, comment); err != nil {
		return err
	}
	c.invalidate(ctx, feedKey, postKey(comment.PostID))
	return nil
}

// Ping reports whether redis is reachable.
func (c *PostRepository) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// versioned resolves key to the entry key of its current generation. It
// reports false when redis cannot be read, in which case the cache is skipped.
func (c *PostRepository) versioned(ctx context.Context, key string) (string, bool) {
	gen, err := c.client.Get(ctx, genKey(key)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		gen = 0
	case err != nil:
		c.logger.Warn("cache read failed", "key", genKey(key), "error", err)
		return "", false
	}
	return entryKey(key, gen), true
}

func (c *PostRepository) load(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.logger.Warn("cache delete failed", "key", key, "error", err)
		}
		return false
	}
	return true
}

func (c *PostRepository) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *PostRepository) invalidate(ctx context.Context, keys ...string) {
	pipe := c.client.Pipeline()
	for _, key := range keys {
		pipe.Incr(ctx, genKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}
