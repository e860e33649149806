package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/threaddit/backend/internal/models"
)

type postRepo struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepo{db: db}
}

// populated preloads everything a post response renders.
func populated(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Author").
		Preload("Votes", func(db *gorm.DB) *gorm.DB { return db.Order("votes.id") }).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("comments.created_at, comments.id") }).
		Preload("Comments.Author")
}

func (r *postRepo) List(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := populated(r.db.WithContext(ctx)).
		Order("created_at desc, id desc").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return posts, nil
}

func (r *postRepo) Get(ctx context.Context, id uint) (*models.Post, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *postRepo) get(db *gorm.DB, id uint) (*models.Post, error) {
	var post models.Post
	if err := populated(db).First(&post, id).Error; err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

func (r *postRepo) Create(ctx context.Context, post *models.Post) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(post).Error; err != nil {
		return fmt.Errorf("creating post: %w", translate(err))
	}
	created, err := r.get(db, post.ID)
	if err != nil {
		return err
	}
	*post = *created
	return nil
}

// ToggleVote applies models.ToggleVote to the user's vote on the post. The
// post row is locked for the duration of the transaction so concurrent
// toggles by the same user serialize.
func (r *postRepo) ToggleVote(ctx context.Context, postID, userID uint, dir models.VoteType) (*models.Post, error) {
	var post *models.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Post
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&locked, postID).Error; err != nil {
			return translate(err)
		}

		var vote models.Vote
		err := tx.Where("user_id = ? AND post_id = ?", userID, postID).Take(&vote).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			vote = models.Vote{UserID: userID, PostID: postID, VoteType: models.NoVote}
		case err != nil:
			return fmt.Errorf("loading vote: %w", err)
		}

		next := models.ToggleVote(vote.VoteType, dir)
		switch {
		case next == models.NoVote && vote.ID == 0:
		case next == models.NoVote:
			if err := tx.Delete(&vote).Error; err != nil {
				return fmt.Errorf("removing vote: %w", err)
			}
		case vote.ID == 0:
			vote.VoteType = next
			if err := tx.Create(&vote).Error; err != nil {
				return fmt.Errorf("recording vote: %w", translate(err))
			}
		default:
			if err := tx.Model(&vote).Update("vote_type", next).Error; err != nil {
				return fmt.Errorf("updating vote: %w", err)
			}
		}

		reloaded, err := r.get(tx, postID)
		if err != nil {
			return err
		}
		post = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (r *postRepo) AddComment(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Select("id").First(&post, comment.PostID).Error; err != nil {
			return translate(err)
		}
		if err := tx.Omit(clause.Associations).Create(comment).Error; err != nil {
			return fmt.Errorf("creating comment: %w", translate(err))
		}
		return tx.Preload("Author").First(comment, comment.ID).Error
	})
}
