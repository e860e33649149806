package models

import "time"

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"not null" json:"text"`
	AuthorID  uint      `gorm:"not null" json:"author_id"`
	Author    User      `gorm:"foreignKey:AuthorID" json:"author"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

type CommentResponse struct {
	ID        uint      `json:"_id"`
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	PostID    uint      `json:"post"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Comment) Response() CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		Text:      c.Text,
		Author:    c.Author.AsAuthor(),
		PostID:    c.PostID,
		CreatedAt: c.CreatedAt,
	}
}
