package models

import "time"

type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:300;not null" json:"title"`
	Body      string    `json:"body"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Author    User      `gorm:"foreignKey:AuthorID" json:"author"`
	Votes     []Vote    `gorm:"foreignKey:PostID" json:"votes"`
	Comments  []Comment `gorm:"foreignKey:PostID" json:"comments"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upvoters returns the ids of users holding an upvote on the post.
func (p *Post) Upvoters() []uint {
	return p.voters(Upvote)
}

// Downvoters returns the ids of users holding a downvote on the post.
func (p *Post) Downvoters() []uint {
	return p.voters(Downvote)
}

func (p *Post) voters(t VoteType) []uint {
	ids := []uint{}
	for _, v := range p.Votes {
		if v.VoteType == t {
			ids = append(ids, v.UserID)
		}
	}
	return ids
}

type CreatePostRequest struct {
	Title string `json:"title" binding:"required,max=300"`
	Body  string `json:"body"`
}

type PostResponse struct {
	ID        uint              `json:"_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Author    Author            `json:"author"`
	Upvotes   []uint            `json:"upvotes"`
	Downvotes []uint            `json:"downvotes"`
	Comments  []CommentResponse `json:"comments"`
	CreatedAt time.Time         `json:"createdAt"`
}

func (p *Post) Response() PostResponse {
	comments := make([]CommentResponse, 0, len(p.Comments))
	for i := range p.Comments {
		comments = append(comments, p.Comments[i].Response())
	}
	return PostResponse{
		ID:        p.ID,
		Title:     p.Title,
		Body:      p.Body,
		Author:    p.Author.AsAuthor(),
		Upvotes:   p.Upvoters(),
		Downvotes: p.Downvoters(),
		Comments:  comments,
		CreatedAt: p.CreatedAt,
	}
}
