package models

import "time"

// VoteType is the direction of a vote. The zero value means no vote.
type VoteType int

const (
	NoVote   VoteType = 0
	Upvote   VoteType = 1
	Downvote VoteType = -1
)

func (t VoteType) String() string {
	switch t {
	case Upvote:
		return "upvote"
	case Downvote:
		return "downvote"
	default:
		return "none"
	}
}

// Vote tracks a single user's vote on a post. The unique index keeps a
// user in at most one of the post's upvote/downvote sets.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_votes_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_votes_user_post;index" json:"post_id"`
	VoteType  VoteType  `gorm:"not null" json:"vote_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToggleVote returns the vote a user holds after requesting the given
// direction. Requesting the vote already held removes it; anything else
// switches to the requested direction.
func ToggleVote(current, requested VoteType) VoteType {
	if current == requested {
		return NoVote
	}
	return requested
}
