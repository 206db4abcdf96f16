package models

import (
	"time"
)

type VoteType string

const (
	VoteLike    VoteType = "like"
	VoteDislike VoteType = "dislike"
)

// Valid reports whether t is one of the two ledger vote types.
func (t VoteType) Valid() bool {
	return t == VoteLike || t == VoteDislike
}

// Vote is one row of the vote ledger. A user holds at most one vote per comment.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_votes_user_comment,priority:1" json:"user_id"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_votes_user_comment,priority:2;index:idx_votes_comment_type,priority:1" json:"comment_id"`
	Comment   Comment   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Type      VoteType  `gorm:"column:vote_type;size:10;not null;index:idx_votes_comment_type,priority:2" json:"vote_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
