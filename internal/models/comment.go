package models

import (
	"time"
)

// Comment is either top-level (ParentID nil, carries a rating) or a reply to a
// top-level comment. Replies of replies do not exist.
type Comment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	MovieID       uint      `gorm:"not null;index:idx_comments_movie_created,priority:1" json:"movie_id"`
	Movie         Movie     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	AuthorID      uint      `gorm:"not null;index" json:"author_id"`
	Author        User      `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	ParentID      *uint     `gorm:"index" json:"parent_id"` // Nullable for top-level comments
	Replies       []Comment `gorm:"foreignKey:ParentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"replies,omitempty"`
	Text          string    `gorm:"type:text;not null" json:"text"`
	UserRating    *float64  `json:"user_rating"`
	LikesCount    int       `gorm:"not null;default:0" json:"likes_count"`    // projection of votes
	DislikesCount int       `gorm:"not null;default:0" json:"dislikes_count"` // projection of votes
	CreatedAt     time.Time `gorm:"index:idx_comments_movie_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsReply reports whether the comment hangs under a top-level comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}
