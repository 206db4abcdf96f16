package models

import (
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Movie 影片条目。评论随影片一起级联删除。
type Movie struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:250;uniqueIndex;not null" json:"title"`
	Date      string    `gorm:"size:10" json:"date"` // release year
	Body      string    `gorm:"type:text" json:"body"`
	ImgURL    string    `gorm:"size:500" json:"img_url"`
	Rating    *float64  `json:"rating"` // 0-10, display only
	Director  string    `gorm:"size:250" json:"director"`
	Writers   string    `gorm:"type:text" json:"writers"`
	Genres    string    `gorm:"size:250" json:"genres"`
	Slug      string    `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 非数据库字段，用于查询时填充
	CommentCount int `gorm:"-" json:"comment_count"`
}

// BeforeSave fills the slug from the title when none was given.
func (m *Movie) BeforeSave(tx *gorm.DB) error {
	if m.Slug == "" {
		m.Slug = slug.Make(m.Title)
	}
	return nil
}

// RatingPercent is the rating scaled to 0-100 for the star bar.
func (m *Movie) RatingPercent() float64 {
	if m.Rating == nil {
		return 0
	}
	return *m.Rating * 10
}
