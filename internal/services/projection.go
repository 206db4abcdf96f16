package services

import (
	"context"
	"errors"
	"fmt"

	"cinelog/internal/logger"
	"cinelog/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Counts is the like/dislike projection stored on a comment.
type Counts struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

// Apply returns the counts after outcome, clamped at zero. It derives the
// delta from the outcome alone and must always agree with Recompute.
func (c Counts) Apply(o VoteOutcome) Counts {
	switch o.Kind {
	case OutcomeAdded:
		c = c.add(o.New, 1)
	case OutcomeRemoved:
		c = c.add(o.Old, -1)
	case OutcomeChanged:
		c = c.add(o.Old, -1)
		c = c.add(o.New, 1)
	}
	return c
}

func (c Counts) add(t models.VoteType, delta int) Counts {
	switch t {
	case models.VoteLike:
		c.Likes = max(0, c.Likes+delta)
	case models.VoteDislike:
		c.Dislikes = max(0, c.Dislikes+delta)
	}
	return c
}

// Recompute counts the ledger rows of a comment and writes them back to the
// comment. tx may be a transaction or a plain session.
func Recompute(ctx context.Context, tx *gorm.DB, commentID uint) (Counts, error) {
	tx = tx.WithContext(ctx)

	// 行锁：修复任务与投票在同一评论上串行，避免用旧计数覆盖新计数
	var comment models.Comment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&comment, commentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Counts{}, fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
	}
	if err != nil {
		return Counts{}, err
	}

	type row struct {
		Type  models.VoteType `gorm:"column:vote_type"`
		Total int
	}
	var rows []row
	err = tx.Model(&models.Vote{}).
		Select("vote_type, COUNT(*) AS total").
		Where("comment_id = ?", commentID).
		Group("vote_type").
		Scan(&rows).Error
	if err != nil {
		return Counts{}, err
	}

	var counts Counts
	for _, r := range rows {
		counts = counts.add(r.Type, r.Total)
	}

	err = tx.Model(&models.Comment{}).Where("id = ?", commentID).UpdateColumns(map[string]interface{}{
		"likes_count":    counts.Likes,
		"dislikes_count": counts.Dislikes,
	}).Error
	if err != nil {
		return Counts{}, err
	}
	return counts, nil
}

// ProjectionService repairs drifted counters outside the vote path.
type ProjectionService struct {
	db *gorm.DB
}

func NewProjectionService(conn *gorm.DB) *ProjectionService {
	return &ProjectionService{db: conn}
}

// RepairComment recounts one comment. A comment deleted in the meantime is not an error.
func (s *ProjectionService) RepairComment(ctx context.Context, commentID uint) (Counts, error) {
	var counts Counts
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		counts, err = Recompute(ctx, tx, commentID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		logger.For(ctx).WithField("comment_id", commentID).Debug("Comment gone before repair, skipping")
		return Counts{}, nil
	}
	return counts, err
}

// RepairAll recounts every comment in id order and reports how many were
// visited and how many had drifted. Running it twice changes nothing the second time.
func (s *ProjectionService) RepairAll(ctx context.Context) (visited, repaired int, err error) {
	const batchSize = 200
	log := logger.For(ctx)

	var lastID uint
	for {
		if err := ctx.Err(); err != nil {
			return visited, repaired, err
		}

		var batch []models.Comment
		err := s.db.WithContext(ctx).
			Select("id", "likes_count", "dislikes_count").
			Where("id > ?", lastID).
			Order("id ASC").
			Limit(batchSize).
			Find(&batch).Error
		if err != nil {
			return visited, repaired, err
		}
		if len(batch) == 0 {
			break
		}

		for _, c := range batch {
			counts, err := s.RepairComment(ctx, c.ID)
			if err != nil {
				return visited, repaired, err
			}
			visited++
			if counts.Likes != c.LikesCount || counts.Dislikes != c.DislikesCount {
				repaired++
				log.WithFields(logrus.Fields{
					"comment_id": c.ID,
					"likes":      fmt.Sprintf("%d->%d", c.LikesCount, counts.Likes),
					"dislikes":   fmt.Sprintf("%d->%d", c.DislikesCount, counts.Dislikes),
				}).Warn("Counter drift repaired")
			}
		}
		lastID = batch[len(batch)-1].ID
	}

	log.WithFields(logrus.Fields{"visited": visited, "repaired": repaired}).Info("Counter repair finished")
	return visited, repaired, nil
}
