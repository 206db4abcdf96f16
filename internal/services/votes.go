package services

import (
	"context"
	"errors"
	"fmt"

	"cinelog/internal/logger"
	"cinelog/internal/models"
	"cinelog/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxVoteAttempts bounds how often a vote transaction is restarted after a
// unique violation on the ledger.
const maxVoteAttempts = 3

type OutcomeKind string

const (
	OutcomeAdded   OutcomeKind = "added"
	OutcomeRemoved OutcomeKind = "removed"
	OutcomeChanged OutcomeKind = "changed"
)

// VoteOutcome describes what a toggle did to the ledger. Old is empty for
// Added, New is empty for Removed.
type VoteOutcome struct {
	Kind OutcomeKind     `json:"kind"`
	Old  models.VoteType `json:"old,omitempty"`
	New  models.VoteType `json:"new,omitempty"`
}

func (o VoteOutcome) String() string {
	switch o.Kind {
	case OutcomeAdded:
		return "added " + string(o.New)
	case OutcomeRemoved:
		return "removed " + string(o.Old)
	case OutcomeChanged:
		return fmt.Sprintf("changed %s -> %s", o.Old, o.New)
	}
	return string(o.Kind)
}

// VoteService owns the vote ledger.
type VoteService struct {
	db      *gorm.DB
	cache   *utils.GlobalCache
	repairs RepairScheduler
}

// NewVoteService wires the ledger. repairs may be nil; when set it receives
// comments whose vote gave up after repeated conflicts.
func NewVoteService(conn *gorm.DB, cache *utils.GlobalCache, repairs RepairScheduler) *VoteService {
	return &VoteService{db: conn, cache: cache, repairs: repairs}
}

// CastVote toggles actor's vote on a comment and returns the outcome with the
// recounted projection. Same type twice removes the vote, a different type flips it.
func (s *VoteService) CastVote(ctx context.Context, actor *models.User, commentID uint, voteType models.VoteType) (VoteOutcome, Counts, error) {
	if actor == nil {
		return VoteOutcome{}, Counts{}, ErrUnauthenticated
	}
	if !voteType.Valid() {
		return VoteOutcome{}, Counts{}, fmt.Errorf("%w: vote type must be like or dislike", ErrInvalidArgument)
	}

	log := logger.For(ctx).WithFields(logrus.Fields{"comment_id": commentID, "vote_type": voteType})

	var (
		outcome VoteOutcome
		counts  Counts
		movieID uint
		err     error
	)
	for attempt := 1; attempt <= maxVoteAttempts; attempt++ {
		outcome, counts, movieID, err = s.castOnce(ctx, actor.ID, commentID, voteType)
		if !errors.Is(err, ErrConflict) {
			break
		}
		log.WithField("attempt", attempt).Debug("Vote conflict, retrying")
	}
	if err != nil {
		if errors.Is(err, ErrConflict) {
			log.WithError(err).Warn("Vote conflict persisted after retries")
			if s.repairs != nil {
				s.repairs.Schedule(commentID)
			}
			return VoteOutcome{}, Counts{}, fmt.Errorf("vote on comment %d: too many concurrent updates", commentID)
		}
		return VoteOutcome{}, Counts{}, err
	}

	if s.cache != nil {
		s.cache.DeletePrefix(commentPagePrefix(movieID))
	}
	log.WithField("outcome", outcome.String()).Info("Vote recorded")
	return outcome, counts, nil
}

func (s *VoteService) castOnce(ctx context.Context, userID, commentID uint, voteType models.VoteType) (VoteOutcome, Counts, uint, error) {
	var (
		outcome VoteOutcome
		counts  Counts
		comment models.Comment
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁住评论行，同一评论上的投票串行执行
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "movie_id", "likes_count", "dislikes_count").
			First(&comment, commentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
		}
		if err != nil {
			return err
		}

		var existing models.Vote
		err = tx.Where("user_id = ? AND comment_id = ?", userID, commentID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			vote := models.Vote{UserID: userID, CommentID: commentID, Type: voteType}
			if err := tx.Create(&vote).Error; err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %v", ErrConflict, err)
				}
				return err
			}
			outcome = VoteOutcome{Kind: OutcomeAdded, New: voteType}
		case err != nil:
			return err
		case existing.Type == voteType:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			outcome = VoteOutcome{Kind: OutcomeRemoved, Old: voteType}
		default:
			old := existing.Type
			if err := tx.Model(&existing).Update("vote_type", voteType).Error; err != nil {
				return err
			}
			outcome = VoteOutcome{Kind: OutcomeChanged, Old: old, New: voteType}
		}

		counts, err = Recompute(ctx, tx, commentID)
		if errors.Is(err, ErrNotFound) {
			// 评论在投票过程中被删除，投票随之消失
			logger.For(ctx).WithField("comment_id", commentID).Warn("Comment deleted during vote, projection skipped")
			counts = Counts{}
			return nil
		}
		return err
	})
	if err != nil {
		return VoteOutcome{}, Counts{}, 0, err
	}
	return outcome, counts, comment.MovieID, nil
}

// UserVotes returns the actor's vote types keyed by comment id, for highlighting buttons.
func (s *VoteService) UserVotes(ctx context.Context, userID uint, commentIDs []uint) (map[uint]models.VoteType, error) {
	out := make(map[uint]models.VoteType, len(commentIDs))
	if userID == 0 || len(commentIDs) == 0 {
		return out, nil
	}
	var votes []models.Vote
	err := s.db.WithContext(ctx).
		Select("comment_id", "vote_type").
		Where("user_id = ? AND comment_id IN ?", userID, commentIDs).
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	for _, v := range votes {
		out[v.CommentID] = v.Type
	}
	return out, nil
}
