package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cinelog/internal/access"
	"cinelog/internal/logger"
	"cinelog/internal/models"
	"cinelog/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PageSize is the number of top-level comments per window.
const PageSize = 5

const commentPageTTL = 2 * time.Minute

func commentPagePrefix(movieID uint) string {
	return fmt.Sprintf("comments:movie:%d:", movieID)
}

// Placement says where a new comment goes: TopLevel or ReplyTo.
type Placement interface {
	placement()
}

// TopLevel comments rate the movie; Rating is required.
type TopLevel struct {
	Rating *float64
}

// ReplyTo hangs a comment under a top-level comment. Replies carry no rating.
type ReplyTo struct {
	ParentID uint
}

func (TopLevel) placement() {}
func (ReplyTo) placement()  {}

// ReplyNotifier is told about replies to someone else's comment.
type ReplyNotifier interface {
	SendReplyNotification(to, replier, movieTitle, replyText, originalText, link string)
}

type CommentService struct {
	db       *gorm.DB
	cache    *utils.GlobalCache
	notifier ReplyNotifier
}

func NewCommentService(conn *gorm.DB, cache *utils.GlobalCache, notifier ReplyNotifier) *CommentService {
	return &CommentService{db: conn, cache: cache, notifier: notifier}
}

func (s *CommentService) invalidate(movieID uint) {
	if s.cache != nil {
		s.cache.DeletePrefix(commentPagePrefix(movieID))
		// movie lists show comment counts
		s.cache.DeletePrefix(movieCachePfx)
	}
}

// Create adds a comment or reply written by actor.
func (s *CommentService) Create(ctx context.Context, actor *models.User, movieID uint, text string, placement Placement) (*models.Comment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: comment text is required", ErrValidation)
	}

	comment := models.Comment{
		MovieID:  movieID,
		AuthorID: actor.ID,
		Text:     text,
	}
	var parent models.Comment

	switch p := placement.(type) {
	case TopLevel:
		if p.Rating == nil {
			return nil, fmt.Errorf("%w: rating required for top-level comments", ErrValidation)
		}
		if err := validate.Var(*p.Rating, "gte=0,lte=10"); err != nil {
			return nil, fmt.Errorf("%w: rating must be between 0 and 10", ErrValidation)
		}
		rating := *p.Rating
		comment.UserRating = &rating
	case ReplyTo:
		comment.ParentID = &p.ParentID
	default:
		return nil, fmt.Errorf("%w: unknown comment placement", ErrValidation)
	}

	var movie models.Movie
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id", "title").First(&movie, movieID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: movie %d", ErrNotFound, movieID)
			}
			return err
		}

		if comment.ParentID != nil {
			// 父评论加锁，防止与删除并发
			err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&parent, *comment.ParentID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: parent comment %d", ErrNotFound, *comment.ParentID)
			}
			if err != nil {
				return err
			}
			if parent.MovieID != movieID {
				return fmt.Errorf("%w: parent comment belongs to another movie", ErrValidation)
			}
			if parent.IsReply() {
				return fmt.Errorf("%w: replies cannot be nested", ErrValidation)
			}
		}

		return tx.Create(&comment).Error
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(movieID)
	comment.Author = *actor

	logger.For(ctx).WithFields(logrus.Fields{
		"comment_id": comment.ID,
		"movie_id":   movieID,
		"reply":      comment.IsReply(),
	}).Info("Comment created")

	if comment.IsReply() && parent.AuthorID != actor.ID && s.notifier != nil {
		s.notifyParentAuthor(ctx, actor, &movie, &parent, &comment)
	}
	return &comment, nil
}

func (s *CommentService) notifyParentAuthor(ctx context.Context, actor *models.User, movie *models.Movie, parent, reply *models.Comment) {
	var author models.User
	if err := s.db.WithContext(ctx).Select("id", "email", "is_active").First(&author, parent.AuthorID).Error; err != nil {
		logger.For(ctx).WithError(err).Warn("Reply notification skipped")
		return
	}
	if !author.IsActive || author.Email == "" {
		return
	}
	link := fmt.Sprintf("/movies/%d#comment-%d", movie.ID, parent.ID)
	s.notifier.SendReplyNotification(author.Email, actor.Name, movie.Title, reply.Text, parent.Text, link)
}

// Get loads a comment with its author.
func (s *CommentService) Get(ctx context.Context, commentID uint) (*models.Comment, error) {
	var c models.Comment
	err := s.db.WithContext(ctx).Preload("Author").First(&c, commentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: comment %d", ErrNotFound, commentID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Edit replaces the text of a comment. Only its author may do so.
func (s *CommentService) Edit(ctx context.Context, actor *models.User, commentID uint, newText string) (*models.Comment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	c, err := s.Get(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !access.CanEditComment(actor, c) {
		return nil, fmt.Errorf("%w: only the author can edit this comment", ErrPermissionDenied)
	}
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return nil, fmt.Errorf("%w: comment text is required", ErrValidation)
	}

	if err := s.db.WithContext(ctx).Model(c).Update("text", newText).Error; err != nil {
		return nil, err
	}
	c.Text = newText
	s.invalidate(c.MovieID)
	return c, nil
}

// Delete removes a comment, its replies and every vote on any of them in one
// transaction. Votes and replies are removed explicitly, not through FK cascades.
func (s *CommentService) Delete(ctx context.Context, actor *models.User, commentID uint) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	c, err := s.Get(ctx, commentID)
	if err != nil {
		return err
	}
	if !access.CanDeleteComment(actor, c) {
		return fmt.Errorf("%w: you don't have permission to delete this comment", ErrPermissionDenied)
	}

	var removedVotes int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.Comment{}).Where("parent_id = ?", c.ID).Pluck("id", &ids).Error; err != nil {
			return err
		}
		ids = append(ids, c.ID)

		res := tx.Where("comment_id IN ?", ids).Delete(&models.Vote{})
		if res.Error != nil {
			return res.Error
		}
		removedVotes = res.RowsAffected

		if err := tx.Where("parent_id = ?", c.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Comment{}, c.ID).Error
	})
	if err != nil {
		return err
	}

	s.invalidate(c.MovieID)
	logger.For(ctx).WithFields(logrus.Fields{
		"comment_id": c.ID,
		"votes":      removedVotes,
	}).Info("Comment deleted")
	return nil
}

// ListTopLevel returns one window of top-level comments for a movie, newest
// first, each with its replies oldest first. Windows are offset based, so a
// comment posted while paging shifts later windows by one.
func (s *CommentService) ListTopLevel(ctx context.Context, movieID uint, offset, limit int) ([]models.Comment, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = PageSize
	}

	key := fmt.Sprintf("%soffset:%d:limit:%d", commentPagePrefix(movieID), offset, limit)
	var epoch uint64
	if s.cache != nil {
		epoch = s.cache.Epoch()
		if cached, ok := s.cache.Get(key).([]models.Comment); ok {
			return cached, nil
		}
	}

	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Where("movie_id = ? AND parent_id IS NULL", movieID).
		Preload("Author").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Replies.Author").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetIfEpoch(key, comments, commentPageTTL, epoch)
	}
	return comments, nil
}

// CountTopLevel is the total used for "load more" controls.
func (s *CommentService) CountTopLevel(ctx context.Context, movieID uint) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("movie_id = ? AND parent_id IS NULL", movieID).
		Count(&total).Error
	return total, err
}

// MovieComments groups a user's comments under one movie for the profile page.
type MovieComments struct {
	Movie    models.Movie
	Comments []models.Comment
}

// ListByAuthor returns everything a user wrote, grouped by movie, newest first.
func (s *CommentService) ListByAuthor(ctx context.Context, authorID uint) ([]MovieComments, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Preload("Movie").
		Order("created_at DESC, id DESC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}

	var groups []MovieComments
	index := make(map[uint]int)
	for _, c := range comments {
		i, ok := index[c.MovieID]
		if !ok {
			i = len(groups)
			index[c.MovieID] = i
			groups = append(groups, MovieComments{Movie: c.Movie})
		}
		groups[i].Comments = append(groups[i].Comments, c)
	}
	return groups, nil
}
