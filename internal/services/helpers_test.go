package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cinelog/internal/db/dbtest"
	"cinelog/internal/models"
	"cinelog/internal/utils"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	cache    *utils.GlobalCache
	votes    *VoteService
	comments *CommentService
	repair   *ProjectionService
	movie    *models.Movie
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	cache := utils.NewCache(100)
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		db:       conn,
		cache:    cache,
		votes:    NewVoteService(conn, cache, nil),
		comments: NewCommentService(conn, cache, nil),
		repair:   NewProjectionService(conn),
	}
	f.movie = f.newMovie("Alien")
	return f
}

func (f *fixture) newUser(role models.Role) *models.User {
	f.t.Helper()
	f.seq++
	u := &models.User{
		Email:    fmt.Sprintf("user%d@example.com", f.seq),
		Name:     fmt.Sprintf("User %d", f.seq),
		Password: "x",
		Role:     role,
		IsActive: true,
	}
	require.NoError(f.t, f.db.Create(u).Error)
	return u
}

func (f *fixture) newMovie(title string) *models.Movie {
	f.t.Helper()
	m := &models.Movie{Title: title, Date: "1979"}
	require.NoError(f.t, f.db.Create(m).Error)
	return m
}

func rating(v float64) *float64 { return &v }

func (f *fixture) topLevel(author *models.User, text string) *models.Comment {
	f.t.Helper()
	c, err := f.comments.Create(f.ctx, author, f.movie.ID, text, TopLevel{Rating: rating(7)})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) reply(author *models.User, parent *models.Comment, text string) *models.Comment {
	f.t.Helper()
	c, err := f.comments.Create(f.ctx, author, parent.MovieID, text, ReplyTo{ParentID: parent.ID})
	require.NoError(f.t, err)
	return c
}

// backdate sets created_at so ordering tests do not depend on clock resolution.
func (f *fixture) backdate(c *models.Comment, at time.Time) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(&models.Comment{}).Where("id = ?", c.ID).UpdateColumn("created_at", at).Error)
	f.cache.DeletePrefix(commentPagePrefix(c.MovieID))
}

// ledgerCounts counts vote rows directly, independent of Recompute.
func (f *fixture) ledgerCounts(commentID uint) Counts {
	f.t.Helper()
	var likes, dislikes int64
	require.NoError(f.t, f.db.Model(&models.Vote{}).Where("comment_id = ? AND vote_type = ?", commentID, models.VoteLike).Count(&likes).Error)
	require.NoError(f.t, f.db.Model(&models.Vote{}).Where("comment_id = ? AND vote_type = ?", commentID, models.VoteDislike).Count(&dislikes).Error)
	return Counts{Likes: int(likes), Dislikes: int(dislikes)}
}

func (f *fixture) storedCounts(commentID uint) Counts {
	f.t.Helper()
	var c models.Comment
	require.NoError(f.t, f.db.First(&c, commentID).Error)
	return Counts{Likes: c.LikesCount, Dislikes: c.DislikesCount}
}

func (f *fixture) countRows(model interface{}, where string, args ...interface{}) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(model).Where(where, args...).Count(&n).Error)
	return n
}
