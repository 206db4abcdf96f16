package services

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"cinelog/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCastVoteToggleSequence(t *testing.T) {
	f := newFixture(t)
	author := f.newUser(models.RoleUser)
	voter := f.newUser(models.RoleUser)
	c := f.topLevel(author, "great film")

	assert.Equal(t, Counts{}, f.storedCounts(c.ID))

	outcome, counts, err := f.votes.CastVote(f.ctx, voter, c.ID, models.VoteLike)
	require.NoError(t, err)
	assert.Equal(t, VoteOutcome{Kind: OutcomeAdded, New: models.VoteLike}, outcome)
	assert.Equal(t, Counts{Likes: 1}, counts)

	outcome, counts, err = f.votes.CastVote(f.ctx, voter, c.ID, models.VoteDislike)
	require.NoError(t, err)
	assert.Equal(t, VoteOutcome{Kind: OutcomeChanged, Old: models.VoteLike, New: models.VoteDislike}, outcome)
	assert.Equal(t, Counts{Dislikes: 1}, counts)
	assert.Equal(t, int64(1), f.countRows(&models.Vote{}, "comment_id = ?", c.ID))

	outcome, counts, err = f.votes.CastVote(f.ctx, voter, c.ID, models.VoteDislike)
	require.NoError(t, err)
	assert.Equal(t, VoteOutcome{Kind: OutcomeRemoved, Old: models.VoteDislike}, outcome)
	assert.Equal(t, Counts{}, counts)
	assert.Equal(t, Counts{}, f.storedCounts(c.ID))
}

func TestCastVoteTwiceRestoresState(t *testing.T) {
	f := newFixture(t)
	author := f.newUser(models.RoleUser)
	other := f.newUser(models.RoleUser)
	voter := f.newUser(models.RoleUser)
	c := f.topLevel(author, "text")

	_, _, err := f.votes.CastVote(f.ctx, other, c.ID, models.VoteLike)
	require.NoError(t, err)
	before := f.storedCounts(c.ID)

	for _, vt := range []models.VoteType{models.VoteLike, models.VoteDislike} {
		_, _, err = f.votes.CastVote(f.ctx, voter, c.ID, vt)
		require.NoError(t, err)
		_, _, err = f.votes.CastVote(f.ctx, voter, c.ID, vt)
		require.NoError(t, err)

		assert.Equal(t, before, f.storedCounts(c.ID))
		assert.Equal(t, int64(0), f.countRows(&models.Vote{}, "user_id = ? AND comment_id = ?", voter.ID, c.ID))
	}
}

func TestCastVoteErrors(t *testing.T) {
	f := newFixture(t)
	author := f.newUser(models.RoleUser)
	c := f.topLevel(author, "text")

	_, _, err := f.votes.CastVote(f.ctx, nil, c.ID, models.VoteLike)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, _, err = f.votes.CastVote(f.ctx, author, c.ID, models.VoteType("love"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = f.votes.CastVote(f.ctx, author, c.ID+100, models.VoteLike)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTwoUsersVoting(t *testing.T) {
	f := newFixture(t)
	author := f.newUser(models.RoleUser)
	u1 := f.newUser(models.RoleUser)
	u2 := f.newUser(models.RoleUser)
	c := f.topLevel(author, "text")

	steps := []struct {
		user *models.User
		vote models.VoteType
		want Counts
	}{
		{u1, models.VoteLike, Counts{Likes: 1}},
		{u2, models.VoteLike, Counts{Likes: 2}},
		{u1, models.VoteDislike, Counts{Likes: 1, Dislikes: 1}},
		{u2, models.VoteLike, Counts{Dislikes: 1}},
		{u1, models.VoteDislike, Counts{}},
	}
	for i, s := range steps {
		_, counts, err := f.votes.CastVote(f.ctx, s.user, c.ID, s.vote)
		require.NoError(t, err)
		assert.Equal(t, s.want, counts, "step %d", i)
		assert.Equal(t, s.want, f.storedCounts(c.ID), "step %d", i)
	}
}

func TestCountsMatchLedgerAfterRandomVotes(t *testing.T) {
	f := newFixture(t)
	author := f.newUser(models.RoleUser)
	users := make([]*models.User, 5)
	for i := range users {
		users[i] = f.newUser(models.RoleUser)
	}
	comments := []*models.Comment{f.topLevel(author, "a"), f.topLevel(author, "b")}
	comments = append(comments, f.reply(author, comments[0], "c"))

	rnd := rand.New(rand.NewSource(42))
	types := []models.VoteType{models.VoteLike, models.VoteDislike}
	for i := 0; i < 200; i++ {
		c := comments[rnd.Intn(len(comments))]
		_, counts, err := f.votes.CastVote(f.ctx, users[rnd.Intn(len(users))], c.ID, types[rnd.Intn(2)])
		require.NoError(t, err)
		require.Equal(t, f.ledgerCounts(c.ID), counts)
	}
	for _, c := range comments {
		assert.Equal(t, f.ledgerCounts(c.ID), f.storedCounts(c.ID))
	}
}

func TestIncrementalApplyAgreesWithRecount(t *testing.T) {
	f := newFixture(t)
	author := f.newUser(models.RoleUser)
	users := []*models.User{f.newUser(models.RoleUser), f.newUser(models.RoleUser), f.newUser(models.RoleUser)}
	c := f.topLevel(author, "text")

	rnd := rand.New(rand.NewSource(7))
	types := []models.VoteType{models.VoteLike, models.VoteDislike}
	incremental := Counts{}
	for i := 0; i < 60; i++ {
		outcome, counts, err := f.votes.CastVote(f.ctx, users[rnd.Intn(len(users))], c.ID, types[rnd.Intn(2)])
		require.NoError(t, err)
		incremental = incremental.Apply(outcome)
		require.Equal(t, counts, incremental, "iteration %d: %s", i, outcome)
	}
}

func TestApplyClampsAtZero(t *testing.T) {
	got := Counts{}.Apply(VoteOutcome{Kind: OutcomeRemoved, Old: models.VoteLike})
	assert.Equal(t, Counts{}, got)

	got = Counts{Dislikes: 2}.Apply(VoteOutcome{Kind: OutcomeChanged, Old: models.VoteLike, New: models.VoteDislike})
	assert.Equal(t, Counts{Dislikes: 3}, got)
}

func TestConcurrentVotesKeepCountsExact(t *testing.T) {
	f := newFixture(t)
	author := f.newUser(models.RoleUser)
	c := f.topLevel(author, "text")

	const voters = 8
	users := make([]*models.User, voters)
	for i := range users {
		users[i] = f.newUser(models.RoleUser)
	}

	var wg sync.WaitGroup
	errs := make(chan error, voters*3)
	for i, u := range users {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			vt := models.VoteLike
			if i%2 == 1 {
				vt = models.VoteDislike
			}
			// even users end with a like, odd users vote twice and end with nothing
			for n := 0; n < 1+i%2; n++ {
				if _, _, err := f.votes.CastVote(f.ctx, u, c.ID, vt); err != nil {
					errs <- err
				}
			}
		}(i, u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("vote failed: %v", err)
	}

	assert.Equal(t, Counts{Likes: voters / 2}, f.storedCounts(c.ID))
	assert.Equal(t, f.ledgerCounts(c.ID), f.storedCounts(c.ID))
}

func TestUserVotes(t *testing.T) {
	f := newFixture(t)
	author := f.newUser(models.RoleUser)
	voter := f.newUser(models.RoleUser)
	a := f.topLevel(author, "a")
	b := f.topLevel(author, "b")

	_, _, err := f.votes.CastVote(f.ctx, voter, a.ID, models.VoteDislike)
	require.NoError(t, err)

	got, err := f.votes.UserVotes(f.ctx, voter.ID, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uint]models.VoteType{a.ID: models.VoteDislike}, got)
}

func TestIsUniqueViolation(t *testing.T) {
	f := newFixture(t)
	author := f.newUser(models.RoleUser)
	c := f.topLevel(author, "text")

	require.NoError(t, f.db.Create(&models.Vote{UserID: author.ID, CommentID: c.ID, Type: models.VoteLike}).Error)
	err := f.db.Create(&models.Vote{UserID: author.ID, CommentID: c.ID, Type: models.VoteDislike}).Error
	assert.True(t, isUniqueViolation(err))
	assert.False(t, isUniqueViolation(nil))
}

type recordingScheduler struct {
	mu  sync.Mutex
	ids []uint
}

func (r *recordingScheduler) Schedule(commentID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, commentID)
}

// failVoteInserts makes the first n vote inserts fail with a duplicate key
// error, or every insert when n < 0. It returns the insert attempt counter.
func (f *fixture) failVoteInserts(n int32) *int32 {
	f.t.Helper()
	var calls int32
	err := f.db.Callback().Create().Before("gorm:create").Register("test:vote_conflict", func(db *gorm.DB) {
		if db.Statement.Table != "votes" {
			return
		}
		if call := atomic.AddInt32(&calls, 1); n < 0 || call <= n {
			db.AddError(gorm.ErrDuplicatedKey)
		}
	})
	require.NoError(f.t, err)
	return &calls
}

func TestCastVoteRetriesAfterConflict(t *testing.T) {
	f := newFixture(t)
	author, voter := f.newUser(models.RoleUser), f.newUser(models.RoleUser)
	c := f.topLevel(author, "contested")
	repairs := &recordingScheduler{}
	votes := NewVoteService(f.db, f.cache, repairs)
	calls := f.failVoteInserts(1)

	outcome, counts, err := votes.CastVote(f.ctx, voter, c.ID, models.VoteLike)
	require.NoError(t, err)
	assert.Equal(t, VoteOutcome{Kind: OutcomeAdded, New: models.VoteLike}, outcome)
	assert.Equal(t, Counts{Likes: 1}, counts)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Equal(t, Counts{Likes: 1}, f.ledgerCounts(c.ID))
	assert.Equal(t, Counts{Likes: 1}, f.storedCounts(c.ID))
	assert.Empty(t, repairs.ids)
}

func TestCastVotePersistentConflictSchedulesRepair(t *testing.T) {
	f := newFixture(t)
	author, voter := f.newUser(models.RoleUser), f.newUser(models.RoleUser)
	c := f.topLevel(author, "contested")
	repairs := &recordingScheduler{}
	votes := NewVoteService(f.db, f.cache, repairs)
	calls := f.failVoteInserts(-1)

	_, _, err := votes.CastVote(f.ctx, voter, c.ID, models.VoteDislike)
	require.Error(t, err)
	assert.False(t, IsDomainError(err))
	assert.Equal(t, int32(maxVoteAttempts), atomic.LoadInt32(calls))
	assert.Equal(t, []uint{c.ID}, repairs.ids)

	// every attempt rolled back
	assert.Equal(t, Counts{}, f.ledgerCounts(c.ID))
	assert.Equal(t, Counts{}, f.storedCounts(c.ID))
}
