package main

import (
	"context"
	"testing"

	"cinelog/internal/db/dbtest"
	"cinelog/internal/models"
	"cinelog/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRepairsDrift(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()

	user := models.User{Email: "u@example.com", Name: "u", Password: "x", Role: models.RoleUser, IsActive: true}
	require.NoError(t, conn.Create(&user).Error)
	movie := models.Movie{Title: "Heat"}
	require.NoError(t, conn.Create(&movie).Error)
	comment := models.Comment{MovieID: movie.ID, AuthorID: user.ID, Text: "good", LikesCount: 7, DislikesCount: 3}
	require.NoError(t, conn.Create(&comment).Error)
	require.NoError(t, conn.Create(&models.Vote{UserID: user.ID, CommentID: comment.ID, Type: models.VoteLike}).Error)

	projection := services.NewProjectionService(conn)
	require.NoError(t, run(ctx, projection, 0))

	var got models.Comment
	require.NoError(t, conn.First(&got, comment.ID).Error)
	assert.Equal(t, 1, got.LikesCount)
	assert.Equal(t, 0, got.DislikesCount)

	// second run is a no-op
	require.NoError(t, run(ctx, projection, comment.ID))
	require.NoError(t, conn.First(&got, comment.ID).Error)
	assert.Equal(t, 1, got.LikesCount)
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	flag := cmd.Flags().Lookup("comment")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}
