package handlers

import (
	"fmt"
	"net/http"

	"cinelog/internal/models"
	"cinelog/internal/services"
	"cinelog/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type VoteHandler struct {
	votes *services.VoteService
}

func NewVoteHandler(votes *services.VoteService) *VoteHandler {
	return &VoteHandler{votes: votes}
}

type voteRequest struct {
	CommentID string `json:"comment_id" form:"comment_id" binding:"required"`
	VoteType  string `json:"vote_type" form:"vote_type" binding:"required,votetype"`
}

// RegisterValidators adds the custom binding rules used by request structs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("votetype", func(fl validator.FieldLevel) bool {
		return models.VoteType(fl.Field().String()).Valid()
	})
}

// Vote toggles a like/dislike. Body: {"comment_id": "comment-12", "vote_type": "like"}.
func (h *VoteHandler) Vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid data"})
		return
	}
	commentID, ok := utils.ParseID(req.CommentID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid data"})
		return
	}

	outcome, counts, err := h.votes.CastVote(c.Request.Context(), currentUser(c), commentID, models.VoteType(req.VoteType))
	if err != nil {
		jsonSoftError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"outcome":  outcome,
		"likes":    counts.Likes,
		"dislikes": counts.Dislikes,
	})
}
