package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cinelog/internal/models"
	"cinelog/internal/services"
	"cinelog/internal/utils"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// Create 发表评论或回复（表单提交，完成后带提示跳回影片页）
func (h *CommentHandler) Create(c *gin.Context) {
	movieID, ok := utils.ParseID(c.Param("id"))
	if !ok {
		RenderError(c, http.StatusNotFound, "Movie not found.")
		return
	}
	back := fmt.Sprintf("/movies/%d", movieID)

	text := c.PostForm("text")
	var placement services.Placement
	if parentID, isReply := utils.ParseID(c.PostForm("parent_id")); isReply {
		// replies never carry a rating; a submitted one is ignored
		placement = services.ReplyTo{ParentID: parentID}
	} else {
		top := services.TopLevel{}
		if raw := strings.TrimSpace(c.PostForm("user_rating")); raw != "" {
			r, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				redirectWithFlash(c, back, flashError, "Invalid comment data.")
				return
			}
			top.Rating = &r
		}
		placement = top
	}

	comment, err := h.comments.Create(c.Request.Context(), currentUser(c), movieID, text, placement)
	if err != nil {
		redirectWithFlash(c, back, flashError, userMessage(c, err))
		return
	}
	redirectWithFlash(c, fmt.Sprintf("%s#comment-%d", back, comment.ID), flashSuccess, "Comment added successfully!")
}

type editCommentRequest struct {
	Text string `json:"text" form:"text"`
}

// Edit 修改评论内容，仅作者可操作
func (h *CommentHandler) Edit(c *gin.Context) {
	commentID, ok := utils.ParseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Comment not found."})
		return
	}
	var req editCommentRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid data"})
		return
	}

	comment, err := h.comments.Edit(c.Request.Context(), currentUser(c), commentID, req.Text)
	if err != nil {
		jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"text":    comment.Text,
		"html":    utils.RenderComment(comment.Text),
	})
}

// Delete 删除评论及其回复和投票
func (h *CommentHandler) Delete(c *gin.Context) {
	commentID, ok := utils.ParseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Comment not found."})
		return
	}
	if err := h.comments.Delete(c.Request.Context(), currentUser(c), commentID); err != nil {
		jsonSoftError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Load returns the next window of top-level comments as JSON ("load more").
func (h *CommentHandler) Load(c *gin.Context) {
	movieID, ok := utils.ParseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Movie not found."})
		return
	}
	offset := utils.ParseOffset(c.Query("offset"))

	ctx := c.Request.Context()
	comments, err := h.comments.ListTopLevel(ctx, movieID, offset, services.PageSize)
	if err != nil {
		jsonError(c, err)
		return
	}
	total, err := h.comments.CountTopLevel(ctx, movieID)
	if err != nil {
		jsonError(c, err)
		return
	}

	if comments == nil {
		comments = []models.Comment{}
	}
	next := offset + len(comments)
	c.JSON(http.StatusOK, gin.H{
		"comments":    comments,
		"offset":      offset,
		"next_offset": next,
		"has_more":    int64(next) < total,
		"total":       total,
	})
}
