package handlers

import (
	"fmt"
	"net/http"

	"cinelog/internal/services"
	"cinelog/internal/utils"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users    *services.UserService
	comments *services.CommentService
}

func NewUserHandler(users *services.UserService, comments *services.CommentService) *UserHandler {
	return &UserHandler{users: users, comments: comments}
}

// List 用户管理列表（版主和管理员）
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), currentUser(c))
	if err != nil {
		redirectWithFlash(c, "/", flashError, userMessage(c, err))
		return
	}
	Render(c, http.StatusOK, "users/list.html", gin.H{
		"Title": "Users",
		"Users": users,
		"Roles": []string{"user", "moderator", "admin"},
	})
}

// Profile 用户主页，按影片分组展示其评论
func (h *UserHandler) Profile(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		RenderError(c, http.StatusNotFound, "User not found.")
		return
	}
	owner, err := h.users.Get(ctx, id)
	if err != nil {
		RenderError(c, statusFor(err), userMessage(c, err))
		return
	}
	groups, err := h.comments.ListByAuthor(ctx, owner.ID)
	if err != nil {
		RenderError(c, http.StatusInternalServerError, userMessage(c, err))
		return
	}
	Render(c, http.StatusOK, "users/profile.html", gin.H{
		"Title":        owner.Name,
		"ProfileOwner": owner,
		"UserComments": groups,
	})
}

func (h *UserHandler) AssignRole(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		redirectWithFlash(c, "/users", flashError, "User not found.")
		return
	}
	user, err := h.users.AssignRole(c.Request.Context(), currentUser(c), id, c.Param("role"))
	if err != nil {
		redirectWithFlash(c, "/users", flashError, userMessage(c, err))
		return
	}
	redirectWithFlash(c, "/users", flashSuccess, fmt.Sprintf("Role '%s' assigned to %s.", user.Role, user.Name))
}

func (h *UserHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		redirectWithFlash(c, "/users", flashError, "User not found.")
		return
	}
	target, err := h.users.Get(ctx, id)
	if err != nil {
		redirectWithFlash(c, "/users", flashError, userMessage(c, err))
		return
	}
	if err := h.users.Delete(ctx, currentUser(c), id); err != nil {
		redirectWithFlash(c, "/users", flashError, userMessage(c, err))
		return
	}
	redirectWithFlash(c, "/users", flashSuccess, fmt.Sprintf("User %s has been deleted.", target.Name))
}
