package middleware

import (
	"context"
	"net/http"
	"strings"

	"cinelog/internal/access"
	"cinelog/internal/logger"
	"cinelog/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const CheckUserKey = "user"

// SessionUserKey is the session value holding the logged-in user's id.
const SessionUserKey = "user_id"

// UserLoader looks a session user up.
type UserLoader interface {
	Get(ctx context.Context, id uint) (*models.User, error)
}

// CurrentUser returns the user set by LoadUser, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if u, ok := c.Get(CheckUserKey); ok {
		if user, ok := u.(*models.User); ok {
			return user
		}
	}
	return nil
}

// WantsJSON is true for fetch/XHR style requests that expect a JSON answer.
func WantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json") ||
		strings.HasPrefix(c.ContentType(), "application/json") ||
		c.GetHeader("X-Requested-With") == "XMLHttpRequest"
}

// LoadUser retrieves user from session and sets to context
func LoadUser(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := session.Get(SessionUserKey).(uint)

		if ok && userID != 0 {
			user, err := users.Get(c.Request.Context(), userID)
			if err == nil && user.IsActive {
				c.Set(CheckUserKey, user)
				logger.WithUser(c, user.ID)
			} else {
				// 用户已删除或停用，清理会话
				session.Delete(SessionUserKey)
				_ = session.Save()
			}
		}
		c.Next()
	}
}

// AuthRequired ensures a user is logged in
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			if WantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Please log in first."})
				return
			}
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireCapability lets only users holding cap through; others are sent back
// to the movie list with an error flash.
func RequireCapability(cap access.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !access.Has(CurrentUser(c), cap) {
			if WantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "You don't have permission to access this page."})
				return
			}
			session := sessions.Default(c)
			session.AddFlash("You don't have permission to access this page.", "error")
			_ = session.Save()
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ModeratorRequired admits moderators and admins.
func ModeratorRequired() gin.HandlerFunc {
	return RequireCapability(access.ManageMovies)
}

func AdminRequired() gin.HandlerFunc {
	return RequireCapability(access.DeleteUsers)
}
