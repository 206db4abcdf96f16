package handlers

import (
	"errors"
	"net/http"

	"cinelog/internal/logger"
	"cinelog/internal/middleware"
	"cinelog/internal/models"
	"cinelog/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	flashSuccess = "success"
	flashError   = "error"
)

// Render helper to inject common variables like 'current user'
func Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}

	if user := middleware.CurrentUser(c); user != nil {
		obj["CurrentUser"] = user
	}

	// 取出一次性提示
	session := sessions.Default(c)
	successes, errs := session.Flashes(flashSuccess), session.Flashes(flashError)
	if len(successes) > 0 || len(errs) > 0 {
		_ = session.Save()
	}
	obj["FlashSuccess"] = successes
	obj["FlashError"] = errs

	obj["CurrentPath"] = c.Request.URL.Path

	c.HTML(code, name, obj)
}

// Error helper
func RenderError(c *gin.Context, code int, message string) {
	Render(c, code, "error.html", gin.H{"Error": message})
}

func flash(c *gin.Context, kind, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, kind)
	_ = session.Save()
}

// redirectWithFlash stores a message for the next page and redirects there.
func redirectWithFlash(c *gin.Context, path, kind, message string) {
	flash(c, kind, message)
	c.Redirect(http.StatusFound, path)
}

func currentUser(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// userMessage is what a user may see for err; unexpected errors are logged
// and replaced by a generic text.
func userMessage(c *gin.Context, err error) string {
	if services.IsDomainError(err) {
		return services.Message(err)
	}
	logger.For(c.Request.Context()).WithError(err).Error("Request failed")
	return "Something went wrong, please try again."
}

// jsonError answers {success:false, message} with the mapped status.
func jsonError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"success": false, "message": userMessage(c, err)})
}

// jsonSoftError is jsonError for endpoints where a permission denial is an
// ordinary answer (delete, vote): it keeps 200 so page scripts read the message.
func jsonSoftError(c *gin.Context, err error) {
	status := statusFor(err)
	if errors.Is(err, services.ErrPermissionDenied) {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"success": false, "message": userMessage(c, err)})
}
