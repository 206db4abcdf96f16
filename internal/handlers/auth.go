package handlers

import (
	"net/http"

	"cinelog/internal/logger"
	"cinelog/internal/middleware"
	"cinelog/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const captchaSessionKey = "captcha_answer"

type AuthHandler struct {
	users          *services.UserService
	captchaService *services.CaptchaService
}

func NewAuthHandler(users *services.UserService, captcha *services.CaptchaService) *AuthHandler {
	return &AuthHandler{users: users, captchaService: captcha}
}

// newCaptcha stores a fresh answer in the session and returns the question.
func (h *AuthHandler) newCaptcha(c *gin.Context) string {
	question, answer := h.captchaService.GenerateMathProblem()
	session := sessions.Default(c)
	session.Set(captchaSessionKey, answer)
	_ = session.Save()
	return question
}

func (h *AuthHandler) ShowRegister(c *gin.Context) {
	if currentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	Render(c, http.StatusOK, "auth/register.html", gin.H{"Title": "Register", "Captcha": h.newCaptcha(c)})
}

func (h *AuthHandler) Register(c *gin.Context) {
	in := services.RegisterInput{
		Name:            c.PostForm("name"),
		Email:           c.PostForm("email"),
		Password:        c.PostForm("password"),
		PasswordConfirm: c.PostForm("password_confirm"),
	}
	form := gin.H{"Title": "Register", "Name": in.Name, "Email": in.Email}

	// Validate Captcha
	session := sessions.Default(c)
	expected, ok := session.Get(captchaSessionKey).(int)
	if !ok || !h.captchaService.Verify(expected, c.PostForm("captcha")) {
		form["Error"] = "Wrong answer to the math question."
		form["Captcha"] = h.newCaptcha(c)
		Render(c, http.StatusBadRequest, "auth/register.html", form)
		return
	}
	// Clear captcha after use
	session.Delete(captchaSessionKey)
	_ = session.Save()

	user, err := h.users.Register(c.Request.Context(), in)
	if err != nil {
		form["Error"] = userMessage(c, err)
		form["Captcha"] = h.newCaptcha(c)
		Render(c, statusFor(err), "auth/register.html", form)
		return
	}

	session.Set(middleware.SessionUserKey, user.ID)
	_ = session.Save()
	redirectWithFlash(c, "/", flashSuccess, "Welcome, "+user.Name+"!")
}

func (h *AuthHandler) ShowLogin(c *gin.Context) {
	if currentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	Render(c, http.StatusOK, "auth/login.html", gin.H{"Title": "Log in"})
}

func (h *AuthHandler) Login(c *gin.Context) {
	email := c.PostForm("email")
	user, err := h.users.Authenticate(c.Request.Context(), email, c.PostForm("password"))
	if err != nil {
		Render(c, statusFor(err), "auth/login.html", gin.H{
			"Title": "Log in",
			"Error": userMessage(c, err),
			"Email": email,
		})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserKey, user.ID)
	_ = session.Save()
	logger.For(c.Request.Context()).WithField("user_id", user.ID).Info("User logged in")
	redirectWithFlash(c, "/", flashSuccess, "Welcome, "+user.Name+"!")
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.Redirect(http.StatusFound, "/")
}

// RefreshCaptcha 刷新验证码 (AJAX)
func (h *AuthHandler) RefreshCaptcha(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"captcha": h.newCaptcha(c)})
}
