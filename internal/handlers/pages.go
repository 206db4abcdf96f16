package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// 静态页面
func About(c *gin.Context) {
	Render(c, http.StatusOK, "pages/about.html", gin.H{"Title": "About"})
}

func FAQ(c *gin.Context) {
	Render(c, http.StatusOK, "pages/faq.html", gin.H{"Title": "FAQ"})
}

// ErrorPage shows ?message=, used by redirects that have nothing better to show.
func ErrorPage(c *gin.Context) {
	message := strings.TrimSpace(c.Query("message"))
	if message == "" {
		message = "An unexpected error occurred."
	}
	Render(c, http.StatusOK, "error.html", gin.H{"Title": "Error", "Error": message})
}
