package handlers

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"cinelog/internal/services"

	"github.com/gin-gonic/gin"
)

type SEOHandler struct {
	movies  *services.MovieService
	siteURL string
}

func NewSEOHandler(movies *services.MovieService, siteURL string) *SEOHandler {
	return &SEOHandler{movies: movies, siteURL: siteURL}
}

// RobotsTxt 返回robots.txt内容
func (h *SEOHandler) RobotsTxt(c *gin.Context) {
	content := fmt.Sprintf(`User-agent: *
Allow: /

# 禁止爬取管理后台和用户管理
Disallow: /admin/
Disallow: /users

# 禁止爬取登录注册页面
Disallow: /login
Disallow: /register

# 禁止爬取API端点
Disallow: /votes
Disallow: /comments/

Sitemap: %s/sitemap.xml
`, h.siteURL)

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.String(http.StatusOK, content)
}

// SitemapXML 动态生成sitemap.xml
func (h *SEOHandler) SitemapXML(c *gin.Context) {
	movies, err := h.movies.All(c.Request.Context())
	if err != nil {
		c.String(http.StatusInternalServerError, userMessage(c, err))
		return
	}
	now := time.Now().Format("2006-01-02")

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
`)
	fmt.Fprintf(&b, `  <url>
    <loc>%s/</loc>
    <lastmod>%s</lastmod>
    <changefreq>daily</changefreq>
    <priority>1.0</priority>
  </url>
`, h.siteURL, now)

	for _, m := range movies {
		fmt.Fprintf(&b, `  <url>
    <loc>%s/movies/%d</loc>
    <lastmod>%s</lastmod>
    <changefreq>weekly</changefreq>
    <priority>0.7</priority>
  </url>
`, h.siteURL, m.ID, m.UpdatedAt.Format("2006-01-02"))
	}
	b.WriteString(`</urlset>`)

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, b.String())
}

// FeedXML 最近加入的影片 RSS 2.0 feed
func (h *SEOHandler) FeedXML(c *gin.Context) {
	movies, err := h.movies.Latest(c.Request.Context(), 20)
	if err != nil {
		c.String(http.StatusInternalServerError, userMessage(c, err))
		return
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">
  <channel>
    <title>cinelog</title>
    <link>` + h.siteURL + `</link>
    <description>Recently added movies</description>
    <lastBuildDate>` + time.Now().Format(time.RFC1123Z) + `</lastBuildDate>
    <atom:link href="` + h.siteURL + `/feed.xml" rel="self" type="application/rss+xml"/>
`)
	for _, m := range movies {
		link := fmt.Sprintf("%s/movies/%d", h.siteURL, m.ID)
		b.WriteString(`    <item>
      <title>` + escapeXML(m.Title) + `</title>
      <link>` + link + `</link>
      <description>` + escapeXML(truncateRunes(m.Body, 300)) + `</description>
      <category>` + escapeXML(m.Genres) + `</category>
      <pubDate>` + m.CreatedAt.Format(time.RFC1123Z) + `</pubDate>
      <guid isPermaLink="true">` + link + `</guid>
    </item>
`)
	}
	b.WriteString(`  </channel>
</rss>`)

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.String(http.StatusOK, b.String())
}

// escapeXML 转义XML特殊字符
func escapeXML(s string) string {
	return html.EscapeString(s)
}

func truncateRunes(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return string(runes)
}
