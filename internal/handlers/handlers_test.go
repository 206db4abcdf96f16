package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"cinelog/internal/db/dbtest"
	"cinelog/internal/middleware"
	"cinelog/internal/models"
	"cinelog/internal/router"
	"cinelog/internal/services"
	"cinelog/internal/utils"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testApp struct {
	t        *testing.T
	db       *gorm.DB
	engine   *gin.Engine
	comments *services.CommentService
	movie    *models.Movie
	seq      int
}

type scheduled struct{ ids []uint }

func (s *scheduled) Schedule(id uint) { s.ids = append(s.ids, id) }

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := dbtest.New(t)
	cache := utils.NewCache(100)
	projection := services.NewProjectionService(conn)
	repairs := &scheduled{}
	svc := &router.Services{
		Movies:     services.NewMovieService(conn, cache),
		Comments:   services.NewCommentService(conn, cache, nil),
		Votes:      services.NewVoteService(conn, cache, repairs),
		Users:      services.NewUserService(conn, cache),
		Projection: projection,
		Repairs:    repairs,
		TMDB:       services.NewTMDBClient("http://127.0.0.1:0", "", ""),
		Captcha:    services.NewCaptchaService(),
		SiteURL:    "http://cinelog.test",
	}

	r := gin.New()
	r.Use(sessions.Sessions("cinelog_test", cookie.NewStore([]byte("test-secret"))))

	html := multitemplate.NewRenderer()
	html.AddFromString("error.html", "{{.Error}}")
	html.AddFromString("pages/about.html", "{{.Title}}")
	html.AddFromString("pages/faq.html", "{{.Title}}")
	r.HTMLRender = html

	// 测试专用登录入口
	r.GET("/test/login/:id", func(c *gin.Context) {
		id, _ := utils.ParseID(c.Param("id"))
		session := sessions.Default(c)
		session.Set(middleware.SessionUserKey, id)
		_ = session.Save()
		c.Status(http.StatusNoContent)
	})
	router.RegisterRoutes(r, svc)

	app := &testApp{t: t, db: conn, engine: r, comments: svc.Comments}
	app.movie = &models.Movie{Title: "Blade Runner", Date: "1982"}
	require.NoError(t, conn.Create(app.movie).Error)
	return app
}

func (a *testApp) newUser(role models.Role) *models.User {
	a.t.Helper()
	a.seq++
	u := &models.User{
		Email:    fmt.Sprintf("h%d@example.com", a.seq),
		Name:     fmt.Sprintf("Handler %d", a.seq),
		Password: "x",
		Role:     role,
		IsActive: true,
	}
	require.NoError(a.t, a.db.Create(u).Error)
	return u
}

// login returns the session cookie for u.
func (a *testApp) login(u *models.User) string {
	a.t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/test/login/%d", u.ID), nil)
	a.engine.ServeHTTP(w, req)
	require.Equal(a.t, http.StatusNoContent, w.Code)
	cookieHeader, _, _ := strings.Cut(w.Header().Get("Set-Cookie"), ";")
	return cookieHeader
}

func (a *testApp) topLevel(author *models.User, text string) *models.Comment {
	a.t.Helper()
	r := 8.0
	c, err := a.comments.Create(context.Background(), author, a.movie.ID, text, services.TopLevel{Rating: &r})
	require.NoError(a.t, err)
	return c
}

func (a *testApp) postJSON(path, cookieHeader string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(a.t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testApp) postForm(path, cookieHeader string, form url.Values) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestVoteToggleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	author := app.newUser(models.RoleUser)
	voter := app.newUser(models.RoleUser)
	comment := app.topLevel(author, "Tears in rain")
	session := app.login(voter)

	w := app.postJSON("/votes", session, gin.H{"comment_id": fmt.Sprintf("comment-%d", comment.ID), "vote_type": "like"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["likes"])
	assert.Equal(t, float64(0), body["dislikes"])
	assert.Equal(t, "added", body["outcome"].(map[string]interface{})["kind"])

	// plain numeric id works too
	w = app.postJSON("/votes", session, gin.H{"comment_id": fmt.Sprint(comment.ID), "vote_type": "dislike"})
	body = decode(t, w)
	assert.Equal(t, "changed", body["outcome"].(map[string]interface{})["kind"])
	assert.Equal(t, float64(0), body["likes"])
	assert.Equal(t, float64(1), body["dislikes"])

	w = app.postJSON("/votes", session, gin.H{"comment_id": fmt.Sprint(comment.ID), "vote_type": "dislike"})
	body = decode(t, w)
	assert.Equal(t, "removed", body["outcome"].(map[string]interface{})["kind"])
	assert.Equal(t, float64(0), body["dislikes"])
}

func TestVoteRejectsBadInput(t *testing.T) {
	app := newTestApp(t)
	author := app.newUser(models.RoleUser)
	comment := app.topLevel(author, "hello")
	session := app.login(author)

	w := app.postJSON("/votes", session, gin.H{"comment_id": fmt.Sprint(comment.ID), "vote_type": "love"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid data", decode(t, w)["message"])

	w = app.postJSON("/votes", session, gin.H{"comment_id": "comment-abc", "vote_type": "like"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.postJSON("/votes", session, gin.H{"comment_id": "comment-9999", "vote_type": "like"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestVoteRequiresLogin(t *testing.T) {
	app := newTestApp(t)
	author := app.newUser(models.RoleUser)
	comment := app.topLevel(author, "hello")

	w := app.postJSON("/votes", "", gin.H{"comment_id": fmt.Sprint(comment.ID), "vote_type": "like"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var votes int64
	require.NoError(t, app.db.Model(&models.Vote{}).Count(&votes).Error)
	assert.Zero(t, votes)
}

func TestDeleteDeniedIsSoftError(t *testing.T) {
	app := newTestApp(t)
	author := app.newUser(models.RoleUser)
	stranger := app.newUser(models.RoleUser)
	comment := app.topLevel(author, "mine")

	w := app.postJSON(fmt.Sprintf("/comments/%d/delete", comment.ID), app.login(stranger), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "you don't have permission to delete this comment", body["message"])

	var count int64
	require.NoError(t, app.db.Model(&models.Comment{}).Where("id = ?", comment.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestModeratorDeletesAnyComment(t *testing.T) {
	app := newTestApp(t)
	author := app.newUser(models.RoleUser)
	mod := app.newUser(models.RoleModerator)
	comment := app.topLevel(author, "spam")

	w := app.postJSON(fmt.Sprintf("/comments/%d/delete", comment.ID), app.login(mod), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	var count int64
	require.NoError(t, app.db.Model(&models.Comment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEditIsAuthorOnly(t *testing.T) {
	app := newTestApp(t)
	author := app.newUser(models.RoleUser)
	mod := app.newUser(models.RoleModerator)
	comment := app.topLevel(author, "first draft")
	path := fmt.Sprintf("/comments/%d", comment.ID)

	w := app.postJSON(path, app.login(mod), gin.H{"text": "rewritten"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	w = app.postJSON(path, app.login(author), gin.H{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.postJSON(path, app.login(author), gin.H{"text": "**final**"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "**final**", body["text"])
	assert.Contains(t, body["html"], "<strong>final</strong>")
}

func TestLoadMoreWindows(t *testing.T) {
	app := newTestApp(t)
	author := app.newUser(models.RoleUser)
	for i := 0; i < 7; i++ {
		app.topLevel(author, fmt.Sprintf("comment %d", i))
	}
	path := fmt.Sprintf("/movies/%d/comments", app.movie.ID)

	body := decode(t, app.get(path))
	assert.Len(t, body["comments"], 5)
	assert.Equal(t, float64(5), body["next_offset"])
	assert.Equal(t, true, body["has_more"])
	assert.Equal(t, float64(7), body["total"])

	body = decode(t, app.get(path+"?offset=5"))
	assert.Len(t, body["comments"], 2)
	assert.Equal(t, float64(7), body["next_offset"])
	assert.Equal(t, false, body["has_more"])

	body = decode(t, app.get(path+"?offset=50"))
	assert.Equal(t, []interface{}{}, body["comments"])
}

func TestCreateCommentForm(t *testing.T) {
	app := newTestApp(t)
	author := app.newUser(models.RoleUser)
	session := app.login(author)
	path := fmt.Sprintf("/movies/%d/comments", app.movie.ID)

	// missing rating on a top-level comment
	w := app.postForm(path, session, url.Values{"text": {"no rating"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/movies/%d", app.movie.ID), w.Header().Get("Location"))

	w = app.postForm(path, session, url.Values{"text": {"great"}, "user_rating": {"9"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "#comment-")

	var parent models.Comment
	require.NoError(t, app.db.Where("text = ?", "great").First(&parent).Error)

	// a rating sent along with a reply is dropped
	w = app.postForm(path, session, url.Values{
		"text":        {"agreed"},
		"user_rating": {"3"},
		"parent_id":   {fmt.Sprint(parent.ID)},
	})
	require.Equal(t, http.StatusFound, w.Code)

	var reply models.Comment
	require.NoError(t, app.db.Where("text = ?", "agreed").First(&reply).Error)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, parent.ID, *reply.ParentID)
	assert.Nil(t, reply.UserRating)

	var count int64
	require.NoError(t, app.db.Model(&models.Comment{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCreateCommentRedirectsAnonymous(t *testing.T) {
	app := newTestApp(t)
	w := app.postForm(fmt.Sprintf("/movies/%d/comments", app.movie.ID), "", url.Values{"text": {"hi"}, "user_rating": {"5"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestAdminRecount(t *testing.T) {
	app := newTestApp(t)
	admin := app.newUser(models.RoleAdmin)
	user := app.newUser(models.RoleUser)
	comment := app.topLevel(user, "count me")

	path := fmt.Sprintf("/admin/comments/%d/recount", comment.ID)
	w := app.postJSON(path, app.login(user), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.postJSON(path, app.login(admin), nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(comment.ID), decode(t, w)["scheduled"])
}

func TestRobotsAndSitemap(t *testing.T) {
	app := newTestApp(t)

	w := app.get("/robots.txt")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Sitemap: http://cinelog.test/sitemap.xml")

	w = app.get("/sitemap.xml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf("http://cinelog.test/movies/%d", app.movie.ID))
}

func TestStaticPages(t *testing.T) {
	app := newTestApp(t)

	w := app.get("/about")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "About", w.Body.String())

	w = app.get("/faq")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FAQ", w.Body.String())

	w = app.get("/error")
	assert.Equal(t, "An unexpected error occurred.", w.Body.String())
	w = app.get("/error?message=Movie+gone")
	assert.Equal(t, "Movie gone", w.Body.String())
}
