package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cinelog/internal/logger"
	"cinelog/internal/models"
	"cinelog/internal/services"
	"cinelog/internal/utils"

	"github.com/gin-gonic/gin"
)

type MovieHandler struct {
	movies   *services.MovieService
	comments *services.CommentService
	votes    *services.VoteService
	tmdb     *services.TMDBClient
	siteURL  string
}

func NewMovieHandler(movies *services.MovieService, comments *services.CommentService, votes *services.VoteService, tmdb *services.TMDBClient, siteURL string) *MovieHandler {
	return &MovieHandler{movies: movies, comments: comments, votes: votes, tmdb: tmdb, siteURL: siteURL}
}

// List 影片列表，支持 sort_by=title|rating|date 与分页
func (h *MovieHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	page, err := h.movies.List(ctx, c.Query("sort_by"), utils.StringToInt(c.DefaultQuery("page", "1")))
	if err != nil {
		RenderError(c, http.StatusInternalServerError, userMessage(c, err))
		return
	}
	picks, err := h.movies.Random(ctx, services.RandomPicks)
	if err != nil {
		logger.For(ctx).WithError(err).Warn("Random picks failed")
	}

	Render(c, http.StatusOK, "movies/list.html", gin.H{
		"Title":        "Movies",
		"Page":         page,
		"RandomMovies": picks,
		"CurrentSort":  page.Sort,
		"FullURL":      h.siteURL + "/",
	})
}

func (h *MovieHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	movies, err := h.movies.Search(c.Request.Context(), query)
	if err != nil {
		RenderError(c, http.StatusInternalServerError, userMessage(c, err))
		return
	}
	Render(c, http.StatusOK, "movies/search.html", gin.H{
		"Title":   "Search - " + query,
		"Query":   query,
		"Results": movies,
	})
}

// Detail 影片详情页，带第一屏评论（offset 可通过查询参数指定）
func (h *MovieHandler) Detail(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		RenderError(c, http.StatusNotFound, "Movie not found.")
		return
	}
	movie, err := h.movies.Get(ctx, id)
	if err != nil {
		RenderError(c, statusFor(err), userMessage(c, err))
		return
	}

	offset := utils.ParseOffset(c.Query("offset"))
	comments, err := h.comments.ListTopLevel(ctx, id, offset, services.PageSize)
	if err != nil {
		RenderError(c, http.StatusInternalServerError, userMessage(c, err))
		return
	}
	total, err := h.comments.CountTopLevel(ctx, id)
	if err != nil {
		RenderError(c, http.StatusInternalServerError, userMessage(c, err))
		return
	}

	myVotes := map[uint]models.VoteType{}
	if user := currentUser(c); user != nil {
		var ids []uint
		for _, cm := range comments {
			ids = append(ids, cm.ID)
			for _, r := range cm.Replies {
				ids = append(ids, r.ID)
			}
		}
		if myVotes, err = h.votes.UserVotes(ctx, user.ID, ids); err != nil {
			logger.For(ctx).WithError(err).Warn("Loading user votes failed")
			myVotes = map[uint]models.VoteType{}
		}
	}

	next := offset + len(comments)
	Render(c, http.StatusOK, "movies/detail.html", gin.H{
		"Title":         movie.Title,
		"Description":   fmt.Sprintf("%s (%s) - %s", movie.Title, movie.Date, movie.Director),
		"FullURL":       fmt.Sprintf("%s/movies/%d", h.siteURL, movie.ID),
		"Movie":         movie,
		"MovieBody":     utils.RenderDescription(movie.Body),
		"Comments":      comments,
		"TotalComments": total,
		"Offset":        offset,
		"NextOffset":    next,
		"HasMore":       int64(next) < total,
		"PrevOffset":    max(0, offset-services.PageSize),
		"MyVotes":       myVotes,
		"StarRange":     []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	})
}

// movieInputFromForm reads the movie form. A blank rating means none.
func movieInputFromForm(c *gin.Context) (services.MovieInput, error) {
	in := services.MovieInput{
		Title:    c.PostForm("title"),
		Date:     c.PostForm("date"),
		Body:     c.PostForm("body"),
		ImgURL:   c.PostForm("img_url"),
		Director: c.PostForm("director"),
		Writers:  c.PostForm("writers"),
		Genres:   c.PostForm("genres"),
	}
	if raw := strings.TrimSpace(c.PostForm("rating")); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return in, fmt.Errorf("%w: rating must be a number", services.ErrValidation)
		}
		in.Rating = &r
	}
	return in, nil
}

func (h *MovieHandler) ShowCreate(c *gin.Context) {
	Render(c, http.StatusOK, "movies/form.html", gin.H{
		"Title":  "Add movie",
		"Action": "/movies/new",
		"Input":  services.MovieInput{},
	})
}

func (h *MovieHandler) Create(c *gin.Context) {
	in, err := movieInputFromForm(c)
	if err == nil {
		var movie *models.Movie
		movie, err = h.movies.Create(c.Request.Context(), currentUser(c), in)
		if err == nil {
			redirectWithFlash(c, fmt.Sprintf("/movies/%d", movie.ID), flashSuccess, "Movie added successfully!")
			return
		}
	}
	Render(c, statusFor(err), "movies/form.html", gin.H{
		"Title":  "Add movie",
		"Action": "/movies/new",
		"Input":  in,
		"Error":  userMessage(c, err),
	})
}

func (h *MovieHandler) ShowEdit(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		RenderError(c, http.StatusNotFound, "Movie not found.")
		return
	}
	movie, err := h.movies.Get(c.Request.Context(), id)
	if err != nil {
		RenderError(c, statusFor(err), userMessage(c, err))
		return
	}
	Render(c, http.StatusOK, "movies/form.html", gin.H{
		"Title":  "Edit " + movie.Title,
		"Action": fmt.Sprintf("/movies/%d/edit", movie.ID),
		"Input":  services.MovieInputFrom(movie),
		"Movie":  movie,
	})
}

func (h *MovieHandler) Update(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		RenderError(c, http.StatusNotFound, "Movie not found.")
		return
	}
	in, err := movieInputFromForm(c)
	if err == nil {
		_, err = h.movies.Update(c.Request.Context(), currentUser(c), id, in)
		if err == nil {
			redirectWithFlash(c, fmt.Sprintf("/movies/%d", id), flashSuccess, "Movie updated successfully!")
			return
		}
	}
	Render(c, statusFor(err), "movies/form.html", gin.H{
		"Title":  "Edit movie",
		"Action": fmt.Sprintf("/movies/%d/edit", id),
		"Input":  in,
		"Error":  userMessage(c, err),
	})
}

func (h *MovieHandler) Delete(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		RenderError(c, http.StatusNotFound, "Movie not found.")
		return
	}
	if err := h.movies.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		redirectWithFlash(c, fmt.Sprintf("/movies/%d", id), flashError, userMessage(c, err))
		return
	}
	redirectWithFlash(c, "/", flashSuccess, "Movie deleted successfully!")
}

// ShowFind TMDB 搜索页
func (h *MovieHandler) ShowFind(c *gin.Context) {
	Render(c, http.StatusOK, "movies/find.html", gin.H{
		"Title":   "Find on TMDB",
		"Enabled": h.tmdb.Enabled(),
	})
}

func (h *MovieHandler) Find(c *gin.Context) {
	title := c.PostForm("title")
	data := gin.H{"Title": "Find on TMDB", "Query": title, "Enabled": h.tmdb.Enabled()}
	if !h.tmdb.Enabled() {
		Render(c, http.StatusServiceUnavailable, "movies/find.html", data)
		return
	}

	results, err := h.tmdb.Search(c.Request.Context(), title)
	if err != nil {
		data["Error"] = userMessage(c, err)
		Render(c, statusFor(err), "movies/find.html", data)
		return
	}
	data["Options"] = results
	Render(c, http.StatusOK, "movies/find.html", data)
}

// Import 从 TMDB 导入影片（含导演、编剧），成功后跳到编辑页
func (h *MovieHandler) Import(c *gin.Context) {
	tmdbID := utils.StringToInt(c.Param("tmdb_id"))
	if tmdbID <= 0 || !h.tmdb.Enabled() {
		redirectWithFlash(c, "/movies/find", flashError, "Error importing movie.")
		return
	}

	ctx := c.Request.Context()
	in, err := h.tmdb.Fetch(ctx, tmdbID)
	if err != nil {
		redirectWithFlash(c, "/movies/find", flashError, "Error importing movie: "+userMessage(c, err))
		return
	}
	movie, err := h.movies.Create(ctx, currentUser(c), in)
	if err != nil {
		redirectWithFlash(c, "/movies/find", flashError, "Error importing movie: "+userMessage(c, err))
		return
	}
	redirectWithFlash(c, fmt.Sprintf("/movies/%d/edit", movie.ID), flashSuccess,
		fmt.Sprintf("Movie '%s' imported successfully!", movie.Title))
}
