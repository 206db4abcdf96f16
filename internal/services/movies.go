package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cinelog/internal/access"
	"cinelog/internal/logger"
	"cinelog/internal/models"
	"cinelog/internal/utils"

	"gorm.io/gorm"
)

const (
	MoviesPerPage = 20
	RandomPicks   = 3
	movieListTTL  = 5 * time.Minute
	movieCachePfx = "movies:"
)

// MovieInput is the editable part of a movie, shared by the form and TMDB import.
type MovieInput struct {
	Title    string   `validate:"required,max=250"`
	Date     string   `validate:"omitempty,max=10"`
	Body     string   `validate:"omitempty"`
	ImgURL   string   `validate:"omitempty,url,max=500"`
	Rating   *float64 `validate:"omitempty,gte=0,lte=10"`
	Director string   `validate:"omitempty,max=250"`
	Writers  string   `validate:"omitempty"`
	Genres   string   `validate:"omitempty,max=250"`
}

func (in *MovieInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Date = strings.TrimSpace(in.Date)
	in.ImgURL = strings.TrimSpace(in.ImgURL)
	in.Director = strings.TrimSpace(in.Director)
	in.Genres = strings.TrimSpace(in.Genres)
}

func (in MovieInput) apply(m *models.Movie) {
	m.Title = in.Title
	m.Date = in.Date
	m.Body = in.Body
	m.ImgURL = in.ImgURL
	m.Rating = in.Rating
	m.Director = in.Director
	m.Writers = in.Writers
	m.Genres = in.Genres
}

// MovieInputFrom copies a stored movie back into an editable input.
func MovieInputFrom(m *models.Movie) MovieInput {
	return MovieInput{
		Title: m.Title, Date: m.Date, Body: m.Body, ImgURL: m.ImgURL, Rating: m.Rating,
		Director: m.Director, Writers: m.Writers, Genres: m.Genres,
	}
}

type MovieService struct {
	db    *gorm.DB
	cache *utils.GlobalCache
}

func NewMovieService(conn *gorm.DB, cache *utils.GlobalCache) *MovieService {
	return &MovieService{db: conn, cache: cache}
}

// NormalizeSort maps the sort_by query value to a known key, title by default.
func NormalizeSort(sortBy string) string {
	switch sortBy {
	case "rating", "date":
		return sortBy
	}
	return "title"
}

func orderFor(sortBy string) string {
	switch sortBy {
	case "rating":
		return "rating IS NULL, rating DESC, title ASC"
	case "date":
		return "date DESC, title ASC"
	}
	return "title ASC"
}

// MoviePage is one page of the catalog.
type MoviePage struct {
	Movies []models.Movie
	Total  int64
	Page   int
	Pages  int
	Sort   string
}

// List returns a page of movies ordered by sortBy (title, rating or date).
func (s *MovieService) List(ctx context.Context, sortBy string, page int) (*MoviePage, error) {
	sortBy = NormalizeSort(sortBy)
	if page < 1 {
		page = 1
	}

	key := fmt.Sprintf("%slist:%s:%d", movieCachePfx, sortBy, page)
	var epoch uint64
	if s.cache != nil {
		epoch = s.cache.Epoch()
		if cached, ok := s.cache.Get(key).(*MoviePage); ok {
			return cached, nil
		}
	}

	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Movie{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var movies []models.Movie
	err := db.Order(orderFor(sortBy)).
		Offset((page - 1) * MoviesPerPage).
		Limit(MoviesPerPage).
		Find(&movies).Error
	if err != nil {
		return nil, err
	}
	if err := s.fillCommentCounts(ctx, movies); err != nil {
		return nil, err
	}

	result := &MoviePage{
		Movies: movies,
		Total:  total,
		Page:   page,
		Pages:  int((total + MoviesPerPage - 1) / MoviesPerPage),
		Sort:   sortBy,
	}
	if s.cache != nil {
		s.cache.SetIfEpoch(key, result, movieListTTL, epoch)
	}
	return result, nil
}

func (s *MovieService) fillCommentCounts(ctx context.Context, movies []models.Movie) error {
	if len(movies) == 0 {
		return nil
	}
	ids := make([]uint, len(movies))
	for i, m := range movies {
		ids[i] = m.ID
	}

	type row struct {
		MovieID uint
		Total   int
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Select("movie_id, COUNT(*) AS total").
		Where("movie_id IN ? AND parent_id IS NULL", ids).
		Group("movie_id").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	counts := make(map[uint]int, len(rows))
	for _, r := range rows {
		counts[r.MovieID] = r.Total
	}
	for i := range movies {
		movies[i].CommentCount = counts[movies[i].ID]
	}
	return nil
}

// Random returns up to n random movies for the sidebar.
func (s *MovieService) Random(ctx context.Context, n int) ([]models.Movie, error) {
	var movies []models.Movie
	err := s.db.WithContext(ctx).Order("RANDOM()").Limit(n).Find(&movies).Error
	return movies, err
}

// Search matches title, director or genres, case-insensitively.
func (s *MovieService) Search(ctx context.Context, query string) ([]models.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var movies []models.Movie
	err := s.db.WithContext(ctx).
		Where("LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(director) LIKE ? ESCAPE '\\' OR LOWER(genres) LIKE ? ESCAPE '\\'", pattern, pattern, pattern).
		Order("title ASC").
		Limit(100).
		Find(&movies).Error
	return movies, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *MovieService) Get(ctx context.Context, id uint) (*models.Movie, error) {
	var m models.Movie
	err := s.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: movie %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// All returns every movie, for the sitemap.
func (s *MovieService) All(ctx context.Context) ([]models.Movie, error) {
	var movies []models.Movie
	err := s.db.WithContext(ctx).Select("id", "slug", "updated_at").Order("id ASC").Find(&movies).Error
	return movies, err
}

// Latest returns the n most recently added movies, for the feed.
func (s *MovieService) Latest(ctx context.Context, n int) ([]models.Movie, error) {
	var movies []models.Movie
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(n).Find(&movies).Error
	return movies, err
}

func (s *MovieService) Create(ctx context.Context, actor *models.User, in MovieInput) (*models.Movie, error) {
	if !access.Has(actor, access.ManageMovies) {
		return nil, fmt.Errorf("%w: you don't have permission to manage movies", ErrPermissionDenied)
	}
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	var m models.Movie
	in.apply(&m)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: a movie titled %q already exists", ErrConflict, in.Title)
		}
		return nil, err
	}
	s.invalidate()
	logger.For(ctx).WithField("movie_id", m.ID).Info("Movie created")
	return &m, nil
}

func (s *MovieService) Update(ctx context.Context, actor *models.User, id uint, in MovieInput) (*models.Movie, error) {
	if !access.Has(actor, access.ManageMovies) {
		return nil, fmt.Errorf("%w: you don't have permission to manage movies", ErrPermissionDenied)
	}
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(m)
	if err := s.db.WithContext(ctx).Save(m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: a movie titled %q already exists", ErrConflict, in.Title)
		}
		return nil, err
	}
	s.invalidate()
	return m, nil
}

// Delete removes a movie with its comments and their votes.
func (s *MovieService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if !access.Has(actor, access.ManageMovies) {
		return fmt.Errorf("%w: you don't have permission to manage movies", ErrPermissionDenied)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		commentIDs := tx.Model(&models.Comment{}).Select("id").Where("movie_id = ?", id)
		if err := tx.Where("comment_id IN (?)", commentIDs).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("movie_id = ? AND parent_id IS NOT NULL", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("movie_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Movie{}, id).Error
	})
	if err != nil {
		return err
	}

	s.invalidate()
	if s.cache != nil {
		s.cache.DeletePrefix(commentPagePrefix(id))
	}
	logger.For(ctx).WithField("movie_id", id).Info("Movie deleted")
	return nil
}

func (s *MovieService) invalidate() {
	if s.cache != nil {
		s.cache.DeletePrefix(movieCachePfx)
	}
}
