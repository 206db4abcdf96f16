package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TMDBClient talks to the TMDB v3 REST API.
type TMDBClient struct {
	baseURL  string
	imageURL string
	apiKey   string
	client   *http.Client
}

// NewTMDBClient 创建 TMDB 客户端
func NewTMDBClient(baseURL, imageURL, apiKey string) *TMDBClient {
	return &TMDBClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		imageURL: imageURL,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Enabled is false without an API key; the import pages say so instead of failing.
func (c *TMDBClient) Enabled() bool {
	return c.apiKey != ""
}

// TMDBResult is one search hit.
type TMDBResult struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	Overview    string  `json:"overview"`
	PosterPath  string  `json:"poster_path"`
	VoteAverage float64 `json:"vote_average"`
}

// Year is the release year or "".
func (r TMDBResult) Year() string {
	year, _, _ := strings.Cut(r.ReleaseDate, "-")
	return year
}

type tmdbMovie struct {
	TMDBResult
	Genres []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

type tmdbCredits struct {
	Crew []struct {
		Name string `json:"name"`
		Job  string `json:"job"`
	} `json:"crew"`
}

func (c *TMDBClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build tmdb request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: tmdb %s", ErrNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tmdb %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tmdb %s: %w", path, err)
	}
	return nil
}

// Search looks movies up by title.
func (c *TMDBClient) Search(ctx context.Context, title string) ([]TMDBResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	var out struct {
		Results []TMDBResult `json:"results"`
	}
	if err := c.get(ctx, "/search/movie", url.Values{"query": {title}}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Fetch loads details and credits of one TMDB movie and maps them onto a MovieInput.
func (c *TMDBClient) Fetch(ctx context.Context, tmdbID int) (MovieInput, error) {
	var movie tmdbMovie
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", tmdbID), nil, &movie); err != nil {
		return MovieInput{}, err
	}
	var credits tmdbCredits
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/credits", tmdbID), nil, &credits); err != nil {
		return MovieInput{}, err
	}

	var directors, writers, genres []string
	for _, crew := range credits.Crew {
		switch crew.Job {
		case "Director":
			directors = append(directors, crew.Name)
		case "Writer", "Screenplay":
			writers = append(writers, crew.Name)
		}
	}
	for _, g := range movie.Genres {
		genres = append(genres, g.Name)
	}

	in := MovieInput{
		Title:    movie.Title,
		Date:     movie.Year(),
		Body:     movie.Overview,
		Director: strings.Join(directors, ", "),
		Writers:  strings.Join(writers, ", "),
		Genres:   strings.Join(genres, ", "),
	}
	if movie.PosterPath != "" {
		in.ImgURL = c.imageURL + movie.PosterPath
	}
	rating := movie.VoteAverage
	in.Rating = &rating
	return in, nil
}
