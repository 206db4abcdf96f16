package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTMDBServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search/movie", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "Alien", r.URL.Query().Get("query"))
		w.Write([]byte(`{"results":[{"id":348,"title":"Alien","release_date":"1979-05-25","poster_path":"/a.jpg","vote_average":8.1}]}`))
	})
	mux.HandleFunc("/movie/348", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":348,"title":"Alien","release_date":"1979-05-25","overview":"In space.","poster_path":"/a.jpg","vote_average":8.1,"genres":[{"name":"Horror"},{"name":"Science Fiction"}]}`))
	})
	mux.HandleFunc("/movie/348/credits", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"crew":[{"name":"Ridley Scott","job":"Director"},{"name":"Dan O'Bannon","job":"Screenplay"},{"name":"Ronald Shusett","job":"Writer"},{"name":"Jerry Goldsmith","job":"Original Music Composer"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTMDBSearch(t *testing.T) {
	srv := newTMDBServer(t)
	client := NewTMDBClient(srv.URL+"/", "https://img.example/w500", "key")

	results, err := client.Search(context.Background(), " Alien ")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 348, results[0].ID)
	assert.Equal(t, "1979", results[0].Year())
}

func TestTMDBFetchMapsCredits(t *testing.T) {
	srv := newTMDBServer(t)
	client := NewTMDBClient(srv.URL, "https://img.example/w500", "key")

	in, err := client.Fetch(context.Background(), 348)
	require.NoError(t, err)
	assert.Equal(t, "Alien", in.Title)
	assert.Equal(t, "1979", in.Date)
	assert.Equal(t, "Ridley Scott", in.Director)
	assert.Equal(t, "Dan O'Bannon, Ronald Shusett", in.Writers)
	assert.Equal(t, "Horror, Science Fiction", in.Genres)
	assert.Equal(t, "https://img.example/w500/a.jpg", in.ImgURL)
	require.NotNil(t, in.Rating)
	assert.InDelta(t, 8.1, *in.Rating, 0.001)
}

func TestTMDBFetchNotFound(t *testing.T) {
	srv := newTMDBServer(t)
	client := NewTMDBClient(srv.URL, "", "key")

	_, err := client.Fetch(context.Background(), 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTMDBSearchRequiresTitle(t *testing.T) {
	client := NewTMDBClient("http://unused", "", "key")
	_, err := client.Search(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrValidation)
}
