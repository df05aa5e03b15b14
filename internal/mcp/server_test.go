package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vadimtrunov/moviefinder/internal/core"
)

// mockCatalog implements core.Catalog for testing.
type mockCatalog struct {
	mu          sync.Mutex
	pages       map[int]*core.MoviePage
	discoverErr error
	genres      []core.Genre
	genresErr   error
	cast        []string
	castErr     error
	castFor     int
	requested   []int
}

func (m *mockCatalog) DiscoverMovies(_ context.Context, page int) (*core.MoviePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = append(m.requested, page)
	if m.discoverErr != nil {
		return nil, m.discoverErr
	}
	p, ok := m.pages[page]
	if !ok {
		return nil, &core.TransportError{URL: "/discover/movie", StatusCode: 422}
	}
	return p, nil
}

func (m *mockCatalog) Genres(_ context.Context) ([]core.Genre, error) {
	return m.genres, m.genresErr
}

func (m *mockCatalog) Cast(_ context.Context, movieID int) ([]string, error) {
	m.mu.Lock()
	m.castFor = movieID
	m.mu.Unlock()
	return m.cast, m.castErr
}

func (m *mockCatalog) FetchImage(_ context.Context, _ string) (*core.Image, error) {
	return nil, errors.New("not implemented")
}

func (m *mockCatalog) PosterURL(path string) string {
	if path == "" {
		return ""
	}
	return "https://image.tmdb.org/t/p/w342" + path
}

func (m *mockCatalog) BackdropURL(path string) string {
	if path == "" {
		return ""
	}
	return "https://image.tmdb.org/t/p/original" + path
}

func (m *mockCatalog) pagesRequested() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.requested...)
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		genres: []core.Genre{{ID: 16, Name: "Animation"}, {ID: 10751, Name: "Family"}},
		pages: map[int]*core.MoviePage{
			1: {Page: 1, TotalPages: 3, TotalResults: 5, Skipped: 1, Movies: []core.Movie{
				{ID: 211672, Title: "Minions", PosterPath: "/q0R4crx2SehcEEQEkYObktdeFy.jpg", GenreIDs: []int{10751, 16}},
				{ID: 150540, Title: "Inside Out", BackdropPath: "/szytSpLAyBh3ULei3x663mAv5ZT.jpg", Overview: "Riley is uprooted."},
			}},
			2: {Page: 2, TotalPages: 3, TotalResults: 5, Movies: []core.Movie{
				{ID: 286217, Title: "The Martian", HasVideo: true},
			}},
			3: {Page: 3, TotalPages: 3, TotalResults: 5, Movies: []core.Movie{
				{ID: 606, Title: "Out of Africa"},
			}},
		},
		cast: []string{"Amy Poehler", "Phyllis Smith"},
	}
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	_, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}
	return result
}

func decodeText(t *testing.T, result *mcpsdk.CallToolResult, v any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %+v", result.Content)
	}
	if len(result.Content) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), v); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

func TestDiscoverMovies(t *testing.T) {
	t.Parallel()
	srv := NewServer(Deps{Catalog: newMockCatalog()}, discardLogger)

	var got discoverResult
	decodeText(t, callTool(t, srv, "discover_movies", map[string]any{}), &got)

	if got.Page != 1 || got.TotalPages != 3 || got.Skipped != 1 {
		t.Errorf("unexpected paging: %+v", got)
	}
	if len(got.Movies) != 2 {
		t.Fatalf("expected 2 movies, got %d", len(got.Movies))
	}
	first := got.Movies[0]
	if first.Genres != "Family Animation" {
		t.Errorf("genres = %q", first.Genres)
	}
	if first.PosterURL != "https://image.tmdb.org/t/p/w342/q0R4crx2SehcEEQEkYObktdeFy.jpg" {
		t.Errorf("poster url = %q", first.PosterURL)
	}
}

func TestDiscoverMovies_Page(t *testing.T) {
	t.Parallel()
	cat := newMockCatalog()
	srv := NewServer(Deps{Catalog: cat}, discardLogger)

	var got discoverResult
	decodeText(t, callTool(t, srv, "discover_movies", map[string]any{"page": 2}), &got)
	if got.Page != 2 || len(got.Movies) != 1 || !got.Movies[0].HasVideo {
		t.Errorf("unexpected result: %+v", got)
	}
	if req := cat.pagesRequested(); len(req) != 1 || req[0] != 2 {
		t.Errorf("requested pages = %v", req)
	}
}

func TestDiscoverMovies_GenresUnavailable(t *testing.T) {
	t.Parallel()
	cat := newMockCatalog()
	cat.genresErr = errors.New("genres down")
	srv := NewServer(Deps{Catalog: cat}, discardLogger)

	var got discoverResult
	decodeText(t, callTool(t, srv, "discover_movies", nil), &got)
	if len(got.Movies) != 2 || got.Movies[0].Genres != "" {
		t.Errorf("expected movies without genre names, got %+v", got.Movies)
	}
}

func TestListGenres(t *testing.T) {
	t.Parallel()
	srv := NewServer(Deps{Catalog: newMockCatalog()}, discardLogger)

	var got []core.Genre
	decodeText(t, callTool(t, srv, "list_genres", map[string]any{}), &got)
	if len(got) != 2 || got[0].Name != "Animation" {
		t.Errorf("unexpected genres: %+v", got)
	}
}

func TestMovieCast(t *testing.T) {
	t.Parallel()
	cat := newMockCatalog()
	srv := NewServer(Deps{Catalog: cat}, discardLogger)

	var got struct {
		MovieID int      `json:"movie_id"`
		Cast    []string `json:"cast"`
	}
	decodeText(t, callTool(t, srv, "movie_cast", map[string]any{"movie_id": 150540}), &got)
	if got.MovieID != 150540 || len(got.Cast) != 2 {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestFindMovie(t *testing.T) {
	t.Parallel()
	cat := newMockCatalog()
	srv := NewServer(Deps{Catalog: cat}, discardLogger)

	var got findResult
	decodeText(t, callTool(t, srv, "find_movie", map[string]any{"phrase": "Out"}), &got)

	if !got.Found || got.Movie == nil || got.Movie.Title != "Inside Out" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.PagesSearched != 1 {
		t.Errorf("pages searched = %d", got.PagesSearched)
	}
	if got.BackdropURL != "https://image.tmdb.org/t/p/original/szytSpLAyBh3ULei3x663mAv5ZT.jpg" {
		t.Errorf("backdrop = %q", got.BackdropURL)
	}
	if len(got.Cast) != 2 || got.Cast[0] != "Amy Poehler" {
		t.Errorf("cast = %v", got.Cast)
	}
}

func TestFindMovie_LoadsMorePages(t *testing.T) {
	t.Parallel()
	cat := newMockCatalog()
	srv := NewServer(Deps{Catalog: cat}, discardLogger)

	var got findResult
	decodeText(t, callTool(t, srv, "find_movie", map[string]any{"phrase": "Martian"}), &got)
	if !got.Found || got.Movie.ID != 286217 || got.PagesSearched != 2 {
		t.Errorf("unexpected result: %+v", got)
	}
	if req := cat.pagesRequested(); len(req) != 2 {
		t.Errorf("expected pages 1 and 2 requested, got %v", req)
	}
}

func TestFindMovie_NotFoundWithinBudget(t *testing.T) {
	t.Parallel()
	cat := newMockCatalog()
	srv := NewServer(Deps{Catalog: cat}, discardLogger)

	var got findResult
	decodeText(t, callTool(t, srv, "find_movie", map[string]any{"phrase": "Africa", "pages": 2}), &got)
	if got.Found || got.PagesSearched != 2 {
		t.Errorf("unexpected result: %+v", got)
	}

	var all findResult
	decodeText(t, callTool(t, srv, "find_movie", map[string]any{"phrase": "zzz", "pages": 10}), &all)
	if all.Found || all.PagesSearched != 3 {
		t.Errorf("search should stop at the last page: %+v", all)
	}
}

func TestFindMovie_LoadFailure(t *testing.T) {
	t.Parallel()
	cat := newMockCatalog()
	cat.discoverErr = &core.TransportError{URL: "/discover/movie", StatusCode: 401}
	srv := NewServer(Deps{Catalog: cat}, discardLogger)

	result := callTool(t, srv, "find_movie", map[string]any{"phrase": "Out"})
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestToolError_NilDependency(t *testing.T) {
	t.Parallel()
	srv := NewServer(Deps{}, discardLogger)

	tests := []struct {
		tool string
		args map[string]any
	}{
		{"discover_movies", map[string]any{}},
		{"list_genres", map[string]any{}},
		{"movie_cast", map[string]any{"movie_id": 1}},
		{"find_movie", map[string]any{"phrase": "Out"}},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			t.Parallel()
			result := callTool(t, srv, tt.tool, tt.args)
			if !result.IsError {
				t.Errorf("expected error for %s with nil dependency", tt.tool)
			}
		})
	}
}

func TestToolError_BadArgs(t *testing.T) {
	t.Parallel()
	srv := NewServer(Deps{Catalog: newMockCatalog()}, discardLogger)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"cast without id", "movie_cast", map[string]any{}},
		{"cast id not a number", "movie_cast", map[string]any{"movie_id": "abc"}},
		{"find without phrase", "find_movie", map[string]any{}},
		{"find empty phrase", "find_movie", map[string]any{"phrase": ""}},
		{"find too many pages", "find_movie", map[string]any{"phrase": "Out", "pages": 50}},
		{"discover page zero", "discover_movies", map[string]any{"page": 0}},
		{"discover unknown page", "discover_movies", map[string]any{"page": 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if result := callTool(t, srv, tt.tool, tt.args); !result.IsError {
				t.Errorf("expected error result for %s", tt.name)
			}
		})
	}
}

func TestOptionalIntFromArgs(t *testing.T) {
	t.Parallel()

	n, err := optionalIntFromArgs(nil, "page", 4)
	if err != nil || n != 4 {
		t.Errorf("nil args: got %d, %v", n, err)
	}
	n, err = optionalIntFromArgs(json.RawMessage(`{"page":"7"}`), "page", 1)
	if err != nil || n != 7 {
		t.Errorf("string number: got %d, %v", n, err)
	}
	if _, err := optionalIntFromArgs(json.RawMessage(`{"page":true}`), "page", 1); err == nil {
		t.Error("expected error for boolean page")
	}
}
