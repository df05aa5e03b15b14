package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/movies"
)

const (
	defaultFindPages = 3
	maxFindPages     = 20
	findEventBuffer  = 8
)

// Deps holds dependencies for MCP tool handlers.
type Deps struct {
	Catalog core.Catalog
	Version string
}

// Server wraps an MCP SDK server with movie catalog tool handlers.
type Server struct {
	server *mcpsdk.Server
	deps   Deps
	logger *slog.Logger
}

// NewServer creates an MCP server with all catalog tools registered.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "moviefinder",
			Version: deps.Version,
		},
		&mcpsdk.ServerOptions{Logger: logger},
	)

	srv := &Server{server: s, deps: deps, logger: logger}
	srv.registerTools()
	return srv
}

// ServeStdio runs the MCP server over stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// MCPServer returns the underlying MCP SDK server (for testing).
func (s *Server) MCPServer() *mcpsdk.Server {
	return s.server
}

func (s *Server) registerTools() {
	s.server.AddTool(discoverMoviesTool(), s.handleDiscoverMovies)
	s.server.AddTool(listGenresTool(), s.handleListGenres)
	s.server.AddTool(movieCastTool(), s.handleMovieCast)
	s.server.AddTool(findMovieTool(), s.handleFindMovie)
}

func discoverMoviesTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "discover_movies",
		Description: "List popular movies one page at a time. Returns titles, genre names, poster URLs and the total page count.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"page": map[string]any{
					"type":        "integer",
					"description": "Page number, starting at 1 (default 1)",
				},
			},
		},
	}
}

func listGenresTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "list_genres",
		Description: "List the movie genres known to the catalog with their IDs.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func movieCastTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "movie_cast",
		Description: "Get the cast names of a movie by its catalog ID, in billing order.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"movie_id": map[string]any{
					"type":        "integer",
					"description": "The catalog ID of the movie",
				},
			},
			"required": []any{"movie_id"},
		},
	}
}

func findMovieTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name: "find_movie",
		Description: "Find the first popular movie whose title contains a phrase (case-sensitive), " +
			"the way voice search does. Returns the movie, its backdrop URL and cast.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"phrase": map[string]any{
					"type":        "string",
					"description": "Text the title must contain",
				},
				"pages": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("How many pages to search (default %d, max %d)", defaultFindPages, maxFindPages),
				},
			},
			"required": []any{"phrase"},
		},
	}
}

// movieRow is the tool output form of a list entry.
type movieRow struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Genres    string `json:"genres,omitempty"`
	PosterURL string `json:"poster_url,omitempty"`
	HasVideo  bool   `json:"has_video,omitempty"`
}

type discoverResult struct {
	Page         int        `json:"page"`
	TotalPages   int        `json:"total_pages"`
	TotalResults int        `json:"total_results"`
	Skipped      int        `json:"skipped,omitempty"`
	Movies       []movieRow `json:"movies"`
}

type findResult struct {
	Found         bool      `json:"found"`
	PagesSearched int       `json:"pages_searched"`
	Movie         *movieRow `json:"movie,omitempty"`
	Overview      string    `json:"overview,omitempty"`
	BackdropURL   string    `json:"backdrop_url,omitempty"`
	Cast          []string  `json:"cast,omitempty"`
}

func (s *Server) handleDiscoverMovies(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if s.deps.Catalog == nil {
		return toolError("catalog not configured"), nil
	}

	page, err := optionalIntFromArgs(req.Params.Arguments, "page", 1)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if page < 1 {
		return toolError("page must be at least 1"), nil
	}

	genres, err := s.deps.Catalog.Genres(ctx)
	if err != nil {
		s.logger.Warn("genres unavailable, listing without names", slog.String("error", err.Error()))
	}
	lookup := core.NewGenreLookup(genres)

	result, err := s.deps.Catalog.DiscoverMovies(ctx, page)
	if err != nil {
		return toolError(fmt.Sprintf("discover failed: %v", err)), nil
	}

	out := discoverResult{
		Page:         result.Page,
		TotalPages:   result.TotalPages,
		TotalResults: result.TotalResults,
		Skipped:      result.Skipped,
		Movies:       make([]movieRow, 0, len(result.Movies)),
	}
	for _, m := range result.Movies {
		out.Movies = append(out.Movies, s.row(m, lookup))
	}
	return toolJSON(out)
}

func (s *Server) handleListGenres(ctx context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if s.deps.Catalog == nil {
		return toolError("catalog not configured"), nil
	}

	genres, err := s.deps.Catalog.Genres(ctx)
	if err != nil {
		return toolError(fmt.Sprintf("list genres failed: %v", err)), nil
	}
	return toolJSON(genres)
}

func (s *Server) handleMovieCast(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if s.deps.Catalog == nil {
		return toolError("catalog not configured"), nil
	}

	movieID, err := extractIntFromArgs(req.Params.Arguments, "movie_id")
	if err != nil {
		return toolError(err.Error()), nil
	}

	cast, err := s.deps.Catalog.Cast(ctx, movieID)
	if err != nil {
		return toolError(fmt.Sprintf("cast lookup failed: %v", err)), nil
	}
	return toolJSON(map[string]any{
		"movie_id": movieID,
		"cast":     cast,
	})
}

// handleFindMovie browses with a private Store, loading pages until the
// phrase matches or the page budget is spent.
func (s *Server) handleFindMovie(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if s.deps.Catalog == nil {
		return toolError("catalog not configured"), nil
	}

	phrase, err := extractStringFromArgs(req.Params.Arguments, "phrase")
	if err != nil {
		return toolError(err.Error()), nil
	}
	pages, err := optionalIntFromArgs(req.Params.Arguments, "pages", defaultFindPages)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if pages < 1 || pages > maxFindPages {
		return toolError(fmt.Sprintf("pages must be between 1 and %d", maxFindPages)), nil
	}

	dispatcher := movies.NewSerialDispatcher()
	defer dispatcher.Close()
	store := movies.New(s.deps.Catalog, dispatcher, s.logger)
	events, stop := store.Events(findEventBuffer)
	defer stop()

	if err := awaitOK(ctx, events, store.RetrieveGenres(ctx), movies.OpMovies); err != nil {
		return toolError(fmt.Sprintf("load movies failed: %v", err)), nil
	}

	searched := 1
	m, err := store.SelectByTitle(phrase)
	for err != nil && searched < pages {
		req, ok := store.LoadNextPage(ctx)
		if !ok {
			break
		}
		if err := awaitOK(ctx, events, req, movies.OpMovies); err != nil {
			return toolError(fmt.Sprintf("load movies failed: %v", err)), nil
		}
		searched++
		m, err = store.SelectByTitle(phrase)
	}

	var nf *core.NotFoundError
	if errors.As(err, &nf) {
		return toolJSON(findResult{PagesSearched: searched})
	}
	if err != nil {
		return toolError(err.Error()), nil
	}

	out := findResult{
		Found:         true,
		PagesSearched: searched,
		Overview:      m.Overview,
		BackdropURL:   store.BackdropURL(),
	}
	row := s.row(m, store.Genres())
	out.Movie = &row

	if err := awaitOK(ctx, events, store.RetrieveCast(ctx), movies.OpCast); err != nil {
		s.logger.Warn("cast unavailable", slog.Int("movie_id", m.ID), slog.String("error", err.Error()))
	} else {
		out.Cast, _ = store.Cast()
	}
	return toolJSON(out)
}

func (s *Server) row(m core.Movie, genres core.GenreLookup) movieRow {
	r := movies.ConfigureRow(m, genres, s.deps.Catalog.PosterURL)
	return movieRow{
		ID:        m.ID,
		Title:     r.Title,
		Genres:    r.Genres,
		PosterURL: r.PosterURL,
		HasVideo:  m.HasVideo,
	}
}

// awaitOK waits for req to answer op and folds a failed event into the error.
func awaitOK(ctx context.Context, events <-chan movies.Event, req movies.Request, op movies.Op) error {
	e, err := movies.Await(ctx, events, req, op)
	if err != nil {
		return err
	}
	return e.Err
}

// Helper functions.

// toolJSON marshals v to JSON and returns it as text content.
func toolJSON(v any) (*mcpsdk.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil
}

// toolError returns a tool result indicating an error.
func toolError(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		IsError: true,
	}
}

// extractIntFromArgs extracts an integer argument from raw JSON arguments.
func extractIntFromArgs(raw json.RawMessage, key string) (int, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return 0, err
	}
	val, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	return toInt(key, val)
}

// optionalIntFromArgs is extractIntFromArgs with a default for a missing key.
func optionalIntFromArgs(raw json.RawMessage, key string, def int) (int, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return 0, err
	}
	val, ok := args[key]
	if !ok || val == nil {
		return def, nil
	}
	return toInt(key, val)
}

func toInt(key string, val any) (int, error) {
	switch v := val.(type) {
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, val)
	}
}

// extractStringFromArgs extracts a string argument from raw JSON arguments.
func extractStringFromArgs(raw json.RawMessage, key string) (string, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return "", err
	}

	val, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}

	s, ok := val.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
