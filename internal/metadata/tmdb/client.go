package tmdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/httpclient"
)

const (
	DefaultBaseURL        = "https://api.themoviedb.org/3"
	DefaultImageListURL   = "https://image.tmdb.org/t/p/w342"
	DefaultImageDetailURL = "https://image.tmdb.org/t/p/original"

	imageCacheTTL     = 15 * time.Minute
	imageCacheEntries = 200
	maxBodyBytes      = 8 << 20
	maxImageBytes     = 20 << 20
	maxErrorBodyBytes = 4096
)

// Config holds the endpoints and credentials of the catalog.
type Config struct {
	APIKey         string
	BaseURL        string
	ImageListURL   string
	ImageDetailURL string
	Language       string // optional ISO 639-1 code sent as ?language=
}

// Client is a TMDb API v3 client. It implements core.Catalog.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	images *imageCache
	logger *slog.Logger
}

var _ core.Catalog = (*Client)(nil)

// New creates a new TMDb client. The HTTP client is shared, not owned:
// callers inject the same instance they use elsewhere.
func New(cfg Config, hc *httpclient.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if hc == nil {
		hc = httpclient.New(httpclient.DefaultConfig(), logger)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ImageListURL == "" {
		cfg.ImageListURL = DefaultImageListURL
	}
	if cfg.ImageDetailURL == "" {
		cfg.ImageDetailURL = DefaultImageDetailURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.ImageListURL = strings.TrimRight(cfg.ImageListURL, "/")
	cfg.ImageDetailURL = strings.TrimRight(cfg.ImageDetailURL, "/")

	return &Client{
		cfg:    cfg,
		http:   hc,
		images: newImageCache(imageCacheTTL, imageCacheEntries),
		logger: logger,
	}
}

// DiscoverMovies fetches one page of /discover/movie.
// Records that cannot be decoded are skipped and counted in MoviePage.Skipped.
func (c *Client) DiscoverMovies(ctx context.Context, page int) (*core.MoviePage, error) {
	params := url.Values{"page": {strconv.Itoa(page)}}

	var resp discoverResponse
	if err := c.get(ctx, "/discover/movie", params, "discover", &resp); err != nil {
		return nil, fmt.Errorf("discover movies page %d: %w", page, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("discover movies page %d: %w",
			page, &core.DecodeError{What: "discover: missing results"})
	}

	result := &core.MoviePage{
		Page:         resp.Page,
		TotalPages:   resp.TotalPages,
		TotalResults: resp.TotalResults,
		Movies:       make([]core.Movie, 0, len(*resp.Results)),
	}
	for i, raw := range *resp.Results {
		m, err := decodeMovie(raw)
		if err != nil {
			c.logger.Warn("skipping malformed movie record",
				slog.Int("page", page),
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			result.Skipped++
			continue
		}
		result.Movies = append(result.Movies, m)
	}
	return result, nil
}

// Genres fetches /genre/movie/list. Entries without an id or name are dropped.
func (c *Client) Genres(ctx context.Context) ([]core.Genre, error) {
	var resp genresResponse
	if err := c.get(ctx, "/genre/movie/list", nil, "genres", &resp); err != nil {
		return nil, fmt.Errorf("list genres: %w", err)
	}
	if resp.Genres == nil {
		return nil, fmt.Errorf("list genres: %w", &core.DecodeError{What: "genres: missing genres"})
	}

	genres := make([]core.Genre, 0, len(*resp.Genres))
	for _, raw := range *resp.Genres {
		var g genreRecord
		if err := json.Unmarshal(raw, &g); err != nil || g.ID == nil || g.Name == nil {
			c.logger.Debug("skipping malformed genre record", slog.String("record", string(raw)))
			continue
		}
		genres = append(genres, core.Genre{ID: *g.ID, Name: *g.Name})
	}
	return genres, nil
}

// Cast fetches /movie/{id}/credits and returns actor names in billing order.
func (c *Client) Cast(ctx context.Context, movieID int) ([]string, error) {
	var resp creditsResponse
	path := fmt.Sprintf("/movie/%d/credits", movieID)
	if err := c.get(ctx, path, nil, "credits", &resp); err != nil {
		return nil, fmt.Errorf("get cast for %d: %w", movieID, err)
	}
	if resp.Cast == nil {
		return nil, fmt.Errorf("get cast for %d: %w", movieID, &core.DecodeError{What: "credits: missing cast"})
	}

	names := make([]string, 0, len(*resp.Cast))
	for _, raw := range *resp.Cast {
		var member castRecord
		if err := json.Unmarshal(raw, &member); err != nil || member.Name == "" {
			continue
		}
		names = append(names, member.Name)
	}
	return names, nil
}

// FetchImage downloads an image. Only a 200 response whose Content-Type
// starts with "image" is accepted.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (*core.Image, error) {
	if rawURL == "" {
		return nil, &core.TransportError{Err: errors.New("empty image URL")}
	}
	if img, ok := c.images.Get(rawURL); ok {
		return img, nil
	}

	resp, err := c.http.Get(ctx, rawURL, "image/*")
	if err != nil {
		return nil, &core.TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.TransportError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image") {
		return nil, &core.TransportError{
			URL: rawURL,
			Err: fmt.Errorf("unexpected content type %q", contentType),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, &core.TransportError{URL: rawURL, Err: fmt.Errorf("read image: %w", err)}
	}

	img := &core.Image{URL: rawURL, ContentType: contentType, Data: data}
	c.images.Set(rawURL, img)
	return img, nil
}

// PosterURL returns the list-resolution URL for a poster path.
func (c *Client) PosterURL(path string) string {
	return joinImageURL(c.cfg.ImageListURL, path)
}

// BackdropURL returns the detail-resolution URL for a backdrop path.
func (c *Client) BackdropURL(path string) string {
	return joinImageURL(c.cfg.ImageDetailURL, path)
}

func joinImageURL(prefix, path string) string {
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}

// decodeMovie decodes one discover record field by field. A mistyped field
// is left at its zero value and the rest of the record is kept; only a
// record that is not an object is rejected.
func decodeMovie(raw json.RawMessage) (core.Movie, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return core.Movie{}, fmt.Errorf("record is not an object")
	}
	var rec movieRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return core.Movie{}, err
	}

	title, ok := field[string](rec, "original_title")
	if !ok || title == "" {
		title, _ = field[string](rec, "title")
	}
	id, _ := field[int](rec, "id")
	overview, _ := field[string](rec, "overview")
	poster, _ := field[string](rec, "poster_path")
	backdrop, _ := field[string](rec, "backdrop_path")
	video, _ := field[bool](rec, "video")
	return core.Movie{
		ID:           id,
		Title:        title,
		Overview:     overview,
		PosterPath:   poster,
		BackdropPath: backdrop,
		HasVideo:     video,
		GenreIDs:     genreIDs(rec),
	}, nil
}

// field decodes rec[key] as a T. A missing or mistyped value yields the zero
// T and false.
func field[T any](rec movieRecord, key string) (T, bool) {
	var v T
	raw, ok := rec[key]
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// genreIDs keeps the integer entries of genre_ids. A missing, null or
// non-array value yields nil.
func genreIDs(rec movieRecord) []int {
	items, _ := field[[]json.RawMessage](rec, "genre_ids")
	if items == nil {
		return nil
	}
	ids := make([]int, 0, len(items))
	for _, item := range items {
		var id *int
		if err := json.Unmarshal(item, &id); err == nil && id != nil {
			ids = append(ids, *id)
		}
	}
	return ids
}

// get performs an authenticated GET request against the API and decodes the
// JSON body into result. Failures are reported as core.TransportError or
// core.DecodeError.
func (c *Client) get(ctx context.Context, path string, params url.Values, what string, result any) error {
	endpoint := c.cfg.BaseURL + path
	u, err := url.Parse(endpoint)
	if err != nil {
		return &core.TransportError{URL: endpoint, Err: fmt.Errorf("invalid URL: %w", err)}
	}

	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	if c.cfg.Language != "" {
		q.Set("language", c.cfg.Language)
	}
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	c.logger.Debug("tmdb request", slog.String("path", path), slog.String("params", params.Encode()))

	resp, err := c.http.Get(ctx, u.String(), "application/json")
	if err != nil {
		return &core.TransportError{URL: endpoint, Err: redact(err, c.cfg.APIKey)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Warn("tmdb API error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return &core.TransportError{URL: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &core.TransportError{URL: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return &core.DecodeError{What: what, Err: err}
	}
	return nil
}

// redact removes the API key from transport errors, which embed the URL.
func redact(err error, apiKey string) error {
	if apiKey == "" || !strings.Contains(err.Error(), apiKey) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), apiKey, "REDACTED"))
}
