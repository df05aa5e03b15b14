package tmdb

import "encoding/json"

// discoverResponse is the paginated /discover/movie response. Results are kept
// raw so that one malformed record does not fail the whole page.
type discoverResponse struct {
	Page         int                `json:"page"`
	TotalPages   int                `json:"total_pages"`
	TotalResults int                `json:"total_results"`
	Results      *[]json.RawMessage `json:"results"`
}

// movieRecord is one entry of discoverResponse.Results, kept as raw fields
// so that each one is decoded on its own.
type movieRecord map[string]json.RawMessage

// genresResponse is the /genre/movie/list response.
type genresResponse struct {
	Genres *[]json.RawMessage `json:"genres"`
}

type genreRecord struct {
	ID   *int    `json:"id"`
	Name *string `json:"name"`
}

// creditsResponse is the /movie/{id}/credits response.
type creditsResponse struct {
	Cast *[]json.RawMessage `json:"cast"`
}

type castRecord struct {
	Name      string `json:"name"`
	Character string `json:"character"`
	Order     int    `json:"order"`
}
