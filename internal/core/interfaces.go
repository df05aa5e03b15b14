package core

import "context"

// Catalog defines the interface for a remote movie catalog (TMDb)
type Catalog interface {
	// DiscoverMovies returns one page of the discovery listing
	DiscoverMovies(ctx context.Context, page int) (*MoviePage, error)

	// Genres returns the genre list used to label movies
	Genres(ctx context.Context) ([]Genre, error)

	// Cast returns the names of the credited actors of a movie, in billing order
	Cast(ctx context.Context, movieID int) ([]string, error)

	// FetchImage downloads a poster or backdrop image
	FetchImage(ctx context.Context, url string) (*Image, error)

	// PosterURL resolves a poster path against the list-resolution image host
	PosterURL(path string) string

	// BackdropURL resolves a backdrop path against the detail-resolution image host
	BackdropURL(path string) string
}

// Movie represents one catalog record. Every field may be absent in the
// source JSON; absent values are left at their zero value.
type Movie struct {
	ID           int    `json:"id,omitempty"`            // TMDb ID, 0 when absent
	Title        string `json:"title,omitempty"`         // Original title, falls back to the localized title
	Overview     string `json:"overview,omitempty"`      // Plot summary
	PosterPath   string `json:"poster_path,omitempty"`   // Relative poster image path
	BackdropPath string `json:"backdrop_path,omitempty"` // Relative backdrop image path
	HasVideo     bool   `json:"video,omitempty"`         // Thumbnail/video indicator
	GenreIDs     []int  `json:"genre_ids,omitempty"`     // Genre IDs in record order
}

// Genre represents a movie genre
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GenreLookup maps a genre ID to its display name
type GenreLookup map[int]string

// NewGenreLookup builds a lookup from a genre list. Later duplicates win.
func NewGenreLookup(genres []Genre) GenreLookup {
	lookup := make(GenreLookup, len(genres))
	for _, g := range genres {
		lookup[g.ID] = g.Name
	}
	return lookup
}

// MoviePage represents one page of the discovery listing
type MoviePage struct {
	Page         int     // Page number reported by the API
	TotalPages   int     // Maximum page number
	TotalResults int     // Total number of movies across all pages
	Movies       []Movie // Decoded records in response order
	Skipped      int     // Records dropped because they could not be decoded
}

// Image is a downloaded poster or backdrop
type Image struct {
	URL         string
	ContentType string
	Data        []byte
}
