package movies

import (
	"strings"

	"github.com/vadimtrunov/moviefinder/internal/core"
)

// UntitledLabel is shown for movies without a title.
const UntitledLabel = "Untitled"

// Row is the display form of one list entry.
type Row struct {
	Title     string
	Genres    string // known genre names in record order, space separated
	PosterURL string // empty when the movie has no poster
}

// ConfigureRow formats m for a list row. Genre IDs missing from genres are
// skipped; posterURL resolves the poster path and is only called when the
// movie has one.
func ConfigureRow(m core.Movie, genres core.GenreLookup, posterURL func(string) string) Row {
	row := Row{Title: m.Title}
	if row.Title == "" {
		row.Title = UntitledLabel
	}

	names := make([]string, 0, len(m.GenreIDs))
	for _, id := range m.GenreIDs {
		if name, ok := genres[id]; ok {
			names = append(names, name)
		}
	}
	row.Genres = strings.Join(names, " ")

	if m.PosterPath != "" && posterURL != nil {
		row.PosterURL = posterURL(m.PosterPath)
	}
	return row
}

// MatchTitle returns the index of the first movie whose title contains
// phrase. The comparison is case-sensitive; untitled movies and an empty
// phrase never match.
func MatchTitle(list []core.Movie, phrase string) (int, bool) {
	if phrase == "" {
		return -1, false
	}
	for i, m := range list {
		if m.Title != "" && strings.Contains(m.Title, phrase) {
			return i, true
		}
	}
	return -1, false
}
