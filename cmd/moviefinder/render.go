package main

import (
	"fmt"
	"strings"

	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/movies"
)

const videoMarker = "▶"

// renderRow formats one numbered list entry over two lines: title and
// genres, then the poster URL.
func renderRow(n int, m core.Movie, row movies.Row) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%3d. %s", n, styleTitle.Render(row.Title))
	if m.HasVideo {
		sb.WriteString(" " + styleInfo.Render(videoMarker))
	}
	if row.Genres != "" {
		sb.WriteString("  " + styleGenres.Render(row.Genres))
	}
	if row.PosterURL != "" {
		sb.WriteString("\n     " + styleDim.Render(row.PosterURL))
	}
	return sb.String()
}

// renderDetail formats the detail view of a movie.
func renderDetail(m core.Movie, row movies.Row, backdropURL string, cast []string) string {
	var sb strings.Builder
	sb.WriteString(styleHeader.Render(row.Title))
	sb.WriteString("\n")
	if row.Genres != "" {
		sb.WriteString(styleGenres.Render(row.Genres) + "\n\n")
	}
	if m.Overview != "" {
		sb.WriteString(m.Overview + "\n\n")
	}
	if backdropURL != "" {
		sb.WriteString(styleDim.Render("Backdrop: ") + backdropURL + "\n\n")
	}
	sb.WriteString(styleInfo.Render("Cast") + "\n")
	if len(cast) == 0 {
		sb.WriteString(styleDim.Render("  (not available)") + "\n")
	}
	for _, name := range cast {
		sb.WriteString("  " + name + "\n")
	}
	return sb.String()
}
