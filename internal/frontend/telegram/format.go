package telegram

import (
	"fmt"
	"strings"

	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/movies"
)

const maxCastListed = 10

// mdV2Replacer escapes special characters for Telegram MarkdownV2.
var mdV2Replacer = strings.NewReplacer(
	`\`, `\\`,
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMdV2 escapes a string for safe use in Telegram MarkdownV2.
func EscapeMdV2(s string) string {
	return mdV2Replacer.Replace(s)
}

// FormatBold returns MarkdownV2 bold text.
func FormatBold(s string) string {
	return "*" + EscapeMdV2(s) + "*"
}

// FormatItalic returns MarkdownV2 italic text.
func FormatItalic(s string) string {
	return "_" + EscapeMdV2(s) + "_"
}

// FormatMovieList renders rows as a plain numbered list starting at first.
// The numbering doubles as the /movie argument and keyboard callback.
func FormatMovieList(rows []movies.Row, first int) string {
	var sb strings.Builder
	for i, r := range rows {
		fmt.Fprintf(&sb, "%d. %s", first+i, r.Title)
		if r.Genres != "" {
			fmt.Fprintf(&sb, " [%s]", r.Genres)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatMovieDetail renders a movie with its genres, overview and cast in
// MarkdownV2.
func FormatMovieDetail(m core.Movie, genres core.GenreLookup, cast []string) string {
	row := movies.ConfigureRow(m, genres, nil)

	var sb strings.Builder
	sb.WriteString(FormatBold(row.Title))
	if row.Genres != "" {
		sb.WriteString("\n" + FormatItalic(row.Genres))
	}
	if m.Overview != "" {
		sb.WriteString("\n\n" + EscapeMdV2(m.Overview))
	}
	if len(cast) > 0 {
		listed := cast
		more := ""
		if len(listed) > maxCastListed {
			more = fmt.Sprintf(" and %d more", len(cast)-maxCastListed)
			listed = listed[:maxCastListed]
		}
		sb.WriteString("\n\n" + FormatBold("Cast") + "\n" + EscapeMdV2(strings.Join(listed, ", ")+more))
	}
	return sb.String()
}
