package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/movies"
	"github.com/vadimtrunov/moviefinder/internal/voice"
)

const defaultFindPages = 3

func newFindCmd() *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "find <phrase>",
		Short: "Find a popular movie by title, as voice search would",
		Long: "Speak the phrase into voice search and open the first loaded movie whose title\n" +
			"contains it (case-sensitive). More pages are loaded until a title matches.",
		Example: `  moviefinder find "Inside Out"
  moviefinder find Martian --pages 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages < 1 {
				return fmt.Errorf("--pages must be at least 1")
			}
			return runFind(cmd, strings.Join(args, " "), pages)
		},
	}
	cmd.Flags().IntVar(&pages, "pages", defaultFindPages, "maximum number of pages to search")
	return cmd
}

func runFind(cmd *cobra.Command, phrase string, pages int) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	catalog := initCatalog(cfg, logger)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	store, events, closeStore := openStore(catalog, logger)
	defer closeStore()

	if err := awaitOK(ctx, events, store.RetrieveGenres(ctx), movies.OpMovies); err != nil {
		return fmt.Errorf("load movies: %w", err)
	}

	// The whole phrase is spoken at once, so only a final transcript counts.
	vcfg := voice.Config{Mode: voice.MatchFinal, Locale: cfg.Voice.Locale}

	searched := 1
	for {
		err := speak(ctx, store, events, phrase, vcfg, logger)
		var nf *core.NotFoundError
		if !errors.As(err, &nf) {
			if err != nil {
				return err
			}
			break
		}
		var req movies.Request
		ok := searched < pages
		if ok {
			req, ok = store.LoadNextPage(ctx)
		}
		if !ok {
			return fmt.Errorf("%w (searched %d of %d pages)", err, searched, store.PageMax())
		}
		if err := awaitOK(ctx, events, req, movies.OpMovies); err != nil {
			return fmt.Errorf("load movies: %w", err)
		}
		searched++
	}

	m, _ := store.Selected()
	var cast []string
	if err := awaitOK(ctx, events, store.RetrieveCast(ctx), movies.OpCast); err != nil {
		logger.Warn("cast unavailable", slog.Int("movie_id", m.ID), slog.String("error", err.Error()))
	} else {
		cast, _ = store.Cast()
	}

	row := store.ConfigureRow(m, store.Genres())
	fmt.Fprint(cmd.OutOrStdout(), renderDetail(m, row, store.BackdropURL(), cast))
	return nil
}

// speak runs one voice search session that says phrase and waits for its
// outcome.
func speak(
	ctx context.Context, store *movies.Store, events <-chan movies.Event,
	phrase string, vcfg voice.Config, logger *slog.Logger,
) error {
	search := voice.NewSearch(&voice.Script{Phrase: phrase}, voice.TextRecognizer{}, store, vcfg, logger)
	mark := store.LastRequest()
	if err := search.Start(ctx); err != nil {
		return err
	}
	defer search.Cancel()
	e, err := movies.AwaitAfter(ctx, events, mark, movies.OpVoice)
	if err != nil {
		return err
	}
	return e.Err
}
