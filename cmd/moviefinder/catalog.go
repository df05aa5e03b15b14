package main

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/movies"
)

func newDiscoverCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Print one page of popular movies",
		Example: `  moviefinder discover
  moviefinder discover --page 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if page < 1 {
				return fmt.Errorf("--page must be at least 1")
			}
			return runDiscover(cmd, page)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	return cmd
}

func runDiscover(cmd *cobra.Command, page int) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	catalog := initCatalog(cfg, logger)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	genres, err := catalog.Genres(ctx)
	if err != nil {
		logger.Warn("genres unavailable", slog.String("error", err.Error()))
	}
	lookup := core.NewGenreLookup(genres)

	result, err := catalog.DiscoverMovies(ctx, page)
	if err != nil {
		return fmt.Errorf("discover movies: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styleHeader.Render(fmt.Sprintf("Popular movies, page %d of %d", result.Page, result.TotalPages)))
	for i, m := range result.Movies {
		row := movies.ConfigureRow(m, lookup, catalog.PosterURL)
		fmt.Fprintln(out, renderRow(i+1, m, row))
	}
	if len(result.Movies) == 0 {
		fmt.Fprintln(out, styleDim.Render("No movies on this page."))
	}
	if result.Skipped > 0 {
		fmt.Fprintln(out, styleDim.Render(fmt.Sprintf("%d malformed records skipped.", result.Skipped)))
	}
	return nil
}

func newGenresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genres",
		Short: "List movie genres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			catalog := initCatalog(cfg, logger)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			genres, err := catalog.Genres(ctx)
			if err != nil {
				return fmt.Errorf("list genres: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styleHeader.Render("Genres"))
			for _, g := range genres {
				fmt.Fprintf(out, "%6d  %s\n", g.ID, g.Name)
			}
			return nil
		},
	}
}

func newCastCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "cast <movie-id>",
		Short:   "List the cast of a movie",
		Example: `  moviefinder cast 150540`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			movieID, err := strconv.Atoi(args[0])
			if err != nil || movieID <= 0 {
				return fmt.Errorf("invalid movie id %q", args[0])
			}

			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			catalog := initCatalog(cfg, logger)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cast, err := catalog.Cast(ctx, movieID)
			if err != nil {
				return fmt.Errorf("get cast: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(cast) == 0 {
				fmt.Fprintln(out, styleDim.Render("No cast listed."))
				return nil
			}
			for _, name := range cast {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

func newPosterCmd() *cobra.Command {
	var (
		output string
		detail bool
	)
	cmd := &cobra.Command{
		Use:   "poster <image-path-or-url>",
		Short: "Download a poster or backdrop image",
		Long: "Download an image by its TMDb path (as printed by discover) or a full URL.\n" +
			"Paths are resolved with the list image size, or the detail size with --detail.",
		Example: `  moviefinder poster /q0R4crx2SehcEEQEkYObktdeFy.jpg
  moviefinder poster /szytSpLAyBh3ULei3x663mAv5ZT.jpg --detail -o backdrop.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			catalog := initCatalog(cfg, logger)

			imageURL := args[0]
			if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
				if detail {
					imageURL = catalog.BackdropURL(imageURL)
				} else {
					imageURL = catalog.PosterURL(imageURL)
				}
			}
			if output == "" {
				output = path.Base(args[0])
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			img, err := catalog.FetchImage(ctx, imageURL)
			if err != nil {
				return fmt.Errorf("fetch image: %w", err)
			}
			if err := os.WriteFile(output, img.Data, 0o644); err != nil { //nolint:gosec // image files are meant to be shared
				return fmt.Errorf("write %s: %w", output, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), styleSuccess.Render(
				fmt.Sprintf("✓ Saved %s (%d bytes) to %s", img.ContentType, len(img.Data), output)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: the image file name)")
	cmd.Flags().BoolVar(&detail, "detail", false, "use the detail image size")
	return cmd
}
