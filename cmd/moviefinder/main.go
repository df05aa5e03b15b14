package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render(err.Error()))
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Without a subcommand it opens the
// interactive browser.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "moviefinder",
		Short: "Browse popular movies from TMDb",
		Long: "MovieFinder lists popular movies from The Movie Database, shows their\n" +
			"genres, posters and cast, and finds a title by voice or text.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrowse(cmd, "")
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/moviefinder.yaml", "path to configuration file")

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(
		newVersionCmd(),
		newBrowseCmd(),
		newDiscoverCmd(),
		newGenresCmd(),
		newCastCmd(),
		newFindCmd(),
		newPosterCmd(),
		newConfigCmd(),
		newBotCmd(),
		newMCPServeCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "MovieFinder v%s\n", version)
		},
	}
}
