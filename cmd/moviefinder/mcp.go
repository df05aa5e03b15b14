package main

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/vadimtrunov/moviefinder/internal/mcp"
)

// newMCPServeCmd returns the hidden "mcp-serve" subcommand.
// It starts an MCP server over stdin/stdout exposing the catalog as tools.
func newMCPServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "mcp-serve",
		Short:  "Start MCP server over stdio (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			deps := mcpserver.Deps{
				Catalog: initCatalog(cfg, logger),
				Version: version,
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			srv := mcpserver.NewServer(deps, logger)
			return srv.ServeStdio(ctx)
		},
	}
}
