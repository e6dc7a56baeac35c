package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"govgate/internal/app"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigDir points at a single configuration directory, bypassing the
// layered user/project lookup.
var serveConfigDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway MCP server",
	Long: `Starts the gateway and serves the operation catalogue over MCP.

The transport comes from configuration: stdio for local agent use (stdout
carries the protocol, logs go to stderr), or SSE for serving over HTTP.
Only the core operation group is advertised at startup; agents call
enable_groups to expand the tool set. When a dashboard listen address is
configured, the telemetry read API is served alongside.

Configuration is layered from ~/.config/govgate/config.yaml and
./.govgate/config.yaml, or taken from a single directory with --config-dir.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Config{
		Debug:     serveDebug,
		ConfigDir: serveConfigDir,
		Version:   rootCmd.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigDir, "config-dir", "", "Load configuration from this directory only")
}
