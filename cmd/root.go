package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "govgate",
	Short: "Capability-negotiated MCP gateway to the government platform",
	Long: `govgate exposes the government platform's services to AI agents over
MCP. Tools are organised in groups that the agent enables on demand, every
call is recorded to a session telemetry journal, and authentication against
the platform is resolved lazily with tenant-root fallback.`,
	// SilenceUsage prevents printing the usage message on errors we
	// already report ourselves.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "govgate version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
