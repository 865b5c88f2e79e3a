package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/streamwatch/cmd/streamwatch/commands"
	"github.com/halcyonlabs/streamwatch/logger"
)

var rootCmd = &cobra.Command{
	Use:   "streamwatch",
	Short: "streamwatch - operator activity tracker for live streaming platforms",
	Long: `streamwatch - recurring-job tracker for a streaming platform operator.

streamwatch runs a set of recurring jobs that snapshot member profiles,
sync follower and following lists, ingest account events and messages,
check who is live, archive media, and roll daily statistics up.

Available commands:
  serve   - Run the tracker daemon (jobs + HTTP/WebSocket API)
  jobs    - Inspect and control jobs on a running daemon
  db      - Database statistics
  version - Show version information

Examples:
  streamwatch serve                     # Run the daemon in the foreground
  streamwatch jobs ls                   # List jobs and their status
  streamwatch jobs start profiles       # Start the profiles job
  streamwatch jobs run livecheck        # Trigger one livecheck cycle now
  streamwatch db stats                  # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	// .env is optional; ignore a missing file
	_ = godotenv.Load()

	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
