package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/streamwatch/errors"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the streamwatch database",
	Long: `Database operations and diagnostics.

Examples:
  streamwatch db stats      # Show row counts per table`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	tables := []struct {
		label string
		table string
	}{
		{"Members", "members"},
		{"Profile snapshots", "profile_snapshots"},
		{"Activity events", "activity_events"},
		{"Follow deltas", "follow_deltas"},
		{"Inbox messages", "inbox_messages"},
		{"Media assets", "media_assets"},
		{"Daily rollups", "stat_rollups"},
		{"Job states", "job_states"},
	}

	rows := pterm.TableData{{"TABLE", "ROWS"}}
	for _, t := range tables {
		var count int64
		if err := database.QueryRow("SELECT COUNT(*) FROM " + t.table).Scan(&count); err != nil {
			return errors.Wrapf(err, "failed to count %s", t.table)
		}
		rows = append(rows, []string{t.label, pterm.Sprintf("%d", count)})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
