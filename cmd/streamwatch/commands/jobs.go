package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/streamwatch/config"
	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/jobs"
)

// JobsCmd inspects and controls jobs on a running daemon
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control jobs on a running daemon",
	Long: `Talk to a running streamwatch daemon over its HTTP API.

Examples:
  streamwatch jobs ls                        # List all jobs
  streamwatch jobs status profiles           # One job in detail
  streamwatch jobs start profiles            # Start the recurring schedule
  streamwatch jobs run livecheck             # Trigger one cycle now
  streamwatch jobs config profiles           # Show effective config
  streamwatch jobs config profiles batchSize=10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsServerURL string

func init() {
	JobsCmd.PersistentFlags().StringVar(&jobsServerURL, "server", "", "Daemon base URL (default http://<server.addr> from config)")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsStatusCmd)
	JobsCmd.AddCommand(jobsConfigCmd)
	for _, action := range []string{"start", "stop", "pause", "resume", "run", "reset-stats"} {
		JobsCmd.AddCommand(newJobActionCmd(action))
	}
}

// serverBaseURL resolves the daemon URL from the flag or the config file.
func serverBaseURL() string {
	if jobsServerURL != "" {
		return strings.TrimRight(jobsServerURL, "/")
	}
	addr := config.DefaultServerAddr
	if cfg, err := config.Load(); err == nil && cfg.Server.Addr != "" {
		addr = cfg.Server.Addr
	}
	return "http://" + addr
}

func apiRequest(method, path string, body []byte) ([]byte, error) {
	url := serverBaseURL() + path

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "daemon unreachable at %s", serverBaseURL())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, errors.Newf("%s", apiErr.Error)
		}
		return nil, errors.Newf("daemon returned HTTP %d", resp.StatusCode)
	}

	return data, nil
}

var jobsLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List jobs and their status",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := apiRequest(http.MethodGet, "/api/jobs", nil)
		if err != nil {
			return err
		}

		var resp struct {
			Jobs []jobs.Status `json:"jobs"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return errors.Wrap(err, "failed to decode job list")
		}

		rows := pterm.TableData{{"NAME", "STATE", "LAST RUN", "OK", "FAILED", "CYCLES"}}
		for _, s := range resp.Jobs {
			rows = append(rows, []string{
				s.Name,
				jobStateLabel(s),
				lastRunLabel(s.Stats),
				strconv.FormatInt(s.Stats.LastRunSucceeded, 10),
				strconv.FormatInt(s.Stats.LastRunFailed, 10),
				strconv.FormatInt(s.Stats.TotalRuns, 10),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func jobStateLabel(s jobs.Status) string {
	switch {
	case s.Processing:
		return "processing"
	case s.Paused:
		return "paused"
	case s.Running:
		return "running"
	default:
		return "stopped"
	}
}

func lastRunLabel(stats jobs.RunStats) string {
	if stats.LastRunAt == nil {
		return "never"
	}
	return stats.LastRunAt.Local().Format("2006-01-02 15:04:05")
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job>",
	Short: "Show one job in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := apiRequest(http.MethodGet, "/api/jobs/"+args[0], nil)
		if err != nil {
			return err
		}

		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return errors.Wrap(err, "failed to format response")
		}
		fmt.Println(out.String())
		return nil
	},
}

func newJobActionCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <job>",
		Short: titleCase(strings.ReplaceAll(action, "-", " ")) + " a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := apiRequest(http.MethodPost, "/api/jobs/"+args[0]+"/"+action, nil); err != nil {
				return err
			}
			pterm.Success.Printf("%s: %s", args[0], action)
			pterm.Println()
			return nil
		},
	}
}

var jobsConfigCmd = &cobra.Command{
	Use:   "config <job> [key=value ...]",
	Short: "Show or update a job's config",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if len(args) == 1 {
			data, err := apiRequest(http.MethodGet, "/api/jobs/"+name+"/config", nil)
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, data, "", "  "); err != nil {
				return errors.Wrap(err, "failed to format response")
			}
			fmt.Println(out.String())
			return nil
		}

		update := make(map[string]interface{}, len(args)-1)
		for _, pair := range args[1:] {
			key, value, ok := strings.Cut(pair, "=")
			if !ok || key == "" {
				return errors.Newf("invalid key=value pair %q", pair)
			}
			update[key] = parseConfigValue(value)
		}

		body, err := json.Marshal(update)
		if err != nil {
			return errors.Wrap(err, "failed to encode config update")
		}
		if _, err := apiRequest(http.MethodPut, "/api/jobs/"+name+"/config", body); err != nil {
			return err
		}
		pterm.Success.Printf("%s: config updated", name)
		pterm.Println()
		return nil
	},
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// parseConfigValue guesses the type of a CLI-supplied config value. Bools
// and numbers are common enough to deserve it; everything else is a string.
func parseConfigValue(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
