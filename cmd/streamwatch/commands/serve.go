package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/streamwatch/config"
	"github.com/halcyonlabs/streamwatch/errors"
	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/logger"
	"github.com/halcyonlabs/streamwatch/members"
	"github.com/halcyonlabs/streamwatch/notify"
	"github.com/halcyonlabs/streamwatch/platform"
	"github.com/halcyonlabs/streamwatch/server"
	"github.com/halcyonlabs/streamwatch/snapshots"
	"github.com/halcyonlabs/streamwatch/targets"
	"github.com/halcyonlabs/streamwatch/tracker"
	"github.com/halcyonlabs/streamwatch/version"
)

// ServeCmd runs the tracker daemon
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker daemon",
	Long: `Run the streamwatch daemon in foreground mode.

The daemon will:
- Open and migrate the database
- Register all tracker jobs and restore their persisted run state
- Serve the HTTP/WebSocket control API
- Run until interrupted (Ctrl+C), draining in-flight cycles on shutdown`,
	RunE: runServe,
}

var (
	serveAddr       string
	serveDBPath     string
	serveConfigPath string
)

func init() {
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
	ServeCmd.Flags().StringVar(&serveConfigPath, "config", "", "Config file to watch for live job config changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(serveDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	memberStore := members.NewStore(database)
	snapStore := snapshots.NewStore(database)

	client := platform.NewHTTPClient(platform.Options{
		BaseURL:           cfg.Platform.BaseURL,
		RequestsPerSecond: cfg.Platform.RequestsPerSecond,
		Burst:             cfg.Platform.Burst,
		Timeout:           time.Duration(cfg.Platform.TimeoutSeconds) * time.Second,
	}, logger.Logger)

	pub, err := notify.Connect(cfg.Bus.URL, logger.Logger)
	if err != nil {
		logger.Warnw("NATS bus unavailable, continuing without it",
			"url", cfg.Bus.URL,
			"error", err)
	}
	defer pub.Close()

	// The server's WebSocket hub and the bus both receive job updates. The
	// hub is attached after the server exists, so the manager gets a fanout
	// that is filled in below before any job starts.
	var notifiers jobs.MultiNotifier
	mgr := jobs.NewManager(
		jobs.NewStateStore(database),
		jobs.SystemClock{},
		logger.Logger,
		jobs.NotifierFunc(func(s jobs.Status) { notifiers.JobUpdated(s) }),
	)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.NewServer(addr, mgr, memberStore, logger.Logger)
	notifiers = append(notifiers, srv.Notifier())
	if pub != nil {
		notifiers = append(notifiers, pub)
	}

	deps := tracker.Deps{
		Members:   memberStore,
		Snapshots: snapStore,
		Platform:  client,
		Clock:     jobs.SystemClock{},
		Log:       logger.Logger,
	}

	runners := []jobs.Runner{
		tracker.NewProfilesRunner(deps, targets.NewSQLSelector(database, logger.Logger)),
		tracker.NewFollowersRunner(deps),
		tracker.NewFollowingRunner(deps),
		tracker.NewLivecheckRunner(deps),
		tracker.NewEventsRunner(deps),
		tracker.NewMessagesRunner(deps),
		tracker.NewMediaRunner(deps),
		tracker.NewRollupRunner(deps),
	}
	for _, r := range runners {
		if _, err := mgr.Register(r); err != nil {
			return errors.Wrapf(err, "failed to register job %s", r.Name())
		}
	}

	if cfg.Media.DestDir != "" {
		if job, ok := mgr.Get(tracker.JobMedia); ok {
			if err := job.UpdateConfig(jobs.ConfigMap{"destDir": cfg.Media.DestDir}); err != nil {
				logger.Warnw("Failed to apply media destination", "error", err)
			}
		}
	}

	if err := applyJobOverrides(mgr, runners, cfg); err != nil {
		return err
	}

	mgr.RestoreAll()

	if serveConfigPath != "" {
		cw, err := config.NewConfigWatcher(serveConfigPath)
		if err != nil {
			return errors.Wrap(err, "failed to watch config file")
		}
		defer cw.Close()
		cw.OnReload(func(c *config.Config) error {
			return applyJobOverrides(mgr, runners, c)
		})
		cw.Start()

		// API-applied config changes are written back into the watched file,
		// otherwise the next file reload would revert them.
		srv.OnConfigUpdate(func(name string, partial jobs.ConfigMap) {
			if err := config.UpdateJobSection(serveConfigPath, name, partial, cw); err != nil {
				logger.Warnw("Failed to persist config update to file",
					"job", name,
					"file", serveConfigPath,
					"error", err)
			}
		})
	}

	printServeBanner(addr, cfg)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infow("Shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
	}

	mgr.HaltAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("Server shutdown failed", "error", err)
	}

	logger.Infow("streamwatch stopped")
	return nil
}

// applyJobOverrides pushes the [jobs.<name>] config file sections into the
// registered jobs. Keys are folded to lower case by the config loader, so
// they are remapped onto each job's own config vocabulary first.
func applyJobOverrides(mgr *jobs.Manager, runners []jobs.Runner, cfg *config.Config) error {
	for _, r := range runners {
		overrides := cfg.JobOverrides(r.Name())
		if len(overrides) == 0 {
			continue
		}

		defaults := r.Defaults()
		reference := make([]string, 0, len(defaults))
		for k := range defaults {
			reference = append(reference, k)
		}

		job, ok := mgr.Get(r.Name())
		if !ok {
			continue
		}
		canon := jobs.ConfigMap(config.CanonicalizeKeys(overrides, reference))
		if err := job.UpdateConfig(canon); err != nil {
			return errors.Wrapf(err, "failed to apply config overrides to job %s", r.Name())
		}
	}
	return nil
}

func printServeBanner(addr string, cfg *config.Config) {
	pterm.DefaultHeader.WithFullWidth().Printf("streamwatch %s", version.Get().Short())
	pterm.Println()
	pterm.Info.Printf("Listening on http://%s", addr)
	pterm.Println()
	pterm.Printf("  Database: %s\n", cfg.Database.Path)
	pterm.Printf("  Platform: %s\n", cfg.Platform.BaseURL)
	if cfg.Bus.URL != "" {
		pterm.Printf("  Bus:      %s\n", cfg.Bus.URL)
	}
	pterm.Println()
	pterm.Println("Press Ctrl+C to shut down")
	pterm.Println()
}
