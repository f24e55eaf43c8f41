package cmd

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/panebus/internal/config"
	"github.com/Iron-Ham/panebus/internal/logging"
	"github.com/Iron-Ham/panebus/internal/pubsub"
	"github.com/Iron-Ham/panebus/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Publish tmux session events until interrupted",
	Long: `Poll the tmux server and publish an event whenever a session is
created, closed, renamed, attached, detached or changes its window
count. Runs until SIGINT or SIGTERM.

Changes to watch.interval_ms in the config file apply without a restart.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("emit-initial", false, "report sessions that already exist as created")
	watchCmd.Flags().String("tmux-socket", "", "tmux server socket name or path")
	_ = viper.BindPFlag("watch.emit_initial", watchCmd.Flags().Lookup("emit-initial"))
	_ = viper.BindPFlag("watch.tmux_socket", watchCmd.Flags().Lookup("tmux-socket"))
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, pubsub.ZMQDialer{})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := a.hooks.Listen(cmd.Context())
	defer stop()

	w := watch.New(watch.TmuxLister(cfg.Watch.TmuxSocket), a.bus,
		watch.WithInterval(cfg.Watch.Interval()),
		watch.WithEmitInitial(cfg.Watch.EmitInitial),
		watch.WithLogger(a.logger))

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadWatchConfig(e, w, a.logger)
		})
		viper.WatchConfig()
	}

	a.logger.Info("watching tmux sessions",
		"tmux_socket", cfg.Watch.TmuxSocket,
		"interval", cfg.Watch.Interval().String(),
		"publishing", cfg.Publish.ZMQ)
	return w.Run(ctx)
}

// reloadWatchConfig applies a changed poll interval. Invalid files are
// reported and ignored.
func reloadWatchConfig(e fsnotify.Event, w *watch.Watcher, logger *logging.Logger) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
		return
	}
	w.SetInterval(cfg.Watch.Interval())
}
