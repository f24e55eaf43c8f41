package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Iron-Ham/panebus/internal/config"
	"github.com/Iron-Ham/panebus/internal/logging"
	"github.com/Iron-Ham/panebus/internal/pubsub"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where events are published",
	Long:  `Display the resolved bus endpoint, whether publishing is enabled and the source metadata attached to events.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var (
	statusTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA"))
	statusKey   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Width(14)
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
)

// statusReport is what the status command prints.
type statusReport struct {
	Enabled   bool
	Endpoint  string
	Listening bool // socket file exists, i.e. a subscriber has bound it
	Include   []string
	Source    pubsub.Source
	Config    string
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	endpoint, err := pubsub.ResolveEndpoint(endpointOptions(cfg))
	if err != nil {
		return err
	}
	_, statErr := os.Stat(endpoint.Path)

	report := statusReport{
		Enabled:   cfg.Publish.ZMQ,
		Endpoint:  endpoint.Address(),
		Listening: statErr == nil,
		Include:   cfg.Publish.Include,
		Source:    detectSource(cmd.Context(), cfg.Source, os.Getenv, logging.NopLogger()),
		Config:    viper.ConfigFileUsed(),
	}

	out := cmd.OutOrStdout()
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	renderStatus(out, report, styled)
	return nil
}

func renderStatus(w io.Writer, r statusReport, styled bool) {
	title, key, ok, warn := lipgloss.NewStyle(), lipgloss.NewStyle().Width(14), lipgloss.NewStyle(), lipgloss.NewStyle()
	if styled {
		title, key, ok, warn = statusTitle, statusKey, statusOK, statusWarn
	}

	line := func(k, v string) {
		fmt.Fprintf(w, "%s %s\n", key.Render(k+":"), v)
	}

	fmt.Fprintln(w, title.Render("panebus"))

	if r.Enabled {
		line("Publishing", ok.Render("enabled"))
	} else {
		line("Publishing", warn.Render("disabled"))
	}
	line("Endpoint", r.Endpoint)
	if r.Listening {
		line("Subscriber", ok.Render("socket present"))
	} else {
		line("Subscriber", warn.Render("none bound, events will be buffered"))
	}
	if len(r.Include) > 0 {
		line("Include", strings.Join(r.Include, ", "))
	} else {
		line("Include", "all events")
	}

	line("Script", r.Source.Script)
	if r.Source.SessionID != "" {
		line("Session", fmt.Sprintf("%s (%s)", r.Source.SessionName, r.Source.SessionID))
	}
	if r.Source.SocketPath != "" {
		line("tmux socket", r.Source.SocketPath)
	}
	line("Host", fmt.Sprintf("%s pid %d", r.Source.Hostname, r.Source.PID))

	if r.Config != "" {
		line("Config", r.Config)
	} else {
		line("Config", "(none - using defaults)")
	}
}
