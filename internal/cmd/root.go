package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/panebus/internal/cmd/config"
	appconfig "github.com/Iron-Ham/panebus/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "panebus",
	Short: "Publish tmux session events to a local message bus",
	Long: `panebus publishes tmux session lifecycle events on a local ZeroMQ
pub/sub socket so that other tools can react to session activity
without polling tmux themselves.

Events are buffered while no subscriber is reachable and delivered
in order once the bus comes up.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/panebus/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	config.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	appconfig.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath(".")
	}

	// e.g. PANEBUS_PUBLISH_SOCKET_NAME for publish.socket_name
	appconfig.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
