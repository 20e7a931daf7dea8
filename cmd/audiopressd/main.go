package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/version"
)

var rootCmd = &cobra.Command{
	Use:           "audiopressd",
	Short:         "AudioPress - text-to-speech audio generation service",
	Version:       version.GetVersion(),
	SilenceUsage:  true,  // Don't print usage on error
	SilenceErrors: false, // Do print errors
	Long: `AudioPress turns written content into narrated audio. It synthesizes
speech through Azure, Google, Amazon Polly, OpenAI and ElevenLabs, stores
the produced audio locally or on a podcast host, and keeps a versioned
TTS record per piece of content.

The serve command runs the HTTP API together with the maintenance
scheduler, the Prometheus exporter and (when enabled) the NATS queue
worker. One-off synthesis, credential validation and legacy record
migration are available as standalone commands.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Runs before every subcommand so --log-level (or the
		// AUDIOPRESS_LOG_LEVEL environment variable) wins over the
		// logger's own LOG_LEVEL default.
		if level := viper.GetString("log_level"); level != "" {
			logger.SetLevel(logger.ParseLevel(level))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (default "+defaultConfigFile+")")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	viper.SetEnvPrefix("AUDIOPRESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// setupVersion configures the version display
func setupVersion() {
	// Set custom version template to show detailed version info
	rootCmd.SetVersionTemplate(version.GetVersionInfo() + "\n")
}

func Execute() {
	setupVersion()
	err := rootCmd.Execute()
	if err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}

func main() {
	// A .env file in the working directory seeds provider credentials
	// during development. A missing file is not an error.
	_ = godotenv.Load()
	Execute()
}
