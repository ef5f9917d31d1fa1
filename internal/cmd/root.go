package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/selfie2snap/selfie2snap/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "selfie2snap",
	Short: "Turn two selfies into a set of AI-generated snapshots",
	Long: `Selfie2Snap takes a left and a right portrait plus a few options and
generates a set of frames through an image generation provider. Every
frame is dispatched independently and surfaces the moment it is ready.

Run 'selfie2snap serve' for the HTTP API or 'selfie2snap generate' to
generate from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/selfie2snap/config.yaml)")
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SELFIE2SNAP")
	// e.g. SELFIE2SNAP_GENERATION_MAX_CONCURRENT for generation.max_concurrent
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
