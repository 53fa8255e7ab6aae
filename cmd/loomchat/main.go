package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-go-golems/loomchat/cmd/loomchat/cmds"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "loomchat",
	Short:         "loomchat is a branching chat client for Gemini",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("loomchat failed")
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("config", "", "Path to config file (default ~/.loomchat/config.yaml)")
	f.String("log-level", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	f.String("log-format", "text", "Log format (json, text)")
	f.String("log-file", "", "Also write logs to this file, rotated")
	f.Bool("with-caller", false, "Log caller")
	f.Bool("verbose", false, "Verbose output")

	f.String("store", "", "State location: sqlite file, yaml file, redis:// url or memory: (default <config dir>/loomchat/loomchat.db)")
	f.String("model", "", "Model to use for this invocation")
	f.String("api-key", "", "API key to use for this invocation, not saved")
	f.BoolP("yes", "y", false, "Rotate API keys on rate limits without asking")
	f.Bool("no-render", false, "Print replies as plain text")

	cobra.CheckErr(loadConfig(viper.GetViper(), rootCmd, configFlag(os.Args[1:])))
	setupLogging()
	log.Debug().Str("config", viper.ConfigFileUsed()).Msg("Loaded configuration")

	cmds.AddCommands(rootCmd)
}
