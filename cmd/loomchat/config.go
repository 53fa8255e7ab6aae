package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configFlag returns the value of --config. The file is read before cobra parses the
// command line, so the flag is looked up by hand.
func configFlag(args []string) string {
	for i, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func configSearchPaths() []string {
	paths := []string{".", filepath.Join("$HOME", ".loomchat")}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "loomchat"))
	}
	return paths
}

// loadConfig layers the persistent flags of cmd over LOOMCHAT_* environment variables, a
// .env file and the config file. A missing config file is only an error when path names it.
func loadConfig(v *viper.Viper, cmd *cobra.Command, path string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Could not load .env file")
	}

	v.SetEnvPrefix("loomchat")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		for _, p := range configSearchPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "reading config")
		}
	}

	return v.BindPFlags(cmd.PersistentFlags())
}
