package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logSettings struct {
	Level      zerolog.Level
	Format     string
	File       string
	WithCaller bool
}

// logSettingsFrom reads the logging flags. --verbose lowers the level to debug unless
// trace was asked for. An empty level means warn.
func logSettingsFrom(v *viper.Viper) (logSettings, error) {
	name := strings.ToLower(strings.TrimSpace(v.GetString("log-level")))
	level := zerolog.WarnLevel
	if name != "" {
		var err error
		level, err = zerolog.ParseLevel(name)
		if err != nil {
			return logSettings{}, errors.Wrapf(err, "invalid --log-level %q", name)
		}
	}
	if v.GetBool("verbose") && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	return logSettings{
		Level:      level,
		Format:     v.GetString("log-format"),
		File:       v.GetString("log-file"),
		WithCaller: v.GetBool("with-caller"),
	}, nil
}

// newLogger writes json as is and anything else through a console writer, colored only on
// a terminal. A log file gets an uncolored copy and is rotated.
func newLogger(s logSettings, stderr io.Writer, tty bool) zerolog.Logger {
	out := stderr
	if s.Format != "json" {
		out = zerolog.ConsoleWriter{Out: stderr, NoColor: !tty}
	}
	if s.File != "" {
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{Out: rotatingFile(s.File), NoColor: true})
	}

	ctx := zerolog.New(out).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

func rotatingFile(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// setupLogging replaces the global logger. It runs once at startup and again after cobra
// has parsed the flags.
func setupLogging() {
	s, err := logSettingsFrom(viper.GetViper())
	cobra.CheckErr(err)
	log.Logger = newLogger(s, os.Stderr, isatty.IsTerminal(os.Stderr.Fd()))
	zerolog.SetGlobalLevel(s.Level)
}
