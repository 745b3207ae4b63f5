package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ehr/folio/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "folio-server",
		Short:        "Files scanned clinical documents against the HIS folio",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(fileCmd())
	rootCmd.AddCommand(codesCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes JSON to stdout in production and console output in
// development, plus a rotating file when LOG_FILE is set.
func newLogger(cfg *config.Config) zerolog.Logger {
	var console io.Writer = os.Stdout
	if cfg.IsDev() {
		console = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	writers := []io.Writer{console}
	if cfg.LogFile != "" {
		if dir := filepath.Dir(cfg.LogFile); dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}

	level := zerolog.InfoLevel
	if cfg.IsDev() {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Str("service", "folio").
		Logger()
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}
