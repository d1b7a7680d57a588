package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/openmined/localsync/internal/client/config"
	"github.com/openmined/localsync/internal/utils"
	"github.com/openmined/localsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
	envPrefix      = "LOCALSYNC"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "localsync",
		Short:         "Apply planned mutations to a local sync tree",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "LocalSync config file")
	flags.StringP("dir", "d", config.DefaultLocalDir, "Local sync root")
	flags.String("journal", "", "Sync journal path (default <dir>/.localsync/journal.db)")
	flags.IntP("workers", "w", config.DefaultWorkers, "Concurrent jobs per wave")
	flags.String("case-preserving", config.CaseAuto, "Treat the filesystem as case preserving: auto, true or false")
	flags.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newApplyCmd(),
		newJournalCmd(),
		newConfigCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	// until a command sets up the real logger
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig merges, in increasing priority, the config file, LOCALSYNC_* env
// vars and explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else if p := os.Getenv(envPrefix + "_CONFIG_PATH"); p != "" {
		v.SetConfigFile(p)
	} else {
		v.AddConfigPath(filepath.Join(home, ".localsync"))
		v.AddConfigPath(filepath.Join(home, ".config", "localsync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	bindings := map[string]string{
		"local_dir":       "dir",
		"journal_path":    "journal",
		"workers":         "workers",
		"case_preserving": "case-preserving",
		"log_level":       "log-level",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flag(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	cfg := &config.Config{
		Path:           v.ConfigFileUsed(),
		LocalDir:       v.GetString("local_dir"),
		JournalPath:    v.GetString("journal_path"),
		Workers:        v.GetInt("workers"),
		CasePreserving: v.GetString("case_preserving"),
		LogLevel:       v.GetString("log_level"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the default logger: console on stderr, rotating file in logDir
func setupLogging(cfg *config.Config, logDir string) (io.Closer, error) {
	level, err := utils.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger, closer, err := utils.NewLogger(utils.LogOptions{
		Level:   level,
		Console: os.Stderr,
		LogDir:  logDir,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}
