// Package cli implements the chatsync command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/config"
	"github.com/tOgg1/chatsync/internal/logging"
)

var (
	cfgFile        string
	logLevel       string
	logFormat      string
	apiURL         string
	userFlag       string
	tokenFlag      string
	jsonOutput     bool
	jsonlOutput    bool
	verbose        bool
	nonInteractive bool

	appConfig *config.Config
	loader    *config.Loader
	logFile   io.Closer

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Keep chat threads and unread counts in sync with the portal",
	Long: `chatsync polls the portal chat API, keeps unread counts consistent with
what you have read, and lets you read and send messages from the terminal.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/chatsync/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
	flags.StringVar(&apiURL, "api-url", "", "portal base url")
	flags.StringVar(&userFlag, "user", "", "authenticated user id")
	flags.StringVar(&tokenFlag, "token", "", "bearer token")
	flags.BoolVar(&jsonOutput, "json", false, "output JSON")
	flags.BoolVar(&jsonlOutput, "jsonl", false, "output JSON lines")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&nonInteractive, "non-interactive", false, "never start interactive interfaces")
}

// Execute runs the root command.
func Execute(v, c, d string) error {
	version, commit, date = v, c, d
	return rootCmd.Execute()
}

// initConfig loads configuration with precedence defaults < file < env <
// flags and initializes logging.
func initConfig(cmd *cobra.Command, args []string) error {
	loader = config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}
	applyFlagOverrides(loader)

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	appConfig = cfg

	if err := initLogging(cfg); err != nil {
		return err
	}

	if used := loader.ConfigFileUsed(); used != "" {
		logger := logging.Component("cli")
		logger.Debug().Str("config_file", used).Msg("loaded config file")
	}
	return nil
}

func applyFlagOverrides(l *config.Loader) {
	overrides := map[string]string{
		"logging.level":   logLevel,
		"logging.format":  logFormat,
		"api.base_url":    apiURL,
		"session.user_id": userFlag,
		"session.token":   tokenFlag,
	}
	if verbose && logLevel == "" {
		overrides["logging.level"] = "debug"
	}
	for key, value := range overrides {
		if strings.TrimSpace(value) != "" {
			l.Set(key, value)
		}
	}
}

func initLogging(cfg *config.Config) error {
	out := io.Writer(os.Stderr)
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = f
	}
	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       out,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return appConfig
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl was given.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// IsVerbose reports whether --verbose was given.
func IsVerbose() bool {
	return verbose
}

// IsNonInteractive reports whether interactive interfaces are disabled.
func IsNonInteractive() bool {
	return nonInteractive || !hasTTY()
}
