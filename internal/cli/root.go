package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tessro/elixir/internal/config"
	elixirerrors "github.com/tessro/elixir/internal/errors"
	"github.com/tessro/elixir/internal/logging"
)

var (
	cfgFile    string
	jsonOut    bool
	verbose    bool
	serverFlag string

	cfg    *config.Config
	logger = logging.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "elixir",
	Short: "Browse and play a personal media server from the terminal",
	Long: `Elixir finds media servers on the local network or through your account
registry, browses their libraries, and plays items through a stream,
external, or embedded player backend.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.elixirrc)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "server address (overrides server.url)")
}

func initConfig() error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return elixirerrors.WithSuggestion(
			fmt.Errorf("%w: %v", elixirerrors.ErrInvalidConfig, err),
			"Fix the config file or run 'elixir config show' to inspect it",
		)
	}

	logger = logging.Setup(cfg.Log, verbose)
	return nil
}

// Execute runs the root command and prints any error with its suggestion.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), elixirerrors.Format(err))
	}
	return err
}

// Config returns the loaded configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the logger built from the [log] section.
func Logger() zerolog.Logger {
	return logger
}

// JSONOutput returns true if JSON output is requested.
func JSONOutput() bool {
	return jsonOut
}

// Verbose returns true if verbose output is requested.
func Verbose() bool {
	return verbose
}
