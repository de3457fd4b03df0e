package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Set via ldflags at build time
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_date": BuildDate,
			"go_version": runtime.Version(),
			"platform":   runtime.GOOS + "/" + runtime.GOARCH,
			"config":     getConfigPath(),
		}
		if JSONOutput() {
			return printJSON(info)
		}

		fmt.Printf("elixir %s\n", Version)
		if Verbose() {
			for _, k := range []string{"commit", "build_date", "go_version", "platform", "config"} {
				fmt.Printf("  %-11s %s\n", k+":", info[k])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
