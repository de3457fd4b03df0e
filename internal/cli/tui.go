package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/elixir/internal/tui"
	"github.com/tessro/elixir/internal/tui/styles"
)

var tuiRefresh time.Duration

var tuiCmd = &cobra.Command{
	Use:     "ui",
	Aliases: []string{"tui"},
	Short:   "Launch interactive dashboard",
	Long: `Launch the interactive terminal dashboard.

The dashboard provides a live view with:
  • Servers - discovered, registry, and manual servers
  • Library - items on the current server
  • Now Playing - session state, position, backend
  • Details - metadata and files for the highlighted item

Keyboard shortcuts:
  q, Ctrl+C    Quit
  ?            Help
  /            Filter library
  Enter        Use server / play item
  ←/→          Seek
  0-3          Select backend
  o            Toggle player overlay
  e            End session
  r            Refresh
  s            Scan library
  Tab          Switch panel`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().DurationVar(&tuiRefresh, "refresh", 0, "redraw interval (default tui.refresh_interval)")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	controller, arbiter, err := a.player(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	refresh := cfg.TUI.RefreshInterval.Duration
	if tuiRefresh > 0 {
		refresh = tuiRefresh
	}
	styles.SetTheme(cfg.TUI.Theme)

	return tui.Run(&tui.App{
		Servers:     a,
		Library:     a.client,
		Player:      controller,
		Backends:    arbiter,
		RefreshRate: refresh,
		SeekStep:    cfg.Playback.SeekStep,
	})
}
