package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessro/elixir/internal/backend"
	"github.com/tessro/elixir/internal/wizard"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Show which playback backends are available",
	Args:  cobra.NoArgs,
	RunE:  runBackends,
}

var backendsUseCmd = &cobra.Command{
	Use:   "use [kind]",
	Short: "Set the default backend",
	Long: `Set playback.backend in the config file. Without a kind, pick one
from the available backends.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBackendsUse,
}

func init() {
	backendsCmd.AddCommand(backendsUseCmd)
	rootCmd.AddCommand(backendsCmd)
}

// backendAvailability probes every backend without starting playback.
func backendAvailability(cmd *cobra.Command) (map[backend.Kind]bool, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	bc := a.cfg.Backends
	arbiter := backend.NewArbiter(a.logger,
		backend.NewStream(bc.Stream.Sink, a.logger),
		backend.NewExternal(bc.External.Binaries, a.logger),
		backend.NewEmbedded(backend.EmbeddedConfig{Binary: bc.Embedded.Binary}, a.logger),
	)
	return arbiter.Availability(cmd.Context()), nil
}

func runBackends(cmd *cobra.Command, args []string) error {
	avail, err := backendAvailability(cmd)
	if err != nil {
		return err
	}

	if JSONOutput() {
		out := make(map[string]interface{}, len(avail))
		for k, ok := range avail {
			out[string(k)] = ok
		}
		return printJSON(map[string]interface{}{
			"default":   cfg.Playback.Backend,
			"available": out,
		})
	}

	table := NewTable("", "#", "BACKEND", "AVAILABLE", "DEFAULT")
	for i, k := range backend.Kinds() {
		def := ""
		if string(k) == cfg.Playback.Backend {
			def = "*"
		}
		yes := "no"
		if avail[k] {
			yes = "yes"
		}
		table.Row(StatusIcon(avail[k]), fmt.Sprint(i), string(k), yes, def)
	}
	table.Flush()
	return nil
}

func runBackendsUse(cmd *cobra.Command, args []string) error {
	var choice string
	if len(args) == 1 {
		choice = args[0]
	} else {
		avail, err := backendAvailability(cmd)
		if err != nil {
			return err
		}
		var options []wizard.BackendOption
		for _, k := range backend.Kinds() {
			options = append(options, wizard.BackendOption{Kind: string(k), Available: avail[k]})
		}
		interactive := wizard.NewInteractive()
		if !interactive.CanInteract() {
			return fmt.Errorf("no backend given and the terminal is not interactive")
		}
		choice, err = interactive.PromptBackend(options, cfg.Playback.Backend)
		if err != nil {
			return err
		}
	}

	kind, err := backend.ParseKind(choice)
	if err != nil {
		return err
	}
	return setConfigValue("playback.backend", string(kind))
}
