package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/elixir/internal/api"
	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/wizard"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List media servers",
	Long: `List servers found on the local network, in your account registry, and
the manually configured address. Each candidate is listed once; local
discovery wins over the registry, which wins over the manual entry.`,
	Args: cobra.NoArgs,
	RunE: runServers,
}

var serversProbeCmd = &cobra.Command{
	Use:   "probe <address>",
	Short: "Check whether a server answers its health check",
	Args:  cobra.ExactArgs(1),
	RunE:  runServersProbe,
}

var serversUseCmd = &cobra.Command{
	Use:   "use [address]",
	Short: "Switch to a server",
	Long: `Switch to a server and remember it for later commands. Without an
address, pick one from the discovered servers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServersUse,
}

func init() {
	serversCmd.AddCommand(serversProbeCmd)
	serversCmd.AddCommand(serversUseCmd)
	rootCmd.AddCommand(serversCmd)
}

// listCandidates refreshes the merged list, warning about sources that failed.
func listCandidates(ctx context.Context, a *app) []core.ServerCandidate {
	servers, err := a.Candidates(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("some server sources failed")
		if Verbose() {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "warning: %v\n", err)
		}
	}
	return servers
}

func runServers(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	servers := listCandidates(cmd.Context(), a)
	current := a.Current()
	healthy := a.CurrentHealthy(cmd.Context())

	if JSONOutput() {
		return printJSON(map[string]interface{}{
			"current":         current,
			"current_healthy": healthy,
			"servers":         servers,
		})
	}

	if len(servers) == 0 {
		fmt.Println("No servers found.")
		fmt.Println("Set server.url, pass --server, or sign in to a registry.")
		return nil
	}

	table := NewTable("", "NAME", "URL", "SOURCE", "NETWORK")
	for _, s := range servers {
		table.Row(StatusIcon(s.URL == current), TruncateString(s.Label, 32), s.URL, wizard.SourceLabel(s), string(s.Network))
	}
	table.Flush()

	if current != "" {
		if healthy {
			fmt.Printf("\nCurrent server %s is up.\n", current)
		} else {
			fmt.Printf("\nCurrent server %s did not respond.\n", current)
		}
	}
	return nil
}

func runServersProbe(cmd *cobra.Command, args []string) error {
	endpoint := core.NewEndpoint(args[0])
	if !endpoint.Valid() {
		return fmt.Errorf("invalid server address: %q", args[0])
	}

	start := time.Now()
	ok := api.Probe(cmd.Context(), nil, endpoint.URL, cfg.Discovery.ProbeTimeout.Duration)
	elapsed := time.Since(start)

	if JSONOutput() {
		return printJSON(map[string]interface{}{
			"url":        endpoint.URL,
			"healthy":    ok,
			"elapsed_ms": elapsed.Milliseconds(),
		})
	}

	if ok {
		fmt.Printf("%s is up (%s)\n", endpoint.URL, elapsed.Round(time.Millisecond))
		return nil
	}
	fmt.Printf("%s did not respond\n", endpoint.URL)
	return nil
}

func runServersUse(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	var address string
	if len(args) == 1 {
		address = args[0]
	} else {
		interactive := wizard.NewInteractive()
		if !interactive.CanInteract() {
			return fmt.Errorf("no address given and the terminal is not interactive")
		}
		interactive.SetServers(listCandidates(cmd.Context(), a), a.Current())
		picked, err := interactive.PromptServer()
		if err != nil {
			return err
		}
		if picked == nil {
			return nil
		}
		address = picked.URL
	}

	if err := a.Use(cmd.Context(), address); err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(map[string]interface{}{
			"status":        "selected",
			"url":           a.Current(),
			"authenticated": a.client.HasToken(),
		})
	}

	fmt.Printf("Using %s\n", a.Current())
	if !a.client.HasToken() {
		fmt.Println("Not signed in to this server. Run 'elixir auth login'.")
	}
	return nil
}
