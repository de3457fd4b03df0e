package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tessro/elixir/internal/backend"
	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/session"
	"github.com/tessro/elixir/internal/tail"
	"github.com/tessro/elixir/internal/wizard"
)

var (
	playFile      string
	playBackend   string
	playSink      string
	playStart     float64
	playQuery     string
	playFollow    bool
	playNoEmoji   bool
	playTimestamp bool
	playFormat    string
)

var playCmd = &cobra.Command{
	Use:   "play [item-id]",
	Short: "Play a library item",
	Long: `Start a playback session for a library item and render it with the
selected backend. Session events are printed until the session ends or
you press Ctrl+C, which ends the session.

Without an item ID, --query picks the single matching title, or a search
wizard opens when the terminal is interactive.

Examples:
  elixir play 8f2c                      # Play an item by ID
  elixir play -q matrix                 # Play the only title matching "matrix"
  elixir play 8f2c --backend external   # Hand the stream to VLC
  elixir play 8f2c --sink out.ts        # Save the stream to a file
  elixir play 8f2c --start 600          # Start ten minutes in
  elixir play 8f2c --format "{{.Time}} {{.Type}} {{.Position}}"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playFile, "file", "", "media file ID to prefer")
	playCmd.Flags().StringVarP(&playBackend, "backend", "b", "", "backend: none, stream, external, embedded")
	playCmd.Flags().StringVar(&playSink, "sink", "", "stream backend output: discard, - for stdout, or a file")
	playCmd.Flags().Float64Var(&playStart, "start", 0, "start position in seconds")
	playCmd.Flags().StringVarP(&playQuery, "query", "q", "", "pick the item by title")
	playCmd.Flags().BoolVarP(&playFollow, "follow", "f", true, "print session events until the session ends")
	playCmd.Flags().BoolVar(&playNoEmoji, "no-emoji", false, "disable emoji in event output")
	playCmd.Flags().BoolVar(&playTimestamp, "timestamp", false, "show timestamps")
	playCmd.Flags().StringVar(&playFormat, "format", "", "custom output format (Go template)")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	item, err := pickItem(cmd.Context(), a, args)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}

	if playSink != "" {
		a.cfg.Backends.Stream.Sink = playSink
	}
	if playBackend != "" {
		a.cfg.Playback.Backend = playBackend
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller, arbiter, err := a.player(ctx)
	if err != nil {
		return err
	}

	formatter := tail.NewFormatter(
		tail.WithEmoji(!playNoEmoji),
		tail.WithTimestamp(playTimestamp),
		tail.WithTemplate(playFormat),
	)
	watcher := tail.NewWatcher(controller)
	go func() { _ = watcher.Start(ctx) }()

	if err := controller.Start(ctx, session.StartRequest{Item: *item, FileID: playFile}); err != nil {
		a.close()
		return err
	}
	if playStart > 0 {
		// Sent straight away; a debounced seek could be lost when the
		// command returns right after starting.
		if err := controller.SeekNow(ctx, playStart); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: start position not applied: %v\n", err)
		}
	}

	snap := controller.Snapshot()
	if !playFollow {
		watcher.Stop()
		if JSONOutput() {
			return printJSON(snap)
		}
		fmt.Printf("Session %s started (%s)\n", snap.Session.ID, snap.Session.Mode)
		fmt.Printf("Stream: %s\n", snap.Session.Locator)
		return nil
	}

	if s := arbiter.Status(); s != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), s)
	}

	followSession(ctx, watcher, formatter)
	if t, ok := arbiter.Transfer(); ok && t.Bytes > 0 {
		fmt.Println(transferSummary(t))
	}

	// End the session before leaving so the server can release it.
	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	controller.End(endCtx)
	cancel()
	a.close()
	return nil
}

// pickItem resolves the item to play from an ID, a title query, or the
// interactive search wizard.
func pickItem(ctx context.Context, a *app, args []string) (*core.LibraryItem, error) {
	if len(args) == 1 {
		detail, err := a.client.GetItem(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return &detail.LibraryItem, nil
	}

	search := func(query string) ([]core.LibraryItem, error) {
		items, err := a.client.ListItems(ctx)
		if err != nil {
			return nil, err
		}
		return wizard.FilterItems(items, query), nil
	}

	if playQuery != "" {
		matches, err := search(playQuery)
		if err != nil {
			return nil, err
		}
		if len(matches) == 1 {
			return &matches[0], nil
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no items match %q", playQuery)
		}
	}

	interactive := wizard.NewInteractive()
	if !interactive.CanInteract() {
		if playQuery != "" {
			return nil, fmt.Errorf("%q matches several items; pass an item ID", playQuery)
		}
		return nil, fmt.Errorf("no item given and the terminal is not interactive")
	}
	interactive.SetSearchFunc(search)
	return interactive.PromptItem()
}

// followSession prints events until ctx is done or the session finishes.
func followSession(ctx context.Context, watcher *tail.Watcher, formatter *tail.Formatter) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-watcher.Events():
			if !ok {
				return
			}
			fmt.Println(formatter.Format(e))
			if e.Type == tail.EventSessionEnd || remoteFinished(e.Current) {
				return
			}
		}
	}
}

// transferSummary describes what the stream backend copied.
func transferSummary(t backend.Transfer) string {
	line := "Streamed " + humanize.IBytes(uint64(t.Bytes))
	if t.Buffered > 0 {
		line += fmt.Sprintf(" (%s of media)", FormatDuration(int(t.Buffered.Seconds())))
	}
	return line
}

// remoteFinished reports whether the server says the session is over.
func remoteFinished(snap *session.Snapshot) bool {
	if snap == nil {
		return false
	}
	switch snap.Session.RemoteState {
	case "ended", "stopped", "completed":
		return true
	}
	return false
}
