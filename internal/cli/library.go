package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/wizard"
)

var (
	libraryQuery     string
	libraryForceMeta bool
)

var libraryCmd = &cobra.Command{
	Use:     "library",
	Aliases: []string{"lib"},
	Short:   "Browse the server's media library",
}

var libraryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List library items",
	Args:    cobra.NoArgs,
	RunE:    runLibraryList,
}

var libraryShowCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show an item with its files",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryShow,
}

var libraryScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Ask the server to rescan its library",
	Args:  cobra.NoArgs,
	RunE:  runLibraryScan,
}

func init() {
	libraryListCmd.Flags().StringVarP(&libraryQuery, "query", "q", "", "only items whose title contains this text")
	libraryScanCmd.Flags().BoolVar(&libraryForceMeta, "force-metadata", false, "refresh metadata for every item")

	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryShowCmd)
	libraryCmd.AddCommand(libraryScanCmd)
	rootCmd.AddCommand(libraryCmd)
}

func runLibraryList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	items, err := a.client.ListItems(cmd.Context())
	if err != nil {
		return err
	}
	items = wizard.FilterItems(items, libraryQuery)

	if JSONOutput() {
		return printJSON(items)
	}

	if len(items) == 0 {
		fmt.Println("No items.")
		return nil
	}

	table := NewTable("ID", "TITLE", "TYPE", "RUNTIME", "UPDATED")
	for _, it := range items {
		runtime := ""
		if it.RuntimeSeconds != nil {
			runtime = FormatDuration(int(*it.RuntimeSeconds))
		}
		table.Row(it.ID, TruncateString(it.DisplayTitle(), 48), it.Type, runtime, relativeTime(it.UpdatedAt))
	}
	table.Flush()
	return nil
}

func runLibraryShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	detail, err := a.client.GetItem(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(detail)
	}

	printDetail(detail)
	return nil
}

func printDetail(d *core.LibraryDetail) {
	fmt.Println(d.DisplayTitle())
	fmt.Printf("  ID:       %s\n", d.ID)
	fmt.Printf("  Type:     %s\n", d.Type)
	if d.RuntimeSeconds != nil {
		fmt.Printf("  Runtime:  %s\n", FormatDuration(int(*d.RuntimeSeconds)))
	}
	if len(d.Genres) > 0 {
		fmt.Printf("  Genres:   %s\n", strings.Join(d.Genres, ", "))
	}
	if d.UpdatedAt != "" {
		fmt.Printf("  Updated:  %s\n", relativeTime(d.UpdatedAt))
	}
	if d.Description != "" {
		fmt.Printf("\n  %s\n", d.Description)
	}

	if len(d.Files) == 0 {
		return
	}
	fmt.Println()
	table := NewTable("  FILE", "CONTAINER", "VIDEO", "AUDIO", "SIZE", "SCAN")
	for _, f := range d.Files {
		size := ""
		if f.SizeBytes > 0 {
			size = humanize.IBytes(uint64(f.SizeBytes))
		}
		table.Row("  "+f.ID, f.Container, f.VideoCodec, f.AudioCodec, size, f.ScanState)
	}
	table.Flush()
}

// relativeTime renders an RFC 3339 timestamp as "3 days ago". Unparseable
// input is returned unchanged.
func relativeTime(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func runLibraryScan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	if err := a.client.Scan(cmd.Context(), libraryForceMeta); err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(map[string]interface{}{"status": "scan_started", "force_metadata": libraryForceMeta})
	}
	fmt.Println("Library scan started.")
	return nil
}
