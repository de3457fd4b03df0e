package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tessro/elixir/internal/tail"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or control a server-side session by ID",
	Long: `Raw session control. These commands talk to the server directly and do
not render anything locally; use them for sessions started with
'elixir play --follow=false' or by another client.`,
}

var sessionPollCmd = &cobra.Command{
	Use:   "poll <session-id>",
	Short: "Show a session's state and position",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionPoll,
}

var sessionSeekCmd = &cobra.Command{
	Use:   "seek <session-id> <seconds>",
	Short: "Seek a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionSeek,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionEnd,
}

func init() {
	sessionCmd.AddCommand(sessionPollCmd)
	sessionCmd.AddCommand(sessionSeekCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionPoll(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	poll, err := a.client.PollSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(poll)
	}

	position := tail.Clock(poll.LogicalPositionSeconds)
	if poll.DurationSeconds != nil {
		position += " / " + tail.Clock(*poll.DurationSeconds)
	}
	fmt.Printf("Session:  %s\n", poll.ID)
	fmt.Printf("State:    %s\n", poll.State)
	fmt.Printf("Mode:     %s\n", poll.Mode)
	fmt.Printf("Position: %s\n", position)
	if poll.Error != "" {
		fmt.Printf("Error:    %s\n", poll.Error)
	}
	if poll.LogPath != "" && Verbose() {
		fmt.Printf("Log:      %s\n", poll.LogPath)
	}
	return nil
}

func runSessionSeek(cmd *cobra.Command, args []string) error {
	position, err := strconv.ParseFloat(args[1], 64)
	if err != nil || position < 0 {
		return fmt.Errorf("invalid position: %q (seconds, 0 or more)", args[1])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	if err := a.client.SeekSession(cmd.Context(), args[0], position); err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(map[string]interface{}{"session_id": args[0], "position_seconds": position})
	}
	fmt.Printf("Seeked to %s\n", tail.Clock(position))
	return nil
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	if err := a.client.EndSession(cmd.Context(), args[0]); err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(map[string]string{"session_id": args[0], "status": "ended"})
	}
	fmt.Println("Session ended.")
	return nil
}
