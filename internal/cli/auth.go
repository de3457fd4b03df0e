package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/elixir/internal/api"
	"github.com/tessro/elixir/internal/wizard"
)

var (
	authEmail    string
	authPassword string
	authRegistry bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage server authentication",
	Long:  `Commands for signing in to the current server or the account registry.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the current server",
	Long: `Sign in with email and password. Missing credentials are prompted for
when the terminal is interactive. The token is saved per server.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account on the current server",
	Args:  cobra.NoArgs,
	RunE:  runAuthSignup,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var authResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a forgotten password",
}

var authResetStartCmd = &cobra.Command{
	Use:   "start <email>",
	Short: "Request a password reset token",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthResetStart,
}

var authResetCompleteCmd = &cobra.Command{
	Use:   "complete <token>",
	Short: "Set a new password with a reset token",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthResetComplete,
}

func init() {
	for _, c := range []*cobra.Command{authLoginCmd, authSignupCmd} {
		c.Flags().StringVarP(&authEmail, "email", "e", "", "account email")
		c.Flags().StringVarP(&authPassword, "password", "p", "", "account password")
	}
	for _, c := range []*cobra.Command{authLoginCmd, authSignupCmd, authLogoutCmd, authStatusCmd} {
		c.Flags().BoolVar(&authRegistry, "registry", false, "use the account registry instead of the current server")
	}
	authResetCompleteCmd.Flags().StringVarP(&authPassword, "password", "p", "", "new password")

	authResetCmd.AddCommand(authResetStartCmd)
	authResetCmd.AddCommand(authResetCompleteCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authSignupCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authResetCmd)
	rootCmd.AddCommand(authCmd)
}

// authTarget returns the client and URL that auth commands act on.
func authTarget(a *app) (*api.Client, string, error) {
	if authRegistry {
		if a.registry == nil {
			return nil, "", fmt.Errorf("server.registry_url not configured")
		}
		return a.registry, a.registry.BaseURL(), nil
	}
	if err := a.requireServer(); err != nil {
		return nil, "", err
	}
	return a.client, a.client.BaseURL(), nil
}

type issueFunc func(ctx context.Context, email, password string) (*api.AuthTokens, error)

func runCredentialFlow(cmd *cobra.Command, title string, confirm bool, issue func(*api.Client) issueFunc) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	client, url, err := authTarget(a)
	if err != nil {
		return err
	}

	creds := wizard.Credentials{Email: authEmail, Password: authPassword}
	if err := wizard.NewInteractive().PromptCredentials(&creds, fmt.Sprintf("%s (%s)", title, url), confirm); err != nil {
		return err
	}

	tokens, err := issue(client)(cmd.Context(), creds.Email, creds.Password)
	if err != nil {
		return err
	}
	token, err := a.saveToken(url, tokens, creds.Email)
	if err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(map[string]interface{}{
			"status":     "authenticated",
			"server":     url,
			"email":      creds.Email,
			"expires_at": token.ExpiresAt,
		})
	}
	fmt.Printf("Signed in to %s as %s\n", url, creds.Email)
	return nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	return runCredentialFlow(cmd, "Sign in", false, func(c *api.Client) issueFunc { return c.Login })
}

func runAuthSignup(cmd *cobra.Command, args []string) error {
	return runCredentialFlow(cmd, "Create account", true, func(c *api.Client) issueFunc { return c.Signup })
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	_, url, err := authTarget(a)
	if err != nil {
		return err
	}

	rec, ok := a.state.Lookup(url)
	if !ok || rec.Token == nil {
		if JSONOutput() {
			return printJSON(map[string]string{"status": "not_authenticated", "server": url})
		}
		fmt.Printf("Not signed in to %s.\n", url)
		return nil
	}

	a.state.ClearToken(url)
	if err := a.store.Save(a.state); err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(map[string]string{"status": "logged_out", "server": url})
	}
	fmt.Printf("Signed out of %s.\n", url)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	_, url, err := authTarget(a)
	if err != nil {
		return err
	}

	rec, _ := a.state.Lookup(url)
	token := rec.Token

	if JSONOutput() {
		out := map[string]interface{}{
			"server":        url,
			"authenticated": token.Valid(),
			"email":         rec.Email,
		}
		if token != nil {
			out["expired"] = token.IsExpired()
			if !token.ExpiresAt.IsZero() {
				out["expires_at"] = token.ExpiresAt
			}
		}
		return printJSON(out)
	}

	switch {
	case token == nil:
		fmt.Printf("Not signed in to %s.\n", url)
		fmt.Println("Run 'elixir auth login' to sign in.")
	case token.IsExpired():
		fmt.Printf("Token for %s has expired.\n", url)
		fmt.Println("Run 'elixir auth login' to sign in again.")
	default:
		fmt.Printf("Signed in to %s", url)
		if rec.Email != "" {
			fmt.Printf(" as %s", rec.Email)
		}
		fmt.Println()
		if !token.ExpiresAt.IsZero() {
			fmt.Printf("Token expires: %s\n", token.ExpiresAt.Local().Format(time.RFC3339))
		}
	}
	return nil
}

func runAuthResetStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireServer(); err != nil {
		return err
	}

	ticket, err := a.client.StartReset(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(ticket)
	}
	fmt.Println("Password reset started.")
	if ticket.Token != "" {
		fmt.Printf("Reset token: %s\n", ticket.Token)
		fmt.Println("Run 'elixir auth reset complete <token>' to choose a new password.")
	}
	return nil
}

func runAuthResetComplete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.requireServer(); err != nil {
		return err
	}

	password := authPassword
	if err := wizard.NewInteractive().PromptNewPassword(&password); err != nil {
		return err
	}
	if err := a.client.CompleteReset(cmd.Context(), args[0], password); err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(map[string]string{"status": "password_reset"})
	}
	fmt.Println("Password updated. Run 'elixir auth login' to sign in.")
	return nil
}
