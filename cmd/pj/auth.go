package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "sync",
	Short:   "Sign in so changes sync to the remote",
	Long: `Store a sign-in token in the session file. The token's subject
becomes the user id that scopes every remote record.

With neither --user nor --token, pj prompts for both when run in a
terminal. A token is only verified when auth.secret is configured;
otherwise just its expiry is checked.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		token, _ := cmd.Flags().GetString("token")

		if token == "" && user == "" {
			if !ui.IsTerminal() {
				return fmt.Errorf("--token or --user is required when not running in a terminal")
			}
			user = a.session.UserID()
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("User ID").
					Description("Leave empty to use the token's subject").
					Value(&user),
				huh.NewInput().
					Title("Token").
					EchoMode(huh.EchoModePassword).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("token is required")
						}
						return nil
					}).
					Value(&token),
			))
			if err := form.Run(); err != nil {
				return err
			}
		}

		if err := a.session.Login(strings.TrimSpace(user), strings.TrimSpace(token)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Signed in as %s\n", renderPassMark(), a.session.UserID())

		// Queued changes go out right away when possible.
		if a.journal.MayDirectlySync() {
			if _, err := a.journal.Refresh(cmd.Context()); err != nil && !errors.Is(err, engine.ErrSyncDeferred) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s Sync after sign-in failed: %v\n", renderWarnMark(), err)
			}
		}
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "sync",
	Short:   "Sign out; changes stay local until you sign in again",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.session.Logout(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Signed out\n", renderPassMark())
		return nil
	}),
}

func init() {
	loginCmd.Flags().String("user", "", "User id (default: the token's subject)")
	loginCmd.Flags().String("token", "", "Sign-in token (JWT)")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
