package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/auth"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/spf13/cobra"
)

func newSignInCommand() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:       "signin <google|apple>",
		Short:     "Sign in with an identity provider",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{sessions.ProviderGoogle.String(), sessions.ProviderApple.String()},
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			provider, err := sessions.ParseProvider(args[0])
			if err != nil {
				return err
			}
			if !quiet {
				displayAppname(cmd.ErrOrStderr(), app.Config.GetAppName())
			}

			s, err := app.Coordinator.SignIn(cmd.Context(), provider)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s via %s\n", who(s), s.Provider)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "skip the banner")
	return cmd
}

func newSignOutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFrom(cmd).Coordinator.SignOut(cmd.Context()); err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

// statusReport is the JSON form of the current state.
type statusReport struct {
	Status      string     `json:"status"`
	Provider    string     `json:"provider,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Message     string     `json:"message,omitempty"`
}

func newStatusCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current sign-in state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state := appFrom(cmd).Coordinator.CurrentState()
			report := statusReport{Status: state.Status.String(), Provider: state.Provider.String()}
			if s, ok := state.CurrentSession(); ok {
				report.UserID = s.UserID
				report.Email = s.Email
				report.DisplayName = s.DisplayName
				issued := s.IssuedAt
				report.IssuedAt = &issued
			}
			if state.Err != nil {
				report.Error = string(state.Err.Kind)
				report.Message = state.Message()
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			switch state.Status {
			case auth.StatusAuthenticated:
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s via %s since %s\n",
					who(state.Session), state.Session.Provider, state.Session.IssuedAt.Local().Format(time.RFC1123))
			case auth.StatusError:
				fmt.Fprintf(cmd.OutOrStdout(), "Error: %s\n", report.Message)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the state as JSON")
	return cmd
}

func who(s sessions.Session) string {
	parts := []string{}
	if s.DisplayName != "" {
		parts = append(parts, s.DisplayName)
	}
	if s.Email != "" {
		parts = append(parts, "<"+s.Email+">")
	}
	if len(parts) == 0 {
		return s.UserID
	}
	return strings.Join(parts, " ")
}

// describe prefixes coordinator failures with their user-facing message.
func describe(err error) error {
	kind, ok := auth.KindOf(err)
	if !ok {
		return err
	}
	msg := kind.UserMessage()
	if kind.Retryable() {
		msg += " You can retry now."
	}
	return fmt.Errorf("%s (%w)", msg, err)
}
