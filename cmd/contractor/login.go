package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"propdesk/internal/portal/session"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func loginCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the contractor portal",
		Long: `Sign in with email and password (flags, CONTRACTOR_EMAIL and
CONTRACTOR_PASSWORD, or ~/.contractor.yaml). With --watch the session is
kept open and refreshed until it ends or the command is interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email := viper.GetString("email")
			password := viper.GetString("password")
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}

			client := newClient()
			auth := session.New(client, session.Options{})
			defer auth.Close()
			client.OnUnauthorized(auth.HandleUnauthorized)

			ended := make(chan session.Event, 1)
			unsubscribe := auth.Subscribe(func(ev session.Event) {
				if !viper.GetBool("json") {
					fmt.Printf("%s session %s %s\n", ev.At.Local().Format(time.Kitchen), ev.Kind, ev.Reason)
				}
				if ev.Redirect != "" {
					select {
					case ended <- ev:
					default:
					}
				}
			})
			defer unsubscribe()

			ctx := cmd.Context()
			identity, err := auth.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				if err := printJSON(identity); err != nil {
					return err
				}
			} else {
				renderIdentity(identity, auth)
			}
			if !watch {
				return nil
			}

			select {
			case ev := <-ended:
				return errors.New(ev.Reason)
			case <-ctx.Done():
				logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return auth.Logout(logoutCtx)
			}
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep the session alive until interrupted")
	_ = viper.BindPFlag("email", cmd.Flags().Lookup("email"))
	_ = viper.BindPFlag("password", cmd.Flags().Lookup("password"))
	return cmd
}

func renderIdentity(id session.Identity, auth *session.Authority) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Signed in")
	tw.AppendRows([]table.Row{
		{"Name", id.FullName()},
		{"Email", id.Email},
		{"Account", id.AccountType},
		{"Status", id.Status},
	})
	if expiresAt, ok := auth.ExpiresAt(); ok {
		tw.AppendRow(table.Row{"Expires", expiresAt.Local().Format(time.RFC1123)})
	}
	tw.Render()
}
