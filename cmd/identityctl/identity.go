package main

import (
	"errors"
	"fmt"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/spf13/cobra"
)

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an active identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := passwordArg(cmd, password, "Password: ")
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.engine.Register(cmd.Context(), goIdentity.RegisterRequest{Username: args[0], Password: pwd})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id=%s\n", rec.ID)
			fmt.Fprintf(out, "auth_key=%s\n", rec.AuthKey)
			fmt.Fprintf(out, "access_token=%s\n", rec.AccessToken)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newAuthenticateCmd(opts *rootOptions) *cobra.Command {
	var (
		password    string
		accessToken string
		authKey     string
		id          string
	)

	cmd := &cobra.Command{
		Use:   "authenticate [username]",
		Short: "Check a password, access token or auth key",
		Long: `Resolves an identity from one credential and prints its id.

	identityctl authenticate alice
	identityctl authenticate --access-token <token>
	identityctl authenticate --id <id> --auth-key <key>
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			var rec goIdentity.IdentityRecord
			switch {
			case accessToken != "":
				rec, err = a.engine.AuthenticateAccessToken(cmd.Context(), accessToken)
			case authKey != "":
				rec, err = a.engine.AuthenticateAuthKey(cmd.Context(), id, authKey)
			case len(args) == 1:
				var pwd string
				pwd, err = passwordArg(cmd, password, "Password: ")
				if err != nil {
					return err
				}
				rec, err = a.engine.Authenticate(cmd.Context(), args[0], pwd)
			default:
				return errors.New("username, --access-token or --auth-key is required")
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "id=%s\nusername=%s\n", rec.ID, rec.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "authenticate by access token")
	cmd.Flags().StringVar(&authKey, "auth-key", "", "authenticate by auth key (requires --id)")
	cmd.Flags().StringVar(&id, "id", "", "identity id for --auth-key")
	cmd.MarkFlagsRequiredTogether("auth-key", "id")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Mark an identity deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			return a.engine.Delete(cmd.Context(), args[0])
		},
	}
}
