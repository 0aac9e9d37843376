package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/spf13/cobra"
)

func (a *App) installToken() {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens and client secrets",
		Args:  cobra.NoArgs,
	}

	var roles []string
	issueCmd := &cobra.Command{
		Use:   "issue <subject>",
		Short: "Sign an access token for subject with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := a.issuer()
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(args[0], roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "Token expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	issueCmd.Flags().StringSliceVarP(&roles, "roles", "r", nil, "roles granted by the token")

	hashCmd := &cobra.Command{
		Use:   "hash [secret]",
		Short: "Hash a client secret for the clients configuration",
		Long:  "Hash a client secret for the clients configuration. The secret is read from the standard input when not given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read secret: %v", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			if secret == "" {
				a.cmd.SilenceUsage = false
				return errors.New("secret must not be empty")
			}

			hash, err := auth.HashSecret(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	tokenCmd.AddCommand(issueCmd, hashCmd)
	a.cmd.AddCommand(tokenCmd)
}
