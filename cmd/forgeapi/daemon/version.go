package daemon

import (
	"fmt"

	"github.com/forgeapi/forgeapi/internal/constants"
	"github.com/spf13/cobra"
)

func (a *App) installVersion() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the running version of " + constants.CmdName + " and exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", constants.CmdName, constants.Version)
			return nil
		},
	}
	a.cmd.AddCommand(cmd)
}
