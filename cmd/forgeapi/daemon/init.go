package daemon

import (
	"fmt"

	"github.com/forgeapi/forgeapi/internal/codegen"
	"github.com/spf13/cobra"
)

func (a *App) installInit() {
	var opts codegen.ScaffoldOptions

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a new project",
		Long: `Create a new project in dir, or in the current directory.
The project holds a sample data model, the series configuration, the application configuration
and an environment file with a random token signing secret.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			paths, err := codegen.Scaffold(dir, opts)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "name of the project (default directory name)")
	cmd.Flags().StringVar(&opts.Module, "module", "", "Go module path of the project (default project name)")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing files")

	a.cmd.AddCommand(cmd)
}
