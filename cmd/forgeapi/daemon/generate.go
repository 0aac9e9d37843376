package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/forgeapi/forgeapi/internal/codegen"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/spf13/cobra"
	"golang.org/x/mod/modfile"
)

func (a *App) installGenerate() {
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate code or migrations from the data model",
		Args:  cobra.NoArgs,
	}

	var module, output string
	codeCmd := &cobra.Command{
		Use:   "code",
		Short: "Generate the typed models, controllers and endpoints of the data model",
		Long: `Generate the models, controllers and endpoints packages of the data model.
Generated files are overwritten. The module path defaults to the one of the go.mod file of the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if module == "" {
				var err error
				if module, err = modulePath(output); err != nil {
					a.cmd.SilenceUsage = false
					return err
				}
			}

			schema, err := datamodel.Load(a.config.DataModel)
			if err != nil {
				return fmt.Errorf("failed to load data model: %v", err)
			}
			paths, err := codegen.Generator{Module: module, OutputDir: output}.Generate(schema)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	codeCmd.Flags().StringVar(&module, "module", "", "Go module path of the project")
	codeCmd.Flags().StringVarP(&output, "output", "o", ".", "root directory of the generated packages")
	if err := codeCmd.MarkFlagDirname("output"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark output flag as directory: %v", err))
	}

	var version uint64
	migrationCmd := &cobra.Command{
		Use:   "migration <title>",
		Short: "Write the migration creating the tables of the data model",
		Long: `Write the up and down SQL migrations creating the tables of the data model in the migrations directory.
The version defaults to the current UTC time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := datamodel.Load(a.config.DataModel)
			if err != nil {
				return fmt.Errorf("failed to load data model: %v", err)
			}
			up, down, err := codegen.WriteMigration(schema, a.config.Migrations, version, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), up)
			fmt.Fprintln(cmd.OutOrStdout(), down)
			return nil
		},
	}
	migrationCmd.Flags().Uint64Var(&version, "version", 0, "version of the migration (default current timestamp)")

	generateCmd.AddCommand(codeCmd, migrationCmd)
	a.cmd.AddCommand(generateCmd)
}

// modulePath returns the module path declared by the go.mod file of dir.
func modulePath(dir string) (string, error) {
	p := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("no module path: use --module or create %s", p)
	} else if err != nil {
		return "", err
	}

	module := modfile.ModulePath(data)
	if module == "" {
		return "", fmt.Errorf("%s does not declare a module path", p)
	}
	return module, nil
}
