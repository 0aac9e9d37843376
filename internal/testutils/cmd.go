// Package testutils provides helpers shared by the forgeapi tests.
package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FlagCase describes a flag expected on a cobra command.
type FlagCase struct {
	Name       string
	Short      string
	Default    string
	Persistent bool
	Dirname    bool
	Filename   bool
}

// RequireFlags checks that cmd declares every flag from the cases.
func RequireFlags(t *testing.T, cmd *cobra.Command, cases ...FlagCase) {
	t.Helper()

	for _, tc := range cases {
		var flag *pflag.Flag
		if tc.Persistent {
			flag = cmd.PersistentFlags().Lookup(tc.Name)
		} else {
			flag = cmd.Flags().Lookup(tc.Name)
		}
		require.NotNil(t, flag, "flag %q should be declared on %s", tc.Name, cmd.Name())

		assert.Equal(t, tc.Short, flag.Shorthand, "unexpected shorthand of %q", tc.Name)
		if tc.Default != "" {
			assert.Equal(t, tc.Default, flag.DefValue, "unexpected default of %q", tc.Name)
		}

		if tc.Dirname {
			assert.Equal(t, []string{}, flag.Annotations[cobra.BashCompSubdirsInDir], "%q should complete directories", tc.Name)
		} else {
			assert.Nil(t, flag.Annotations[cobra.BashCompSubdirsInDir], "%q should not complete directories", tc.Name)
		}
		if tc.Filename {
			assert.NotNil(t, flag.Annotations[cobra.BashCompFilenameExt], "%q should complete file names", tc.Name)
		}
	}
}
