package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsh-project/dsh/internal/builtin"
)

func (a *App) builtinsCommand() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "builtins",
		Short: "List the commands dsh runs in-process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := builtin.Local()
			if remote {
				reg = builtin.Remote()
			}
			for _, b := range reg.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", b.Name(), b.Description())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "include server-only builtins")
	return cmd
}
