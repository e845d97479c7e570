package cli

import (
	"github.com/spf13/cobra"
)

func newMountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mount",
		Short: "Mount the developer disk image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.device("").Mount(cmd.Context()); err != nil {
				return err
			}
			a.ui.success("Developer disk image mounted")
			return nil
		},
	}
}
