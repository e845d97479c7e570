package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			udids, err := a.device("").Devices(ctx)
			if err != nil {
				return err
			}
			for _, udid := range udids {
				version, err := a.device(udid).ProductVersion(ctx)
				if err != nil {
					a.logger.Debug("reading version of %s: %v", udid, err)
					version = "unknown"
				}
				marker := " "
				if udid == a.cfg.UDID {
					marker = "*"
				}
				fmt.Fprintf(a.stdout, "%s %s  %s\n", marker, udid, a.ui.dim("iOS "+version))
			}
			return nil
		},
	}
}
