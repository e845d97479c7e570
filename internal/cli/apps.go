package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newAppsCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List applications installed on the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "yaml" {
				return fmt.Errorf("unknown format %q (want table or yaml)", format)
			}

			pkgs, err := a.device("").Packages(cmd.Context())
			if err != nil {
				return err
			}

			if format == "yaml" {
				enc := yaml.NewEncoder(a.stdout)
				enc.SetIndent(2)
				if err := enc.Encode(pkgs); err != nil {
					return err
				}
				return enc.Close()
			}

			if len(pkgs) == 0 {
				fmt.Fprintln(a.stdout, "No applications installed.")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tVERSION\tEXECUTABLE")
			for _, p := range pkgs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Version, p.OnDevicePath())
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "table", "output format: table or yaml")
	return cmd
}
