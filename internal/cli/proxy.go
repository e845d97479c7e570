package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newProxyCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Mount the developer disk image and run idevicedebugserverproxy until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.ProxyPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l := a.launcher()
			defer l.Close()

			proc, err := l.StartDebugProxy(ctx, port)
			if err != nil {
				return err
			}
			a.ui.success("Debug server proxy listening on port %d (pid %d)", port, proc.PID())

			select {
			case <-ctx.Done():
				a.ui.info("Stopping proxy")
				return nil
			case <-proc.Done():
				a.ui.failure("Proxy exited with code %d", proc.ExitCode())
				return &ExitError{Code: 1}
			}
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "local port for the proxy (default from config)")
	return cmd
}
