package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/gdbremote"
)

func newLaunchCmd(a *app) *cobra.Command {
	var (
		port    int
		timeout time.Duration
		noProxy bool
	)

	cmd := &cobra.Command{
		Use:   "launch <bundle-id>",
		Short: "Launch an installed application",
		Long: `Launch an installed application on the device.

A fresh idevicedebugserverproxy is started first unless --no-proxy is given,
in which case one must already be listening on the port. The debug server
connection stays open while the application runs: its console output is
streamed and the command exits with the application's exit status. An
interrupt disconnects, which ends the application, and exits with 130.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundleID := args[0]
			if !cmd.Flags().Changed("port") {
				port = a.cfg.ProxyPort
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = a.cfg.StepTimeout.Std()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l := a.launcher()
			defer l.Close()

			var (
				client *gdbremote.Client
				err    error
			)
			if noProxy {
				client, err = l.StartApp(ctx, bundleID, port, timeout)
			} else {
				client, err = l.Launch(ctx, bundleID, port, timeout)
			}
			if err != nil {
				return err
			}
			defer client.Close()

			a.ui.success("Launched %s", a.ui.bold(bundleID))
			return a.monitor(ctx, client)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&port, "port", "p", 0, "local port of the proxy (default from config)")
	flags.DurationVarP(&timeout, "timeout", "t", 0, "timeout for each handshake step (default from config)")
	flags.BoolVar(&noProxy, "no-proxy", false, "use an already running proxy")
	return cmd
}

// monitor streams events until the application ends and converts its
// final status into an ExitError.
func (a *app) monitor(ctx context.Context, client *gdbremote.Client) error {
	status := 0
	for {
		select {
		case <-ctx.Done():
			a.ui.info("Interrupted, disconnecting")
			client.Close()
			return &ExitError{Code: 130}
		case ev, ok := <-client.Events():
			if !ok {
				return exitStatus(status)
			}
			switch ev.Kind {
			case gdbremote.EventOutput:
				fmt.Fprint(a.stdout, ev.Text)
			case gdbremote.EventExited:
				status = ev.Code
				a.ui.info("Application exited with status %d", ev.Code)
			case gdbremote.EventSignaled:
				status = signalStatus(ev.Code)
				a.ui.failure("Application terminated by signal %d", ev.Code)
			case gdbremote.EventStopped:
				status = signalStatus(ev.Code)
				a.ui.failure("Application stopped (signal %d)", ev.Code)
			case gdbremote.EventClosed:
				if ev.Err != nil {
					a.logger.Warn("connection closed: %v", ev.Err)
					if status == 0 {
						status = 1
					}
				}
			}
		}
	}
}

// signalStatus follows the shell convention of 128+signal.
func signalStatus(sig int) int {
	if sig <= 0 {
		return 1
	}
	return 128 + sig
}

func exitStatus(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code}
}
