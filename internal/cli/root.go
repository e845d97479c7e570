package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/config"
	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/device"
	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/launcher"
	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/logging"
)

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// app is the state shared by all commands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	env    config.LookupFunc

	// runner overrides the tool runner; nil runs the real utilities.
	runner device.Runner

	configPath string
	udid       string
	stateDir   string
	logLevel   string
	verbose    bool

	cfg    *config.Config
	logger *logging.Logger
	ui     *ui
}

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		env:    os.LookupEnv,
	})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "idevice-app-launcher",
		Short:         "Launch applications on a tethered iOS device",
		Long:          "idevice-app-launcher mounts the developer disk image, starts idevicedebugserverproxy and launches an installed application through it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "help", "completion":
				return nil
			}
			return a.setup(cmd)
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: "+config.Dir()+"/config.toml)")
	flags.StringVarP(&a.udid, "udid", "u", "", "target device UDID")
	flags.StringVar(&a.stateDir, "state-dir", "", "directory for the proxy pid file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "shorthand for --log-level debug")

	rootCmd.AddCommand(
		newDevicesCmd(a),
		newAppsCmd(a),
		newMountCmd(a),
		newProxyCmd(a),
		newLaunchCmd(a),
		newVersionCmd(a),
	)
	return rootCmd
}

// setup resolves the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadWithEnv(a.configPath, a.env)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("udid") {
		cfg.UDID = a.udid
	}
	if flags.Changed("state-dir") {
		cfg.StateDir = a.stateDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:  level,
		Output: a.stderr,
		Prefix: "idevice-app-launcher",
	})
	a.ui = newUI(a.stdout)
	return nil
}

func (a *app) device(udid string) *device.Device {
	cfg := *a.cfg
	if udid != "" {
		cfg.UDID = udid
	}
	opts := []device.Option{device.WithLogger(a.logger.WithComponent("device"))}
	if a.runner != nil {
		opts = append(opts, device.WithRunner(a.runner))
	}
	return device.New(&cfg, opts...)
}

func (a *app) launcher() *launcher.Launcher {
	return launcher.NewFromConfig(a.cfg, a.device(""), a.logger.WithComponent("launcher"))
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	return execute(NewRootCmd(), os.Stderr, os.Args[1:])
}

func execute(cmd *cobra.Command, stderr io.Writer, args []string) int {
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	u := newUI(stderr)
	u.failure("%s", launcher.Message(err))
	if launcher.Kind(err) != "" {
		fmt.Fprintln(stderr, u.dim(err.Error()))
	}
	return 1
}
