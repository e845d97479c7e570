package device

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/config"
	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/logging"
)

// PackageLister resolves installed packages to on-device executable paths.
type PackageLister interface {
	PathForPackage(ctx context.Context, id string) (string, error)
}

// ImageMounter ensures the developer disk image is mounted.
type ImageMounter interface {
	Mount(ctx context.Context) error
}

// Device drives the utilities for one device, or for the only attached
// device when no UDID is configured.
type Device struct {
	runner Runner
	tools  config.Tools
	udid   string
	finder *ImageFinder
	logger *logging.Logger
}

// Option configures a Device.
type Option func(*Device)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(d *Device) {
		d.runner = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithImageFinder replaces the developer disk image finder.
func WithImageFinder(f *ImageFinder) Option {
	return func(d *Device) {
		d.finder = f
	}
}

// New creates a Device from the tool and device settings in cfg.
func New(cfg *config.Config, opts ...Option) *Device {
	d := &Device{
		runner: ExecRunner{},
		tools:  cfg.Tools,
		udid:   cfg.UDID,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.finder == nil {
		d.finder = NewImageFinder(d.runner, cfg.Tools.Xcrun, cfg.DeviceSupportDir)
	}
	return d
}

// UDID returns the configured device identifier, possibly empty.
func (d *Device) UDID() string {
	return d.udid
}

// run invokes a configured tool. With targeted set, "-u <udid>" is
// inserted ahead of args when a UDID is configured.
func (d *Device) run(ctx context.Context, kind error, tool string, targeted bool, args ...string) (Result, []string, error) {
	argv, err := SplitCommand(tool)
	if err != nil {
		return Result{ExitCode: -1}, nil, &ToolError{Kind: kind, Command: []string{tool}, ExitCode: -1, Err: err}
	}
	if targeted && d.udid != "" {
		argv = append(argv, "-u", d.udid)
	}
	argv = append(argv, args...)

	d.logger.Debug("run %s", strings.Join(argv, " "))
	res, err := d.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return res, argv, &ToolError{Kind: kind, Command: argv, ExitCode: -1, Err: err}
	}
	return res, argv, nil
}

// Devices lists the UDIDs of attached devices.
func (d *Device) Devices(ctx context.Context) ([]string, error) {
	res, argv, err := d.run(ctx, ErrNoDeviceAttached, d.tools.DeviceID, false, "-l")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &ToolError{Kind: ErrNoDeviceAttached, Command: argv, ExitCode: res.ExitCode, Output: res.Output()}
	}

	var udids []string
	for _, line := range strings.Split(string(res.Stdout), "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			udids = append(udids, f[0])
		}
	}
	if len(udids) == 0 {
		return nil, ErrNoDeviceAttached
	}
	return udids, nil
}

// EnsureAttached checks that the configured device, or any device when
// no UDID is configured, is attached.
func (d *Device) EnsureAttached(ctx context.Context) error {
	udids, err := d.Devices(ctx)
	if err != nil {
		return err
	}
	if d.udid != "" && !slices.Contains(udids, d.udid) {
		return fmt.Errorf("%w: %s", ErrNoDeviceAttached, d.udid)
	}
	return nil
}

// Property reads a single device property with ideviceinfo -k.
func (d *Device) Property(ctx context.Context, key string) (string, error) {
	res, argv, err := d.run(ctx, ErrGetDeviceInfo, d.tools.DeviceInfo, true, "-k", key)
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(string(res.Stdout))
	if res.ExitCode != 0 || value == "" {
		return "", &ToolError{Kind: ErrGetDeviceInfo, Command: argv, ExitCode: res.ExitCode, Output: res.Output()}
	}
	return value, nil
}

// ProductVersion returns the OS version of the device, e.g. "14.4.1".
func (d *Device) ProductVersion(ctx context.Context) (string, error) {
	return d.Property(ctx, "ProductVersion")
}
