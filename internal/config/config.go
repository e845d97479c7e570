package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/logging"
)

// AppName names the config and state directories.
const AppName = "idevice-app-launcher"

// Duration is a time.Duration read from strings such as "10s" or "200ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Tools holds the command lines of the external utilities. Each entry may
// carry extra arguments, e.g. "xcrun --sdk iphoneos".
type Tools struct {
	DeviceID         string `toml:"device_id" yaml:"device_id"`
	DeviceInfo       string `toml:"device_info" yaml:"device_info"`
	Installer        string `toml:"installer" yaml:"installer"`
	ImageMounter     string `toml:"image_mounter" yaml:"image_mounter"`
	DebugServerProxy string `toml:"debugserver_proxy" yaml:"debugserver_proxy"`
	Xcrun            string `toml:"xcrun" yaml:"xcrun"`
}

// Config is the launcher configuration.
type Config struct {
	// UDID selects a device when more than one is attached.
	UDID string `toml:"udid" yaml:"udid"`

	// ProxyPort is the local port the debug server proxy listens on.
	ProxyPort int `toml:"proxy_port" yaml:"proxy_port"`

	// StepTimeout bounds each step of the launch handshake.
	StepTimeout Duration `toml:"step_timeout" yaml:"step_timeout"`

	// SpawnGrace is how long a fresh proxy must survive to count as started.
	SpawnGrace Duration `toml:"spawn_grace" yaml:"spawn_grace"`

	// DialTimeout bounds connecting to the proxy.
	DialTimeout Duration `toml:"dial_timeout" yaml:"dial_timeout"`

	// DeviceSupportDir overrides where DeveloperDiskImage versions are looked up.
	DeviceSupportDir string `toml:"device_support_dir" yaml:"device_support_dir"`

	// StateDir holds the proxy pid file.
	StateDir string `toml:"state_dir" yaml:"state_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	Tools Tools `toml:"tools" yaml:"tools"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ProxyPort:   3333,
		StepTimeout: Duration(10 * time.Second),
		SpawnGrace:  Duration(200 * time.Millisecond),
		DialTimeout: Duration(5 * time.Second),
		StateDir:    defaultStateDir(),
		LogLevel:    "info",
		Tools: Tools{
			DeviceID:         "idevice_id",
			DeviceInfo:       "ideviceinfo",
			Installer:        "ideviceinstaller",
			ImageMounter:     "ideviceimagemounter",
			DebugServerProxy: "idevicedebugserverproxy",
			Xcrun:            "xcrun",
		},
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.ProxyPort <= 0 || c.ProxyPort > 65535 {
		return &ValidationError{Setting: "proxy_port", Message: "must be between 1 and 65535"}
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"step_timeout", c.StepTimeout},
		{"spawn_grace", c.SpawnGrace},
		{"dial_timeout", c.DialTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return &ValidationError{Setting: d.name, Message: "must be positive"}
		}
	}

	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return &ValidationError{Setting: "log_level", Message: "must be debug, info, warn or error"}
	}

	tools := []struct {
		name, cmd string
	}{
		{"tools.device_id", c.Tools.DeviceID},
		{"tools.device_info", c.Tools.DeviceInfo},
		{"tools.installer", c.Tools.Installer},
		{"tools.image_mounter", c.Tools.ImageMounter},
		{"tools.debugserver_proxy", c.Tools.DebugServerProxy},
	}
	for _, tool := range tools {
		if strings.TrimSpace(tool.cmd) == "" {
			return &ValidationError{Setting: tool.name, Message: "must not be empty"}
		}
	}

	if c.StateDir == "" {
		return &ValidationError{Setting: "state_dir", Message: "must not be empty"}
	}
	return nil
}

// Dir returns the directory searched for the config file.
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(".", "."+AppName)
}

func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(os.TempDir(), AppName)
}
