package config

import (
	"strconv"
)

// EnvPrefix prefixes every environment variable the launcher reads.
const EnvPrefix = "IDEVICE_LAUNCHER_"

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with IDEVICE_LAUNCHER_* variables. Unset variables
// leave settings untouched; set but malformed ones are a ParseError.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}

	texts := map[string]*string{
		"UDID":                   &cfg.UDID,
		"DEVICE_SUPPORT_DIR":     &cfg.DeviceSupportDir,
		"STATE_DIR":              &cfg.StateDir,
		"LOG_LEVEL":              &cfg.LogLevel,
		"TOOL_DEVICE_ID":         &cfg.Tools.DeviceID,
		"TOOL_DEVICE_INFO":       &cfg.Tools.DeviceInfo,
		"TOOL_INSTALLER":         &cfg.Tools.Installer,
		"TOOL_IMAGE_MOUNTER":     &cfg.Tools.ImageMounter,
		"TOOL_DEBUGSERVER_PROXY": &cfg.Tools.DebugServerProxy,
		"TOOL_XCRUN":             &cfg.Tools.Xcrun,
	}
	for suffix, dst := range texts {
		if v, ok := lookup(EnvPrefix + suffix); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "PROXY_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &ParseError{Path: EnvPrefix + "PROXY_PORT", Message: "not an integer", Err: err}
		}
		cfg.ProxyPort = port
	}

	durations := map[string]*Duration{
		"STEP_TIMEOUT": &cfg.StepTimeout,
		"SPAWN_GRACE":  &cfg.SpawnGrace,
		"DIAL_TIMEOUT": &cfg.DialTimeout,
	}
	for suffix, dst := range durations {
		v, ok := lookup(EnvPrefix + suffix)
		if !ok {
			continue
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return &ParseError{Path: EnvPrefix + suffix, Message: "not a duration", Err: err}
		}
	}
	return nil
}
