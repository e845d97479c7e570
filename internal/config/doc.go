// Package config provides the launcher's configuration.
//
// Settings are resolved in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← applied by the cli package
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← IDEVICE_LAUNCHER_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← config.toml or config.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │
//	└─────────────────────────────┘
//
// The file is looked up in the user config directory
// (~/.config/idevice-app-launcher on Linux) unless a path is given.
// TOML and YAML are both accepted; the extension picks the decoder.
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.ProxyPort, cfg.StepTimeout)
package config
