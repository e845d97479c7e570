package device

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"howett.net/plist"
)

// Package is an application installed on the device.
type Package struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name,omitempty"`
	Version    string `yaml:"version,omitempty"`
	Path       string `yaml:"path"`
	Executable string `yaml:"executable"`
}

// OnDevicePath returns the absolute path of the installed .app bundle. The
// debug server takes the bundle directory as argument 0 and resolves the
// executable itself.
func (p Package) OnDevicePath() string {
	return strings.TrimSuffix(p.Path, "/")
}

type packageRecord struct {
	Identifier   string `plist:"CFBundleIdentifier"`
	DisplayName  string `plist:"CFBundleDisplayName"`
	BundleName   string `plist:"CFBundleName"`
	ShortVersion string `plist:"CFBundleShortVersionString"`
	Path         string `plist:"Path"`
	Executable   string `plist:"CFBundleExecutable"`
}

// Packages lists the user applications installed on the device.
func (d *Device) Packages(ctx context.Context) ([]Package, error) {
	res, argv, err := d.run(ctx, ErrPackageListUnavailable, d.tools.Installer, true, "-l", "-o", "xml")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &ToolError{Kind: ErrPackageListUnavailable, Command: argv, ExitCode: res.ExitCode, Output: res.Output()}
	}
	return ParsePackages(res.Stdout)
}

// ParsePackages decodes the plist emitted by "ideviceinstaller -l -o xml".
// Any banner printed before the plist document is skipped. Records
// without a bundle identifier are ignored.
func ParsePackages(data []byte) ([]Package, error) {
	start := bytes.Index(data, []byte("<?xml"))
	if start < 0 {
		start = bytes.Index(data, []byte("<plist"))
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: no plist document in output", ErrPackageListFormat)
	}

	var records []packageRecord
	if _, err := plist.Unmarshal(data[start:], &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackageListFormat, err)
	}

	pkgs := make([]Package, 0, len(records))
	for _, r := range records {
		if r.Identifier == "" {
			continue
		}
		name := r.DisplayName
		if name == "" {
			name = r.BundleName
		}
		pkgs = append(pkgs, Package{
			ID:         r.Identifier,
			Name:       name,
			Version:    r.ShortVersion,
			Path:       r.Path,
			Executable: r.Executable,
		})
	}
	return pkgs, nil
}

// PathForPackage resolves a bundle identifier to its on-device executable path.
func (d *Device) PathForPackage(ctx context.Context, id string) (string, error) {
	pkgs, err := d.Packages(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range pkgs {
		if p.ID == id {
			return p.OnDevicePath(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPackageNotInstalled, id)
}
