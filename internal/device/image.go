package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Developer disk image file names inside a DeviceSupport version directory.
const (
	ImageName     = "DeveloperDiskImage.dmg"
	SignatureName = "DeveloperDiskImage.dmg.signature"
)

// Image is a developer disk image and its signature.
type Image struct {
	Path      string
	Signature string
	Version   *semver.Version
}

// ImageFinder locates developer disk images under a DeviceSupport root.
type ImageFinder struct {
	runner Runner
	xcrun  string
	root   string
}

// NewImageFinder creates a finder. An empty root is resolved with
// "xcrun -sdk iphoneos --show-sdk-platform-path" on first use.
func NewImageFinder(r Runner, xcrun, root string) *ImageFinder {
	return &ImageFinder{runner: r, xcrun: xcrun, root: root}
}

// Root returns the DeviceSupport directory.
func (f *ImageFinder) Root(ctx context.Context) (string, error) {
	if f.root != "" {
		return f.root, nil
	}

	argv, err := SplitCommand(f.xcrun)
	if err != nil {
		return "", &ToolError{Kind: ErrFindDeveloperDiskImage, Command: []string{f.xcrun}, ExitCode: -1, Err: err}
	}
	argv = append(argv, "-sdk", "iphoneos", "--show-sdk-platform-path")

	res, err := f.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return "", &ToolError{Kind: ErrFindDeveloperDiskImage, Command: argv, ExitCode: -1, Err: err}
	}
	platform := strings.TrimSpace(string(res.Stdout))
	if res.ExitCode != 0 || platform == "" {
		return "", &ToolError{Kind: ErrFindDeveloperDiskImage, Command: argv, ExitCode: res.ExitCode, Output: res.Output()}
	}

	f.root = filepath.Join(platform, "DeviceSupport")
	return f.root, nil
}

// Find returns the image for a device running productVersion. A directory
// with the same major.minor wins; otherwise the newest directory not newer
// than the device is used.
func (f *ImageFinder) Find(ctx context.Context, productVersion string) (*Image, error) {
	device, err := semver.NewVersion(productVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: device version %q: %v", ErrFindDeveloperDiskImage, productVersion, err)
	}

	root, err := f.Root(ctx)
	if err != nil {
		return nil, err
	}
	candidates, err := scanImages(root)
	if err != nil {
		return nil, err
	}

	sameMinor, err := semver.NewConstraint(fmt.Sprintf("~%d.%d", device.Major(), device.Minor()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFindDeveloperDiskImage, err)
	}
	notNewer, err := semver.NewConstraint("<= " + device.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFindDeveloperDiskImage, err)
	}

	if best := newest(candidates, sameMinor); best != nil {
		return best, nil
	}
	if best := newest(candidates, notNewer); best != nil {
		return best, nil
	}
	return nil, fmt.Errorf("%w: no image for iOS %s under %s", ErrFindDeveloperDiskImage, productVersion, root)
}

func newest(images []*Image, c *semver.Constraints) *Image {
	var best *Image
	for _, img := range images {
		if !c.Check(img.Version) {
			continue
		}
		if best == nil || img.Version.GreaterThan(best.Version) {
			best = img
		}
	}
	return best
}

// scanImages lists version directories holding both image files.
// Directory names look like "14.4" or "14.4 (18D46)".
func scanImages(root string) ([]*Image, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrFindDeveloperDiskImage, root)
		}
		return nil, fmt.Errorf("%w: %v", ErrFindDeveloperDiskImage, err)
	}

	var images []*Image
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fields := strings.Fields(e.Name())
		if len(fields) == 0 {
			continue
		}
		v, err := semver.NewVersion(fields[0])
		if err != nil {
			continue
		}

		dir := filepath.Join(root, e.Name())
		img := &Image{
			Path:      filepath.Join(dir, ImageName),
			Signature: filepath.Join(dir, SignatureName),
			Version:   v,
		}
		if !isFile(img.Path) || !isFile(img.Signature) {
			continue
		}
		images = append(images, img)
	}
	return images, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Mount mounts the developer disk image matching the device's OS version.
// The mounter reports an already mounted image as a failure containing
// "Error:", so such output is treated as success.
func (d *Device) Mount(ctx context.Context) error {
	if err := d.EnsureAttached(ctx); err != nil {
		return err
	}

	version, err := d.ProductVersion(ctx)
	if err != nil {
		return err
	}

	img, err := d.finder.Find(ctx, version)
	if err != nil {
		return err
	}
	d.logger.Debug("mounting %s for iOS %s", img.Path, version)

	res, argv, err := d.run(ctx, ErrMountingDiskImage, d.tools.ImageMounter, true, img.Path, img.Signature)
	if err != nil {
		return err
	}
	if res.ExitCode == 0 {
		return nil
	}

	out := res.Output()
	if strings.Contains(out, "Error:") {
		d.logger.Info("image mounter exited %d, assuming already mounted: %s", res.ExitCode, firstLine(out))
		return nil
	}
	return &ToolError{Kind: ErrMountingDiskImage, Command: argv, ExitCode: res.ExitCode, Output: out}
}
