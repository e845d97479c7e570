package device

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/config"
)

type fakeResponse struct {
	result Result
	err    error
}

// fakeRunner answers commands by their joined command line.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: make(map[string]fakeResponse)}
}

func (f *fakeRunner) on(cmdline, stdout string, exitCode int) {
	f.responses[cmdline] = fakeResponse{result: Result{Stdout: []byte(stdout), ExitCode: exitCode}}
}

func (f *fakeRunner) onStderr(cmdline, stderr string, exitCode int) {
	f.responses[cmdline] = fakeResponse{result: Result{Stderr: []byte(stderr), ExitCode: exitCode}}
}

func (f *fakeRunner) fail(cmdline string, err error) {
	f.responses[cmdline] = fakeResponse{result: Result{ExitCode: -1}, err: err}
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmdline)

	resp, ok := f.responses[cmdline]
	if !ok {
		return Result{ExitCode: -1}, exec.ErrNotFound
	}
	return resp.result, resp.err
}

func (f *fakeRunner) called(cmdline string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == cmdline {
			return true
		}
	}
	return false
}

func newTestDevice(r Runner, mutate func(c *config.Config)) *Device {
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, WithRunner(r))
}

func TestDevices(t *testing.T) {
	r := newFakeRunner()
	r.on("idevice_id -l", "aaaa (USB)\nbbbb\n\n", 0)
	d := newTestDevice(r, nil)

	udids, err := d.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(udids) != 2 || udids[0] != "aaaa" || udids[1] != "bbbb" {
		t.Errorf("Devices = %v, expected [aaaa bbbb]", udids)
	}
}

func TestDevices_None(t *testing.T) {
	r := newFakeRunner()
	r.on("idevice_id -l", "", 0)
	d := newTestDevice(r, nil)

	if _, err := d.Devices(context.Background()); !errors.Is(err, ErrNoDeviceAttached) {
		t.Errorf("Devices = %v, expected ErrNoDeviceAttached", err)
	}
}

func TestDevices_ToolMissing(t *testing.T) {
	d := newTestDevice(newFakeRunner(), nil)

	_, err := d.Devices(context.Background())
	if !errors.Is(err, ErrNoDeviceAttached) {
		t.Errorf("Devices = %v, expected ErrNoDeviceAttached", err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("Devices = %v, expected to wrap exec.ErrNotFound", err)
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.ExitCode != -1 {
		t.Errorf("expected ToolError with exit code -1, got %v", err)
	}
}

func TestEnsureAttached_UDID(t *testing.T) {
	r := newFakeRunner()
	r.on("idevice_id -l", "aaaa\n", 0)

	if err := newTestDevice(r, func(c *config.Config) { c.UDID = "aaaa" }).EnsureAttached(context.Background()); err != nil {
		t.Errorf("EnsureAttached(aaaa) = %v", err)
	}
	err := newTestDevice(r, func(c *config.Config) { c.UDID = "zzzz" }).EnsureAttached(context.Background())
	if !errors.Is(err, ErrNoDeviceAttached) {
		t.Errorf("EnsureAttached(zzzz) = %v, expected ErrNoDeviceAttached", err)
	}
}

func TestProductVersion(t *testing.T) {
	r := newFakeRunner()
	r.on("ideviceinfo -u aaaa -k ProductVersion", "14.4.1\n", 0)
	d := newTestDevice(r, func(c *config.Config) { c.UDID = "aaaa" })

	v, err := d.ProductVersion(context.Background())
	if err != nil {
		t.Fatalf("ProductVersion: %v", err)
	}
	if v != "14.4.1" {
		t.Errorf("ProductVersion = %q, expected 14.4.1", v)
	}
}

func TestProductVersion_Failure(t *testing.T) {
	r := newFakeRunner()
	r.onStderr("ideviceinfo -k ProductVersion", "ERROR: Could not connect to lockdownd", 255)
	d := newTestDevice(r, nil)

	_, err := d.ProductVersion(context.Background())
	if !errors.Is(err, ErrGetDeviceInfo) {
		t.Fatalf("ProductVersion = %v, expected ErrGetDeviceInfo", err)
	}
	if !strings.Contains(err.Error(), "lockdownd") {
		t.Errorf("error %q should include tool output", err)
	}
}

func TestRun_ToolCommandLine(t *testing.T) {
	r := newFakeRunner()
	r.on("/opt/tools/ideviceinfo --debug -k ProductVersion", "15.0", 0)
	d := newTestDevice(r, func(c *config.Config) {
		c.Tools.DeviceInfo = `/opt/tools/ideviceinfo --debug`
	})

	if _, err := d.ProductVersion(context.Background()); err != nil {
		t.Errorf("ProductVersion: %v", err)
	}
}

func TestRun_BadToolCommandLine(t *testing.T) {
	d := newTestDevice(newFakeRunner(), func(c *config.Config) {
		c.Tools.DeviceInfo = `"unterminated`
	})

	if _, err := d.ProductVersion(context.Background()); !errors.Is(err, ErrGetDeviceInfo) {
		t.Errorf("ProductVersion = %v, expected ErrGetDeviceInfo", err)
	}
}

func TestProxyCommand(t *testing.T) {
	d := newTestDevice(newFakeRunner(), func(c *config.Config) { c.UDID = "aaaa" })

	cmd, err := d.ProxyCommand(3333)
	if err != nil {
		t.Fatalf("ProxyCommand: %v", err)
	}
	got := strings.Join(cmd.Args, " ")
	if got != "idevicedebugserverproxy -u aaaa 3333" {
		t.Errorf("ProxyCommand args = %q", got)
	}
	if cmd.Process != nil {
		t.Error("ProxyCommand should not start the process")
	}
}

func TestResult_Output(t *testing.T) {
	tests := []struct {
		res      Result
		expected string
	}{
		{Result{Stdout: []byte("out\n")}, "out"},
		{Result{Stderr: []byte(" err ")}, "err"},
		{Result{Stdout: []byte("out"), Stderr: []byte("err")}, "out\nerr"},
		{Result{}, ""},
	}
	for _, tt := range tests {
		if got := tt.res.Output(); got != tt.expected {
			t.Errorf("Output() = %q, expected %q", got, tt.expected)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	argv, err := SplitCommand(`xcrun --toolchain "my chain"`)
	if err != nil {
		t.Fatalf("SplitCommand: %v", err)
	}
	if len(argv) != 3 || argv[2] != "my chain" {
		t.Errorf("SplitCommand = %q", argv)
	}
	if _, err := SplitCommand("   "); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestExecRunner(t *testing.T) {
	var r ExecRunner

	res, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 4")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 4 {
		t.Errorf("ExitCode = %d, expected 4", res.ExitCode)
	}
	if res.Output() != "out\nerr" {
		t.Errorf("Output() = %q", res.Output())
	}

	if _, err := r.Run(context.Background(), "definitely-not-a-real-binary-xyz"); !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("Run(missing) = %v, expected exec.ErrNotFound", err)
	}
}
