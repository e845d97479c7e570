package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/config"
	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/device"
	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/gdbremote"
	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/logging"
	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/process"
)

// ErrProxySpawnFailed is returned when the debug server proxy does not start
// or exits during the grace period.
var ErrProxySpawnFailed = errors.New("debug server proxy failed to start")

// Defaults used when no option overrides them.
const (
	DefaultSpawnGrace  = 200 * time.Millisecond
	DefaultDialTimeout = 5 * time.Second
	DefaultStopTimeout = 2 * time.Second
	DefaultProxyHost   = "localhost"
)

// Launcher starts the debug server proxy and launches applications
// through it.
type Launcher struct {
	packages device.PackageLister
	mounter  device.ImageMounter
	spawner  device.ProxySpawner

	registry   *ProxyRegistry
	pidfile    *PIDFile
	supervisor *process.Supervisor

	host        string
	spawnGrace  time.Duration
	stopTimeout time.Duration
	dialTimeout time.Duration
	stepTimeout time.Duration

	logger *logging.Logger
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithRegistry shares a proxy registry between launchers.
func WithRegistry(r *ProxyRegistry) Option {
	return func(l *Launcher) {
		if r != nil {
			l.registry = r
		}
	}
}

// WithPIDFile records proxies in f so later invocations can stop them.
func WithPIDFile(f *PIDFile) Option {
	return func(l *Launcher) {
		l.pidfile = f
	}
}

// WithSupervisor sets the supervisor that owns spawned proxies.
func WithSupervisor(s *process.Supervisor) Option {
	return func(l *Launcher) {
		if s != nil {
			l.supervisor = s
		}
	}
}

// WithProxyHost sets the host the proxy listens on.
func WithProxyHost(host string) Option {
	return func(l *Launcher) {
		l.host = host
	}
}

// WithSpawnGrace sets how long a new proxy must stay up to count as started.
func WithSpawnGrace(d time.Duration) Option {
	return func(l *Launcher) {
		l.spawnGrace = d
	}
}

// WithDialTimeout bounds connecting to the proxy.
func WithDialTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		if d > 0 {
			l.dialTimeout = d
		}
	}
}

// WithStepTimeout sets the handshake step timeout used when a call passes zero.
func WithStepTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		if d > 0 {
			l.stepTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *logging.Logger) Option {
	return func(l *Launcher) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// New creates a launcher over the given collaborators.
func New(packages device.PackageLister, mounter device.ImageMounter, spawner device.ProxySpawner, opts ...Option) *Launcher {
	l := &Launcher{
		packages:    packages,
		mounter:     mounter,
		spawner:     spawner,
		registry:    &ProxyRegistry{},
		host:        DefaultProxyHost,
		spawnGrace:  DefaultSpawnGrace,
		stopTimeout: DefaultStopTimeout,
		dialTimeout: DefaultDialTimeout,
		stepTimeout: gdbremote.DefaultStepTimeout,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.supervisor == nil {
		l.supervisor = process.NewSupervisor(process.WithLogger(l.logger))
	}
	return l
}

// NewFromConfig wires a launcher to a device using the settings in cfg.
func NewFromConfig(cfg *config.Config, dev *device.Device, lg *logging.Logger, opts ...Option) *Launcher {
	base := []Option{
		WithLogger(lg),
		WithPIDFile(NewPIDFile(cfg.StateDir)),
		WithSpawnGrace(cfg.SpawnGrace.Std()),
		WithDialTimeout(cfg.DialTimeout.Std()),
		WithStepTimeout(cfg.StepTimeout.Std()),
	}
	return New(dev, dev, dev, append(base, opts...)...)
}

// Registry returns the proxy registry.
func (l *Launcher) Registry() *ProxyRegistry {
	return l.registry
}

// StartDebugProxy replaces any running proxy with a fresh one listening on
// port, mounting the developer disk image first.
func (l *Launcher) StartDebugProxy(ctx context.Context, port int) (*process.Process, error) {
	if old := l.registry.Clear(); old != nil {
		l.logger.Info("stopping previous proxy pid=%d", old.PID())
		old.Stop(l.stopTimeout)
	}
	if l.pidfile != nil {
		pid, err := l.pidfile.TerminateStale(ctx, l.stopTimeout)
		if err != nil {
			l.logger.Warn("checking for a stale proxy: %v", err)
		} else if pid != 0 {
			l.logger.Info("stopped stale proxy pid=%d", pid)
		}
	}

	if err := l.mounter.Mount(ctx); err != nil {
		return nil, err
	}

	cmd, err := l.spawner.ProxyCommand(port)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxySpawnFailed, err)
	}
	name := filepath.Base(cmd.Path)
	proc, err := l.supervisor.Start(name, cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxySpawnFailed, err)
	}
	l.registry.Replace(proc)
	l.logger.Info("started %s pid=%d port=%d", name, proc.PID(), port)

	if l.pidfile != nil {
		rec := ProxyRecord{PID: proc.PID(), Name: name, Port: port, Started: proc.Started}
		if err := l.pidfile.Write(ctx, rec); err != nil {
			l.logger.Warn("recording proxy pid: %v", err)
		}
	}

	timer := time.NewTimer(l.spawnGrace)
	defer timer.Stop()

	select {
	case <-timer.C:
		return proc, nil
	case <-proc.Done():
		l.forget(proc)
		out := strings.TrimSpace(proc.Output())
		if out == "" {
			return nil, fmt.Errorf("%w: exited with code %d", ErrProxySpawnFailed, proc.ExitCode())
		}
		return nil, fmt.Errorf("%w: exited with code %d: %s", ErrProxySpawnFailed, proc.ExitCode(), out)
	case <-ctx.Done():
		proc.Stop(l.stopTimeout)
		l.forget(proc)
		return nil, ctx.Err()
	}
}

// forget drops proc from the registry and the pid file.
func (l *Launcher) forget(proc *process.Process) {
	l.registry.clearIf(proc)
	if l.pidfile != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.pidfile.Remove(ctx, proc.PID()); err != nil {
			l.logger.Warn("removing proxy pid file: %v", err)
		}
	}
}

// StartApp resolves packageID on the device, connects to the proxy on port
// and launches the application. A zero timeout uses the configured step
// timeout. On success the returned client is monitoring the application.
func (l *Launcher) StartApp(ctx context.Context, packageID string, port int, timeout time.Duration) (*gdbremote.Client, error) {
	path, err := l.packages.PathForPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("resolved %s to %s", packageID, path)

	if l.registry.Current() == nil {
		l.logger.Warn("no debug server proxy started by this launcher; expecting one on port %d", port)
	}

	if timeout <= 0 {
		timeout = l.stepTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, l.dialTimeout)
	defer cancel()

	address := net.JoinHostPort(l.host, strconv.Itoa(port))
	client, err := gdbremote.Dial(dialCtx, address,
		gdbremote.WithStepTimeout(timeout),
		gdbremote.WithLogger(l.logger.WithComponent("gdbremote")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gdbremote.ErrLaunchFailed, err)
	}

	if err := client.Launch(ctx, path); err != nil {
		client.Close()
		return nil, err
	}
	l.logger.Info("launched %s", packageID)
	return client, nil
}

// Launch starts a fresh proxy and then the application.
func (l *Launcher) Launch(ctx context.Context, packageID string, port int, timeout time.Duration) (*gdbremote.Client, error) {
	if _, err := l.StartDebugProxy(ctx, port); err != nil {
		return nil, err
	}
	return l.StartApp(ctx, packageID, port, timeout)
}

// StopProxy stops the registered proxy, if any, and clears its record.
func (l *Launcher) StopProxy() {
	proc := l.registry.Clear()
	if proc == nil {
		return
	}
	proc.Stop(l.stopTimeout)
	l.forget(proc)
}

// Close stops every process the launcher started.
func (l *Launcher) Close() {
	l.StopProxy()
	l.supervisor.Shutdown(l.stopTimeout)
}
