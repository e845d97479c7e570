package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// PIDFileName is the file, inside the state directory, that records the
// running proxy.
const PIDFileName = "proxy.pid"

// ProxyRecord describes a proxy started by an earlier invocation.
type ProxyRecord struct {
	PID     int       `yaml:"pid"`
	Name    string    `yaml:"name"`
	Port    int       `yaml:"port"`
	Started time.Time `yaml:"started"`
}

// PIDFile persists the proxy record so a later invocation can stop a
// proxy it did not start. Access is serialized with a file lock.
type PIDFile struct {
	path string
	lock *flock.Flock

	// matches reports whether pid still runs a process called name.
	matches func(pid int, name string) bool
	// signal delivers sig to pid.
	signal func(pid int, sig unix.Signal) error
}

// NewPIDFile returns a PIDFile in dir.
func NewPIDFile(dir string) *PIDFile {
	path := filepath.Join(dir, PIDFileName)
	return &PIDFile{
		path:    path,
		lock:    flock.New(path + ".lock"),
		matches: processMatches,
		signal:  unix.Kill,
	}
}

// Path returns the location of the pid file.
func (f *PIDFile) Path() string {
	return f.path
}

func (f *PIDFile) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	locked, err := f.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock %s: %w", f.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", f.lock.Path())
	}
	defer f.lock.Unlock()
	return fn()
}

// Read returns the recorded proxy, or nil if none is recorded.
func (f *PIDFile) Read(ctx context.Context) (*ProxyRecord, error) {
	var rec *ProxyRecord
	err := f.withLock(ctx, func() error {
		var err error
		rec, err = f.read()
		return err
	})
	return rec, err
}

func (f *PIDFile) read() (*ProxyRecord, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec ProxyRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	if rec.PID <= 0 {
		return nil, nil
	}
	return &rec, nil
}

// Write records rec, replacing any previous record.
func (f *PIDFile) Write(ctx context.Context, rec ProxyRecord) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return f.withLock(ctx, func() error {
		tmp := f.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, f.path)
	})
}

// Remove deletes the record if it still names pid. A pid of 0 removes
// any record.
func (f *PIDFile) Remove(ctx context.Context, pid int) error {
	return f.withLock(ctx, func() error {
		if pid != 0 {
			rec, err := f.read()
			if err != nil || rec == nil || rec.PID != pid {
				return err
			}
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
}

// TerminateStale stops the recorded proxy if it is still running and
// clears the record. It returns the pid that was signalled, or 0.
func (f *PIDFile) TerminateStale(ctx context.Context, grace time.Duration) (int, error) {
	var pid int
	err := f.withLock(ctx, func() error {
		rec, err := f.read()
		if err != nil {
			// an unreadable record cannot be acted on; drop it
			_ = os.Remove(f.path)
			return nil
		}
		if rec == nil {
			return nil
		}
		if f.matches(rec.PID, rec.Name) {
			if err := f.signal(rec.PID, unix.SIGTERM); err == nil {
				pid = rec.PID
			}
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
	if err != nil || pid == 0 {
		return pid, err
	}

	f.waitGone(ctx, pid, grace)
	return pid, nil
}

// waitGone polls until pid exits, escalating to SIGKILL after grace.
func (f *PIDFile) waitGone(ctx context.Context, pid int, grace time.Duration) {
	deadline := time.Now().Add(grace)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	killed := false
	for f.signal(pid, 0) == nil {
		if !killed && time.Now().After(deadline) {
			_ = f.signal(pid, unix.SIGKILL)
			killed = true
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if killed && time.Now().After(deadline.Add(grace)) {
			return
		}
	}
}

// processMatches reports whether pid is alive and runs name. ps may
// truncate the command name, so a prefix match is accepted.
func processMatches(pid int, name string) bool {
	if unix.Kill(pid, 0) != nil {
		return false
	}
	if name == "" {
		return true
	}
	out, err := exec.Command("ps", "-o", "comm=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return false
	}
	comm := filepath.Base(strings.TrimSpace(string(out)))
	return comm != "" && comm != "." && strings.HasPrefix(name, comm)
}
