package process

import (
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/logging"
)

// Supervisor tracks long-running child processes and stops them on Shutdown.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*Process

	closed atomic.Bool
	wg     sync.WaitGroup

	logger *logging.Logger
	onExit func(p *Process)
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithExitCallback sets a callback invoked after a process exits.
func WithExitCallback(fn func(p *Process)) SupervisorOption {
	return func(s *Supervisor) {
		s.onExit = fn
	}
}

// WithLogger sets the supervisor's logger.
func WithLogger(l *logging.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*Process),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts cmd under a fresh ID and tracks it until it exits.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (*Process, error) {
	return s.StartWithID(uuid.NewString(), name, cmd)
}

// StartWithID starts cmd under the given ID.
func (s *Supervisor) StartWithID(id, name string, cmd *exec.Cmd) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrShutdown
	}

	proc := New(id, name, cmd)
	if err := proc.Start(); err != nil {
		return nil, err
	}

	s.processes[id] = proc
	s.logger.Debug("started %s pid=%d id=%s", name, proc.PID(), id)

	s.wg.Add(1)
	go s.monitor(proc)

	return proc, nil
}

func (s *Supervisor) monitor(proc *Process) {
	defer s.wg.Done()
	<-proc.Done()

	s.logger.Debug("%s pid=%d exited: state=%s code=%d", proc.Name, proc.PID(), proc.State(), proc.ExitCode())

	if s.onExit != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("exit callback for %s panicked: %v", proc.Name, r)
				}
			}()
			s.onExit(proc)
		}()
	}

	s.mu.Lock()
	delete(s.processes, proc.ID)
	s.mu.Unlock()
}

// Get returns a tracked process or nil.
func (s *Supervisor) Get(id string) *Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processes[id]
}

// List returns all tracked processes.
func (s *Supervisor) List() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		result = append(result, p)
	}
	return result
}

// Count returns the number of tracked processes.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}

// Terminate sends SIGTERM to a tracked process.
func (s *Supervisor) Terminate(id string) error {
	proc := s.Get(id)
	if proc == nil {
		return ErrNotFound
	}
	if !proc.IsRunning() {
		return nil
	}
	return proc.Terminate()
}

// Shutdown stops every tracked process, escalating to SIGKILL after
// timeout, and waits until all of them have been reaped.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	if s.closed.Swap(true) {
		return
	}

	var wg sync.WaitGroup
	for _, p := range s.List() {
		wg.Add(1)
		go func(p *Process) {
			defer wg.Done()
			p.Stop(timeout)
		}(p)
	}
	wg.Wait()
	s.wg.Wait()
}

// IsShuttingDown reports whether Shutdown has been called.
func (s *Supervisor) IsShuttingDown() bool {
	return s.closed.Load()
}
