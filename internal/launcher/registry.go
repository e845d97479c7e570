package launcher

import (
	"sync"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/process"
)

// ProxyRegistry holds the debug server proxy started by this process.
// The zero value is ready to use.
type ProxyRegistry struct {
	mu      sync.Mutex
	current *process.Process
}

// Current returns the registered proxy, or nil.
func (r *ProxyRegistry) Current() *process.Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Replace registers p and signals the previously registered proxy, if
// still running, to terminate. The previous proxy is returned so callers
// can wait for it to exit.
func (r *ProxyRegistry) Replace(p *process.Process) *process.Process {
	r.mu.Lock()
	old := r.current
	r.current = p
	r.mu.Unlock()

	if old != nil && old != p && old.IsRunning() {
		_ = old.Terminate()
	}
	return old
}

// Clear unregisters and returns the current proxy without signalling it.
func (r *ProxyRegistry) Clear() *process.Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.current
	r.current = nil
	return old
}

// clearIf unregisters p only if it is still the current proxy.
func (r *ProxyRegistry) clearIf(p *process.Process) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != p {
		return false
	}
	r.current = nil
	return true
}
