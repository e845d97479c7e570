package gdbremote

import "sync"

// resultCell holds the outcome of one handshake step.
// The first settle wins; later settles are no-ops.
type resultCell struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newResultCell() *resultCell {
	return &resultCell{done: make(chan struct{})}
}

// settle records err (nil for success) and reports whether this call won.
func (r *resultCell) settle(err error) bool {
	won := false
	r.once.Do(func() {
		r.err = err
		won = true
		close(r.done)
	})
	return won
}

func (r *resultCell) resolve() bool {
	return r.settle(nil)
}

func (r *resultCell) reject(err error) bool {
	return r.settle(err)
}

// result returns whether the cell is settled and with what error.
func (r *resultCell) result() (bool, error) {
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}
