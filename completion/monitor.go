/*Package completion hands the outcome of an asynchronous hardware operation
from the thread that is told about it (usually a driver callback) to the
goroutine waiting on it.

A Monitor is a single slot future.  Reset arms it and returns a generation;
the first completion for that generation is recorded and wakes the waiter,
anything after it is dropped.  Wait blocks on a channel, never spins, and
gives up when its context is done.

	var m completion.Monitor
	gen := m.Reset()
	board.DMAInstallCallback(ch, func(ci dmx820.CallbackInfo) {
		m.CompleteGeneration(gen, ci.Err())
	})
	// request the transfer...
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.Wait(ctx)
*/
package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTimeout is generated when a wait ends before the operation completed
	ErrTimeout = errors.New("timed out waiting for completion")

	// ErrNotArmed is generated when waiting on a monitor that was never Reset
	ErrNotArmed = errors.New("wait on a monitor that is not armed")

	errReset = errors.New("monitor was reset during wait")
)

// State is the state of a Monitor
type State int

const (
	// Idle is a monitor that has never been armed
	Idle State = iota

	// Armed is waiting for its completion
	Armed

	// DoneOK completed successfully
	DoneOK

	// DoneErr completed with an error
	DoneErr
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case DoneOK:
		return "done"
	case DoneErr:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Generation identifies one arming of a Monitor
type Generation uint64

// Monitor is a single slot future for one armed operation at a time.
// The zero value is Idle and ready to use.  A Monitor must not be copied
type Monitor struct {
	mu    sync.Mutex
	gen   Generation
	state State
	err   error
	done  chan struct{}
}

// Reset clears any recorded outcome and arms the monitor.  It must be called
// before the operation it waits for is started.  Completions for earlier
// generations are ignored from here on, and a goroutine still waiting on
// the previous generation is released with an error
func (m *Monitor) Reset() Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Armed {
		close(m.done)
	}
	m.gen++
	m.state = Armed
	m.err = nil
	m.done = make(chan struct{})
	return m.gen
}

// Complete records the outcome of the current generation, nil is success.
// It returns false if the monitor was not armed or already completed
func (m *Monitor) Complete(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complete(err)
}

// CompleteGeneration is Complete for callers that captured the generation at
// Reset.  A stale generation is dropped and false is returned
func (m *Monitor) CompleteGeneration(gen Generation, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return false
	}
	return m.complete(err)
}

// complete does the work of Complete, m.mu must be held
func (m *Monitor) complete(err error) bool {
	if m.state != Armed {
		return false
	}
	m.err = err
	if err != nil {
		m.state = DoneErr
	} else {
		m.state = DoneOK
	}
	close(m.done)
	return true
}

// Wait blocks until the armed operation completes or ctx is done.  It
// returns nil on success, the recorded error on failure, and an error
// wrapping both ErrTimeout and ctx.Err() if the context ended first
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Idle {
		m.mu.Unlock()
		return ErrNotArmed
	}
	done, gen := m.done, m.gen
	m.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return &timeoutError{cause: ctx.Err()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return errReset
	}
	return m.err
}

// State returns the current state of the monitor
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation returns the current generation, 0 if never armed
func (m *Monitor) Generation() Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

type timeoutError struct {
	cause error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("%v: %v", ErrTimeout, e.cause)
}

func (e *timeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *timeoutError) Unwrap() error {
	return e.cause
}
