package completion_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/dmx820/completion"
)

func ExampleMonitor() {
	var m completion.Monitor
	gen := m.Reset()
	go m.CompleteGeneration(gen, nil)
	err := m.Wait(context.Background())
	fmt.Println(err, m.State())
	// Output: <nil> done
}

func waitFor(m *completion.Monitor, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.Wait(ctx)
}

func TestWaitIdleNotArmed(t *testing.T) {
	var m completion.Monitor
	if err := waitFor(&m, time.Second); !errors.Is(err, completion.ErrNotArmed) {
		t.Errorf("expected ErrNotArmed got %v", err)
	}
}

func TestResetMakesWaitBlock(t *testing.T) {
	var m completion.Monitor
	m.Reset()
	m.Complete(nil)
	if err := waitFor(&m, time.Second); err != nil {
		t.Fatalf("expected the first cycle to succeed, got %v", err)
	}
	m.Reset()
	err := waitFor(&m, 20*time.Millisecond)
	if !errors.Is(err, completion.ErrTimeout) {
		t.Errorf("expected ErrTimeout after reset, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the timeout to wrap the context error, got %v", err)
	}
	if m.State() != completion.Armed {
		t.Errorf("expected armed got %v", m.State())
	}
}

func TestFailurePropagates(t *testing.T) {
	var m completion.Monitor
	want := errors.New("FIFO OVERFLOW")
	gen := m.Reset()
	go func() {
		time.Sleep(5 * time.Millisecond)
		m.CompleteGeneration(gen, want)
	}()
	if err := waitFor(&m, time.Second); err != want {
		t.Errorf("expected %v got %v", want, err)
	}
	if m.State() != completion.DoneErr {
		t.Errorf("expected failed got %v", m.State())
	}
}

func TestSecondCompletionIgnored(t *testing.T) {
	var m completion.Monitor
	m.Reset()
	if !m.Complete(nil) {
		t.Fatal("first completion should be recorded")
	}
	if m.Complete(errors.New("late")) {
		t.Error("second completion should be dropped")
	}
	if err := waitFor(&m, time.Second); err != nil {
		t.Errorf("expected the first outcome to stand, got %v", err)
	}
}

func TestConcurrentCompletions(t *testing.T) {
	// run with -race
	var m completion.Monitor
	for cycle := 0; cycle < 50; cycle++ {
		gen := m.Reset()
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var err error
				if i%2 == 1 {
					err = fmt.Errorf("completion %d", i)
				}
				if m.CompleteGeneration(gen, err) {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}(i)
		}
		waitErr := waitFor(&m, time.Second)
		wg.Wait()
		if accepted != 1 {
			t.Fatalf("cycle %d: expected exactly one accepted completion, got %d", cycle, accepted)
		}
		if errors.Is(waitErr, completion.ErrTimeout) {
			t.Fatalf("cycle %d: wait timed out", cycle)
		}
		if (waitErr == nil) != (m.State() == completion.DoneOK) {
			t.Fatalf("cycle %d: outcome %v disagrees with state %v", cycle, waitErr, m.State())
		}
	}
}

func TestStaleGenerationDropped(t *testing.T) {
	var m completion.Monitor
	old := m.Reset()
	m.Reset()
	if m.CompleteGeneration(old, nil) {
		t.Error("completion for a stale generation should be dropped")
	}
	if m.State() != completion.Armed {
		t.Errorf("expected armed got %v", m.State())
	}
}

func TestResetReleasesWaiter(t *testing.T) {
	var m completion.Monitor
	m.Reset()
	errs := make(chan error, 1)
	go func() { errs <- waitFor(&m, 5*time.Second) }()
	time.Sleep(10 * time.Millisecond)
	m.Reset()
	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected a waiter released by reset to get an error")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("reset did not release the waiter")
	}
}

func TestCompleteUnarmed(t *testing.T) {
	var m completion.Monitor
	if m.Complete(nil) {
		t.Error("completing an idle monitor should be dropped")
	}
	if m.Generation() != 0 {
		t.Errorf("expected generation 0 got %d", m.Generation())
	}
}
