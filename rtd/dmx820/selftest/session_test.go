package selftest

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/dmx820/completion"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820"
)

func openSim(t *testing.T, cfg dmx820.SimConfig) *dmx820.SimBoard {
	t.Helper()
	if cfg.FIFOSize == 0 {
		cfg.FIFOSize = 0x800
	}
	brd, err := dmx820.NewSim(cfg).Open(0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { brd.Close() })
	return brd.(*dmx820.SimBoard)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Seed = 1234
	opts.Timeout = 5 * time.Second
	return opts
}

type recorder struct {
	sync.Mutex
	begun []string
	ended []error
}

func (r *recorder) BeginWait(step string) {
	r.Lock()
	defer r.Unlock()
	r.begun = append(r.begun, step)
}

func (r *recorder) EndWait(step string, err error) {
	r.Lock()
	defer r.Unlock()
	r.ended = append(r.ended, err)
}

// quiet checks the board was left with nothing running or installed
func quiet(t *testing.T, b *dmx820.SimBoard) {
	t.Helper()
	for fifo := 0; fifo < dmx820.NumFIFOs; fifo++ {
		if b.FifoEnabled(fifo) {
			t.Errorf("FIFO %d left enabled", fifo)
		}
	}
	for _, ch := range []dmx820.DMAChannel{dmx820.DMAChannel0, dmx820.DMAChannel1} {
		if b.CallbackInstalled(ch) {
			t.Errorf("%s callback left installed", ch)
		}
	}
	if b.ClockMode(0) != dmx820.PgmClkDisabled {
		t.Error("programmable clock left running")
	}
	if n := b.Outstanding(); n != 0 {
		t.Errorf("%d buffers not freed", n)
	}
	if b.Closed() {
		t.Error("the session must not close the board")
	}
}

func TestRunRoundTrip(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{})
	opts := testOptions()
	opts.KeepData = true
	rec := &recorder{}
	opts.Observer = rec
	rep, err := NewSession(b, opts).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Passed || rep.FailAt != -1 {
		t.Fatalf("expected the loopback to pass, failed at %d", rep.FailAt)
	}
	if rep.Size != 0x400 {
		t.Errorf("expected size 0x400 got %#x", rep.Size)
	}
	for i, v := range Sentinels {
		if rep.Received[i] != v {
			t.Errorf("received sample %d: expected %04x got %04x", i, v, rep.Received[i])
		}
	}
	if rep.SentCRC != rep.ReceivedCRC {
		t.Error("checksums of identical buffers differ")
	}
	if len(rec.begun) != 2 || len(rec.ended) != 2 {
		t.Errorf("expected two observed waits, got %v", rec.begun)
	}
	quiet(t, b)
}

func TestRunRequestsBothDirections(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{})
	if _, err := NewSession(b, testOptions()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	reqs := b.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 DMA requests got %d", len(reqs))
	}
	if reqs[0].Op != dmx820.OpBufferToBoard || reqs[0].Channel != dmx820.DMAChannel0 || reqs[0].Port != dmx820.FIFO0Port {
		t.Errorf("unexpected first request %+v", reqs[0])
	}
	if reqs[1].Op != dmx820.OpBoardToBuffer || reqs[1].Channel != dmx820.DMAChannel1 || reqs[1].Port != dmx820.FIFO1Port {
		t.Errorf("unexpected second request %+v", reqs[1])
	}
	if len(reqs[1].Buffer.Samples) != 0 {
		t.Error("receive buffer should have been freed")
	}
}

func TestRunDetectsMismatchAt42(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{CorruptAt: 42, CorruptMask: 0x8000})
	rep, err := NewSession(b, testOptions()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Passed {
		t.Fatal("expected a mismatch")
	}
	if rep.FailAt != 42 {
		t.Errorf("expected failure at 42 got %d", rep.FailAt)
	}
	if len(rep.Neighbourhood) == 0 || rep.Neighbourhood[0].Index != 42 {
		t.Errorf("expected the dump to start at 42, got %+v", rep.Neighbourhood)
	}
	quiet(t, b)
}

func TestRunUnwiredFails(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{Unwired: true})
	rep, err := NewSession(b, testOptions()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Passed || rep.FailAt != 0 {
		t.Errorf("expected an unwired board to fail at 0, got passed=%v failAt=%d", rep.Passed, rep.FailAt)
	}
}

func TestRunCallbackFailureStopsBeforeSecondTransfer(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{CallbackResult: map[dmx820.DMAChannel]dmx820.StatusCode{dmx820.DMAChannel0: 6}})
	_, err := NewSession(b, testOptions()).Run(context.Background())
	var e *dmx820.Error
	if !errors.As(err, &e) || e.Code != 6 {
		t.Fatalf("expected the FIFO OVERFLOW callback error, got %v", err)
	}
	if n := len(b.Requests()); n != 1 {
		t.Errorf("expected only the first transfer to be requested, got %d", n)
	}
	quiet(t, b)
}

func TestRunTimesOutOnLostCallback(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{DropCallback: map[dmx820.DMAChannel]bool{dmx820.DMAChannel1: true}})
	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	_, err := NewSession(b, opts).Run(context.Background())
	if !errors.Is(err, completion.ErrTimeout) {
		t.Fatalf("expected a timeout got %v", err)
	}
	quiet(t, b)
}

func TestRunDoubleCallback(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{CallbackTwice: true})
	rep, err := NewSession(b, testOptions()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Passed {
		t.Errorf("a repeated callback should not disturb the result, failed at %d", rep.FailAt)
	}
}

func TestRunOutOfMemory(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{MaxAlloc: 0x400})
	_, err := NewSession(b, testOptions()).Run(context.Background())
	if !errors.Is(err, dmx820.ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory got %v", err)
	}
	if !strings.Contains(err.Error(), "receive buffer") {
		t.Errorf("expected the receive buffer to be the one refused, got %v", err)
	}
	if len(b.Requests()) != 0 {
		t.Error("no transfer should be requested without buffers")
	}
	quiet(t, b)
}

func TestRunSmallFIFOAbortsBeforeAlloc(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{FIFOSize: 0x3FF})
	_, err := NewSession(b, testOptions()).Run(context.Background())
	if !errors.Is(err, ErrFIFOTooSmall) {
		t.Fatalf("expected ErrFIFOTooSmall got %v", err)
	}
	quiet(t, b)
}

func TestRunExactMarginRefused(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{FIFOSize: 0x400})
	_, err := NewSession(b, testOptions()).Run(context.Background())
	if !errors.Is(err, ErrFIFOTooSmall) {
		t.Fatalf("expected ErrFIFOTooSmall got %v", err)
	}
}

func TestRunConfigFailureAborts(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{FailCalls: map[string]dmx820.StatusCode{"DMX820_PgmClk_Set_Config": 1}})
	_, err := NewSession(b, testOptions()).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "configure programmable clock") {
		t.Fatalf("expected the clock configuration step to fail, got %v", err)
	}
	if len(b.Requests()) != 0 {
		t.Error("no transfer should be requested after a configuration failure")
	}
	quiet(t, b)
}

func TestRunTwiceOnOneBoard(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{})
	for i := 0; i < 2; i++ {
		rep, err := NewSession(b, testOptions()).Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if !rep.Passed {
			t.Fatalf("run %d failed at %d", i, rep.FailAt)
		}
	}
}

func TestRunLogs(t *testing.T) {
	b := openSim(t, dmx820.SimConfig{})
	var buf bytes.Buffer
	opts := testOptions()
	opts.Logger = log.New(&buf, "", 0)
	if _, err := NewSession(b, opts).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"Request DMA 0 Start", "Request DMA 1 Start", "Unloading allocated memory"} {
		if !strings.Contains(buf.String(), line) {
			t.Errorf("log is missing %q", line)
		}
	}
}
