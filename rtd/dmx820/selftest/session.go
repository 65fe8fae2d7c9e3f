package selftest

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"math/rand"
	"time"

	"github.jpl.nasa.gov/bdube/dmx820/completion"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820"
)

const (
	// loopClock is the programmable clock that paces the loopback
	loopClock = 0

	// recvSlack is how many samples larger than the send buffer the
	// receive buffer is, room for an extra priming read
	recvSlack = 4

	// allPins masks every pin of a port
	allPins = 0xFFFF
)

// Observer is told when the session starts and stops waiting on a DMA
// completion, so a front end can show progress
type Observer interface {
	BeginWait(step string)
	EndWait(step string, err error)
}

// Options configures a Session
type Options struct {
	// Reserved is the part of the FIFO left unused, 0 means DefaultReserved
	Reserved uint32

	// ClockMaster and ClockPeriod configure the pacing clock
	ClockMaster dmx820.ClockSource
	ClockPeriod uint32

	// Timeout bounds each wait on a DMA completion, 0 waits for as long as
	// the context of Run allows
	Timeout time.Duration

	// Seed seeds the random fill, 0 seeds from the clock
	Seed int64

	// KeepData keeps copies of both buffers in the report
	KeepData bool

	// Logger receives progress lines, nil discards them
	Logger *log.Logger

	// Observer, if not nil, is told about DMA waits
	Observer Observer
}

// DefaultOptions is a 100 kHz loopback with the default margin and a five
// second DMA timeout
func DefaultOptions() Options {
	return Options{
		Reserved:    DefaultReserved,
		ClockMaster: dmx820.Clock25MHz,
		ClockPeriod: 93,
		Timeout:     5 * time.Second,
	}
}

// Session is one loopback run on an open board.  It owns the buffers, the
// completion monitor and the installed callbacks for the run and releases
// them before Run returns.  The board itself belongs to the caller
type Session struct {
	board     dmx820.Board
	opts      Options
	log       *log.Logger
	mon       completion.Monitor
	sent      *dmx820.Buffer
	recv      *dmx820.Buffer
	installed map[dmx820.DMAChannel]bool
}

// NewSession prepares a run on board
func NewSession(board dmx820.Board, opts Options) *Session {
	if opts.Reserved == 0 {
		opts.Reserved = DefaultReserved
	}
	if opts.ClockPeriod == 0 {
		opts.ClockPeriod = DefaultOptions().ClockPeriod
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	return &Session{
		board:     board,
		opts:      opts,
		log:       logger,
		installed: make(map[dmx820.DMAChannel]bool),
	}
}

// step wraps err with the name of the step that failed
func step(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// Run configures the board, sends a buffer of random samples out of port 0
// through FIFO 0, reads it back in on port 1 through FIFO 1 and compares.
//
// A failed board call or DMA completion aborts the run and is returned.  A
// data mismatch is not an error, it is reported in the Report.  Teardown
// runs on every path.
func (s *Session) Run(ctx context.Context) (rep Report, err error) {
	rep.Board = s.board.Info()
	rep.Seed = s.opts.Seed
	rep.FailAt = -1
	rep.Start = time.Now()
	defer s.teardown()

	// clear whatever a previous user left behind
	s.log.Println("Disable FIFO 0")
	if err = step("disable FIFO 0", s.board.FifoSetEnable(0, false)); err != nil {
		return rep, err
	}
	s.log.Println("Disable FIFO 1")
	if err = step("disable FIFO 1", s.board.FifoSetEnable(1, false)); err != nil {
		return rep, err
	}
	s.log.Println("Disable Programmable Clock 0")
	if err = step("disable programmable clock", s.board.PgmClkSetMode(loopClock, dmx820.PgmClkDisabled)); err != nil {
		return rep, err
	}

	// size the transfer
	size, err := TransferSize(rep.Board.FIFOSize, s.opts.Reserved)
	if err == nil && size == 0 {
		err = fmt.Errorf("%w: nothing left to transfer", ErrFIFOTooSmall)
	}
	if err = step("size transfer", err); err != nil {
		return rep, err
	}
	rep.Size = size

	s.log.Println("Allocating buffer to send data to the DMX820.")
	if s.sent, err = s.board.Alloc(int(size)); err != nil {
		return rep, step("allocate send buffer", err)
	}
	s.log.Println("Creating Random Data")
	Fill(s.sent.Samples, rand.New(rand.NewSource(s.opts.Seed)))
	s.log.Println("Allocate buffer to receive data from the DMX820.")
	if s.recv, err = s.board.Alloc(int(size) + recvSlack); err != nil {
		return rep, step("allocate receive buffer", err)
	}
	for i := range s.recv.Samples {
		s.recv.Samples[i] = 0
	}

	if err = s.configure(); err != nil {
		return rep, err
	}

	// host to FIFO 0
	if err = s.arm(dmx820.DMAChannel0); err != nil {
		return rep, err
	}
	s.log.Println("FIFO 0 will now be enabled")
	if err = step("enable FIFO 0", s.board.FifoSetEnable(0, true)); err != nil {
		return rep, err
	}
	s.log.Println("Request DMA 0 Start")
	err = s.board.DMARequestTransfer(dmx820.Transfer{
		Channel: dmx820.DMAChannel0,
		Op:      dmx820.OpBufferToBoard,
		Port:    dmx820.FIFO0Port,
		Buffer:  s.sent,
		Length:  size,
		Notify:  true})
	if err = step("request DMA 0", err); err != nil {
		return rep, err
	}
	if err = s.wait(ctx, "DMA 0"); err != nil {
		return rep, err
	}

	// prime port 0 with the first sample, then hand FIFO 0 to the clock
	s.log.Println("Remove FIFO0 DMA Callback")
	if err = s.disarm(dmx820.DMAChannel0); err != nil {
		return rep, err
	}
	prime, err := s.board.FifoGetData(0)
	if err = step("prime FIFO 0", err); err != nil {
		return rep, err
	}
	s.recv.Samples[0] = prime
	s.log.Println("Configure FIFO 0")
	err = s.board.FifoSetConfig(0, dmx820.FifoConfig{
		InClock:  dmx820.ClockWritePort,
		OutClock: dmx820.ClockPgm0,
		DREQ:     dmx820.DREQWrite,
		Input:    dmx820.InputPCI})
	if err = step("clock FIFO 0 from programmable clock", err); err != nil {
		return rep, err
	}

	// FIFO 1 to host, paced by the clock
	if err = s.arm(dmx820.DMAChannel1); err != nil {
		return rep, err
	}
	s.log.Println("FIFO 1 will now be enabled")
	if err = step("enable FIFO 1", s.board.FifoSetEnable(1, true)); err != nil {
		return rep, err
	}
	s.log.Println("Request DMA 1 Start")
	err = s.board.DMARequestTransfer(dmx820.Transfer{
		Channel: dmx820.DMAChannel1,
		Op:      dmx820.OpBoardToBuffer,
		Port:    dmx820.FIFO1Port,
		Buffer:  s.recv,
		Length:  size,
		Notify:  true})
	if err = step("request DMA 1", err); err != nil {
		return rep, err
	}
	s.log.Println("Enable Programmable Clock")
	if err = step("start programmable clock", s.board.PgmClkSetMode(loopClock, dmx820.PgmClkContinuous)); err != nil {
		return rep, err
	}
	if err = s.wait(ctx, "DMA 1"); err != nil {
		return rep, err
	}

	s.log.Println("Disable Programmable Clock")
	if err = step("stop programmable clock", s.board.PgmClkSetMode(loopClock, dmx820.PgmClkDisabled)); err != nil {
		return rep, err
	}

	res := Evaluate(s.sent.Samples, s.recv.Samples, size)
	res.Board, res.Seed, res.Start = rep.Board, rep.Seed, rep.Start
	if s.opts.KeepData {
		res.Sent = append([]uint16(nil), s.sent.Samples[:size]...)
		res.Received = append([]uint16(nil), s.recv.Samples[:size]...)
	}
	res.Duration = time.Since(rep.Start)
	return res, nil
}

// configure sets up the ports, the FIFOs and the pacing clock
func (s *Session) configure() error {
	s.log.Println("Configure Port 1 as Input (TO FIFO 1).")
	if err := step("port 1 input", s.board.StdIOSetIOMode(dmx820.Port1, allPins, dmx820.ModeInput)); err != nil {
		return err
	}
	s.log.Println("Configure Port 0 as FIFO0 peripheral output.")
	if err := step("port 0 peripheral output", s.board.StdIOSetIOMode(dmx820.Port0, allPins, dmx820.ModePeriphOut)); err != nil {
		return err
	}
	if err := step("port 0 peripheral", s.board.StdIOSetPeriphMode(dmx820.Port0, allPins, dmx820.PeriphFIFO0)); err != nil {
		return err
	}
	s.log.Println("Configure FIFO 0")
	err := s.board.FifoSetConfig(0, dmx820.FifoConfig{
		InClock:  dmx820.ClockWritePort,
		OutClock: dmx820.ClockReadPort,
		DREQ:     dmx820.DREQWrite,
		Input:    dmx820.InputPCI})
	if err = step("configure FIFO 0", err); err != nil {
		return err
	}
	s.log.Println("Configure FIFO 1")
	err = s.board.FifoSetConfig(1, dmx820.FifoConfig{
		InClock:  dmx820.ClockPgm0,
		OutClock: dmx820.ClockReadPort,
		DREQ:     dmx820.DREQRead,
		Input:    dmx820.InputPort1})
	if err = step("configure FIFO 1", err); err != nil {
		return err
	}
	s.log.Printf("Configure Programmable Clock 0 -> %s / %d\n", s.opts.ClockMaster, s.opts.ClockPeriod)
	err = s.board.PgmClkSetConfig(loopClock, dmx820.PgmClkConfig{
		Master: s.opts.ClockMaster,
		Start:  dmx820.StartImmediate,
		Stop:   dmx820.StopNone,
		Period: s.opts.ClockPeriod})
	return step("configure programmable clock", err)
}

// arm resets the monitor and installs the callback of ch, bound to the new
// generation so a late callback of an earlier transfer cannot satisfy it
func (s *Session) arm(ch dmx820.DMAChannel) error {
	gen := s.mon.Reset()
	s.log.Printf("DMA CHANNEL %d Callback about to be Installed\n", int(ch))
	err := s.board.DMAInstallCallback(ch, func(ci dmx820.CallbackInfo) {
		s.mon.CompleteGeneration(gen, ci.Err())
	})
	if err != nil {
		return step(fmt.Sprintf("install %s callback", ch), err)
	}
	s.installed[ch] = true
	return nil
}

func (s *Session) disarm(ch dmx820.DMAChannel) error {
	delete(s.installed, ch)
	err := s.board.DMARemoveCallback(ch)
	if errors.Is(err, dmx820.ErrNoCallback) {
		return nil
	}
	return step(fmt.Sprintf("remove %s callback", ch), err)
}

// wait blocks on the monitor for at most the configured timeout
func (s *Session) wait(ctx context.Context, what string) error {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	s.log.Println("Waiting for DMA to generate callback")
	if s.opts.Observer != nil {
		s.opts.Observer.BeginWait(what)
	}
	err := s.mon.Wait(ctx)
	if s.opts.Observer != nil {
		s.opts.Observer.EndWait(what, err)
	}
	s.log.Println("DMA Wait has ended")
	return step("wait for "+what, err)
}

// teardown returns the board to a quiet state and frees the buffers.  Its
// failures are logged, never returned
func (s *Session) teardown() {
	s.log.Println("Disable Programmable Clock")
	if err := s.board.PgmClkSetMode(loopClock, dmx820.PgmClkDisabled); err != nil {
		s.log.Println("teardown:", err)
	}
	for _, ch := range []dmx820.DMAChannel{dmx820.DMAChannel0, dmx820.DMAChannel1} {
		if !s.installed[ch] {
			continue
		}
		s.log.Println("Remove Callback", ch)
		if err := s.disarm(ch); err != nil {
			s.log.Println("teardown:", err)
		}
	}
	s.log.Println("Disable FIFO")
	for fifo := 0; fifo < dmx820.NumFIFOs; fifo++ {
		if err := s.board.FifoSetEnable(fifo, false); err != nil {
			s.log.Println("teardown:", err)
		}
	}
	s.log.Println("Unloading allocated memory")
	s.sent.Free()
	s.recv.Free()
	s.sent, s.recv = nil, nil
}
