package dmx820

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// procedure names, shared with the cgo binding so errors read the same
const (
	procOpen         = "DMX820_General_Open_Board"
	procClose        = "DMX820_General_Close_Board"
	procFifoEnable   = "DMX820_FifoCh_Set_Enable"
	procFifoConfig   = "DMX820_FifoCh_Set_Config"
	procFifoGetData  = "DMX820_FifoCh_Get_Data"
	procIOMode       = "DMX820_StdIO_Set_IO_Mode"
	procPeriphMode   = "DMX820_StdIO_Set_Periph_Mode"
	procPgmClkConfig = "DMX820_PgmClk_Set_Config"
	procPgmClkMode   = "DMX820_PgmClk_Set_Mode"
	procInstallCB    = "DMX820_DMA_Install_Callback"
	procRemoveCB     = "DMX820_DMA_Remove_Callback"
	procRequestXfer  = "DMX820_DMA_Request_Transfer"
)

const (
	simDefaultFIFO   = 0x2000
	simDefaultBoards = 1
	simTicksPerChunk = 64
	simIdleSleep     = time.Millisecond
	simPortCount     = 3
	simBoardName     = "dmx820-sim"
)

// SimConfig configures a simulated board, and the faults it injects
type SimConfig struct {
	// Boards is the number of boards the simulated driver reports, default 1
	Boards int

	// FIFOSize is the depth of each FIFO, default 0x2000 samples
	FIFOSize uint32

	// ClockRate paces the programmable clocks in Hz; 0 runs them as fast as possible
	ClockRate float64

	// Unwired removes the loopback wire from port 0 to port 1
	Unwired bool

	// MaxAlloc is the largest buffer, in samples, Alloc will hand out; 0 is unlimited
	MaxAlloc int

	// OpenBusy makes the first OpenBusy calls to Open fail as if the board were busy
	OpenBusy int

	// FailCalls makes the named driver procedure return the status instead of OK
	FailCalls map[string]StatusCode

	// CallbackResult replaces the result the callback of a DMA channel reports
	CallbackResult map[DMAChannel]StatusCode

	// CallbackTwice delivers every DMA completion twice
	CallbackTwice bool

	// DropCallback never delivers the completion of a DMA channel
	DropCallback map[DMAChannel]bool

	// CorruptAt is the index of a looped back sample to corrupt, used only if CorruptMask != 0
	CorruptAt int

	// CorruptMask is XORed into the sample at CorruptAt as it is latched
	CorruptMask uint16
}

// Sim is a Driver for simulated boards, with port 0 wired back to port 1
type Sim struct {
	sync.Mutex
	cfg      SimConfig
	open     map[int]*SimBoard
	busyLeft int
}

// NewSim returns a new simulated driver
func NewSim(cfg SimConfig) *Sim {
	if cfg.Boards <= 0 {
		cfg.Boards = simDefaultBoards
	}
	if cfg.FIFOSize == 0 {
		cfg.FIFOSize = simDefaultFIFO
	}
	return &Sim{cfg: cfg, open: make(map[int]*SimBoard), busyLeft: cfg.OpenBusy}
}

// Boards lists the simulated boards
func (s *Sim) Boards() ([]BoardInfo, error) {
	out := make([]BoardInfo, s.cfg.Boards)
	for i := range out {
		out[i] = s.info(i)
	}
	return out, nil
}

func (s *Sim) info(index int) BoardInfo {
	return BoardInfo{Index: index, Name: fmt.Sprintf("%s%d", simBoardName, index), FIFOSize: s.cfg.FIFOSize}
}

// Open opens a simulated board.  A board can only be open once at a time
func (s *Sim) Open(index int) (Board, error) {
	s.Lock()
	defer s.Unlock()
	if index < 0 || index >= s.cfg.Boards {
		return nil, enrich(statusBoardNotFound, procOpen)
	}
	if code := s.cfg.FailCalls[procOpen]; code != StatusOK {
		return nil, enrich(code, procOpen)
	}
	if s.busyLeft > 0 {
		s.busyLeft--
		return nil, enrich(statusNotReady, procOpen)
	}
	if _, ok := s.open[index]; ok {
		return nil, enrich(statusNotReady, procOpen)
	}
	b := &SimBoard{
		drv:       s,
		info:      s.info(index),
		cfg:       s.cfg,
		callbacks: make(map[DMAChannel]Callback),
		active:    make(map[DMAChannel]*simXfer),
	}
	for i := range b.clocks {
		b.clocks[i].done = closedChan()
	}
	s.open[index] = b
	return b, nil
}

func (s *Sim) release(index int) {
	s.Lock()
	defer s.Unlock()
	delete(s.open, index)
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

type simFIFO struct {
	cfg     FifoConfig
	enabled bool
	data    []uint16
	latched int
	overrun bool
}

type simClock struct {
	cfg    PgmClkConfig
	mode   PgmClkMode
	cancel context.CancelFunc
	done   chan struct{}
}

type simXfer struct {
	t       Transfer
	buf     *Buffer
	samples []uint16
	moved   uint32
}

// SimBoard is an open simulated board.  Besides Board it exposes a few
// inspection methods for tests.
type SimBoard struct {
	mu sync.Mutex

	drv    *Sim
	info   BoardInfo
	cfg    SimConfig
	closed bool

	fifos  [NumFIFOs]simFIFO
	clocks [NumPgmClks]simClock

	// per port state, masks are treated as covering the whole port
	ioMode    [simPortCount]IOMode
	periph    [simPortCount]Periph
	periphSet [simPortCount]bool
	pins      [simPortCount]uint16

	callbacks map[DMAChannel]Callback
	active    map[DMAChannel]*simXfer
	requests  []Transfer
	allocated int

	wg sync.WaitGroup
}

// Info returns the description of the board
func (b *SimBoard) Info() BoardInfo {
	return b.info
}

// check returns an error if the board is closed or the procedure has a fault
// injected.  b.mu must be held
func (b *SimBoard) check(proc string) error {
	if b.closed {
		return fmt.Errorf("%w: %v", ErrClosed, enrich(statusBoardNotOpen, proc))
	}
	return enrich(b.cfg.FailCalls[proc], proc)
}

func validFIFO(fifo int, proc string) error {
	if fifo < 0 || fifo >= NumFIFOs {
		return enrich(statusInvalidParameter, proc)
	}
	return nil
}

// FifoSetEnable enables or disables a FIFO.  Enabling a disabled FIFO empties it
func (b *SimBoard) FifoSetEnable(fifo int, enable bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(procFifoEnable); err != nil {
		return err
	}
	if err := validFIFO(fifo, procFifoEnable); err != nil {
		return err
	}
	f := &b.fifos[fifo]
	if enable && !f.enabled {
		f.data = f.data[:0]
		f.latched = 0
		f.overrun = false
	}
	if !enable {
		// pending reads from a disabled FIFO are aborted without a callback
		for ch, x := range b.active {
			if x.t.Port.FIFO() == fifo {
				delete(b.active, ch)
			}
		}
	}
	f.enabled = enable
	return nil
}

// FifoSetConfig configures a FIFO.  The contents survive reconfiguration
func (b *SimBoard) FifoSetConfig(fifo int, cfg FifoConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(procFifoConfig); err != nil {
		return err
	}
	if err := validFIFO(fifo, procFifoConfig); err != nil {
		return err
	}
	b.fifos[fifo].cfg = cfg
	return nil
}

// FifoGetData clocks one sample out of a FIFO whose output clock is its read port
func (b *SimBoard) FifoGetData(fifo int) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(procFifoGetData); err != nil {
		return 0, err
	}
	if err := validFIFO(fifo, procFifoGetData); err != nil {
		return 0, err
	}
	f := &b.fifos[fifo]
	if !f.enabled || f.cfg.OutClock != ClockReadPort {
		return 0, enrich(statusInvalidParameter, procFifoGetData)
	}
	if len(f.data) == 0 {
		return 0, enrich(statusTimeout, procFifoGetData)
	}
	v := b.shift(fifo)
	return v, nil
}

// shift pops the head of a FIFO onto any port it drives.  b.mu must be held
// and the FIFO must not be empty
func (b *SimBoard) shift(fifo int) uint16 {
	f := &b.fifos[fifo]
	v := f.data[0]
	f.data = f.data[1:]
	for p := 0; p < simPortCount; p++ {
		if b.ioMode[p] == ModePeriphOut && b.periphSet[p] && int(b.periph[p]) == fifo {
			b.pins[p] = v
		}
	}
	return v
}

// portIn is what a FIFO sees on the pins of a port.  b.mu must be held
func (b *SimBoard) portIn(p Port) uint16 {
	if p == Port1 && !b.cfg.Unwired && b.ioMode[Port1] == ModeInput {
		return b.pins[Port0]
	}
	return b.pins[p]
}

func validPort(p Port, proc string) error {
	if p < 0 || int(p) >= simPortCount {
		return enrich(statusInvalidParameter, proc)
	}
	return nil
}

// StdIOSetIOMode sets the mode of a port
func (b *SimBoard) StdIOSetIOMode(port Port, mask uint16, mode IOMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(procIOMode); err != nil {
		return err
	}
	if err := validPort(port, procIOMode); err != nil {
		return err
	}
	if mask != 0 {
		b.ioMode[port] = mode
	}
	return nil
}

// StdIOSetPeriphMode binds a port to a peripheral
func (b *SimBoard) StdIOSetPeriphMode(port Port, mask uint16, periph Periph) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(procPeriphMode); err != nil {
		return err
	}
	if err := validPort(port, procPeriphMode); err != nil {
		return err
	}
	if mask != 0 {
		b.periph[port] = periph
		b.periphSet[port] = true
	}
	return nil
}

// PgmClkSetConfig configures a programmable clock
func (b *SimBoard) PgmClkSetConfig(clk int, cfg PgmClkConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(procPgmClkConfig); err != nil {
		return err
	}
	if clk < 0 || clk >= NumPgmClks {
		return enrich(statusInvalidParameter, procPgmClkConfig)
	}
	b.clocks[clk].cfg = cfg
	return nil
}

// PgmClkSetMode starts or stops a programmable clock.  Stopping returns
// after the last tick has been processed
func (b *SimBoard) PgmClkSetMode(clk int, mode PgmClkMode) error {
	b.mu.Lock()
	if err := b.check(procPgmClkMode); err != nil {
		b.mu.Unlock()
		return err
	}
	if clk < 0 || clk >= NumPgmClks {
		b.mu.Unlock()
		return enrich(statusInvalidParameter, procPgmClkMode)
	}
	c := &b.clocks[clk]
	c.mode = mode
	switch mode {
	case PgmClkContinuous:
		if c.cancel == nil {
			ctx, cancel := context.WithCancel(context.Background())
			c.cancel = cancel
			c.done = make(chan struct{})
			b.wg.Add(1)
			go b.runClock(ctx, clk, c.done)
		}
		b.mu.Unlock()
	default:
		cancel, done := c.cancel, c.done
		c.cancel = nil
		b.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		<-done
	}
	return nil
}

// runClock is the driver thread of a programmable clock
func (b *SimBoard) runClock(ctx context.Context, clk int, done chan struct{}) {
	defer b.wg.Done()
	defer close(done)
	chunk := simTicksPerChunk
	lim := rate.NewLimiter(rate.Inf, 0)
	if b.cfg.ClockRate > 0 {
		if b.cfg.ClockRate < float64(chunk) {
			chunk = 1
		}
		lim = rate.NewLimiter(rate.Limit(b.cfg.ClockRate), chunk)
	}
	for {
		if err := lim.WaitN(ctx, chunk); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		fire, busy := b.tick(clk, chunk)
		for _, f := range fire {
			f()
		}
		if !busy {
			select {
			case <-ctx.Done():
				return
			case <-time.After(simIdleSleep):
			}
		}
	}
}

// tick advances a programmable clock n times.  It returns the callbacks to
// deliver, and false if nothing on the board is waiting on this clock
func (b *SimBoard) tick(clk, n int) ([]func(), bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := ClockPgm0 + ClockSource(clk)
	busy := len(b.active) > 0
	for i := 0; i < n; i++ {
		// inputs latch on the edge, before outputs change
		for idx := range b.fifos {
			f := &b.fifos[idx]
			if !f.enabled || f.cfg.InClock != src {
				continue
			}
			var v uint16
			switch f.cfg.Input {
			case InputPort0:
				v = b.portIn(Port0)
			case InputPort1:
				v = b.portIn(Port1)
			default:
				continue
			}
			if b.cfg.CorruptMask != 0 && f.latched == b.cfg.CorruptAt {
				v ^= b.cfg.CorruptMask
			}
			f.latched++
			if uint32(len(f.data)) >= b.info.FIFOSize {
				f.overrun = true
				continue
			}
			f.data = append(f.data, v)
		}
		for idx := range b.fifos {
			f := &b.fifos[idx]
			if f.enabled && f.cfg.OutClock == src && len(f.data) > 0 {
				b.shift(idx)
			}
		}
	}
	return b.pump(), busy
}

// pump moves samples from FIFOs into the buffers of pending board to buffer
// transfers.  b.mu must be held
func (b *SimBoard) pump() []func() {
	var fire []func()
	for ch, x := range b.active {
		f := &b.fifos[x.t.Port.FIFO()]
		for x.moved < x.t.Length && len(f.data) > 0 {
			x.samples[x.moved] = f.data[0]
			f.data = f.data[1:]
			x.moved++
		}
		if x.moved == x.t.Length {
			delete(b.active, ch)
			fire = append(fire, b.completion(x.t, StatusOK, DMAResultSuccess)...)
		}
	}
	return fire
}

// completion builds the deliveries of a finished transfer.  b.mu must be held
func (b *SimBoard) completion(t Transfer, result StatusCode, rr DMAResult) []func() {
	cb, ok := b.callbacks[t.Channel]
	if !ok || !t.Notify || b.cfg.DropCallback[t.Channel] {
		return nil
	}
	if code := b.cfg.CallbackResult[t.Channel]; code != StatusOK {
		result = code
	}
	info := CallbackInfo{Channel: t.Channel, Result: result, RequestResult: rr}
	fire := []func(){func() { cb(info) }}
	if b.cfg.CallbackTwice {
		fire = append(fire, fire[0])
	}
	return fire
}

// DMAInstallCallback registers a completion callback
func (b *SimBoard) DMAInstallCallback(ch DMAChannel, cb Callback) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(procInstallCB); err != nil {
		return err
	}
	if ch != DMAChannel0 && ch != DMAChannel1 || cb == nil {
		return enrich(statusInvalidParameter, procInstallCB)
	}
	if _, ok := b.callbacks[ch]; ok {
		return enrich(statusDMAInUse, procInstallCB)
	}
	b.callbacks[ch] = cb
	return nil
}

// DMARemoveCallback removes a completion callback
func (b *SimBoard) DMARemoveCallback(ch DMAChannel) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(procRemoveCB); err != nil {
		return err
	}
	if _, ok := b.callbacks[ch]; !ok {
		return enrich(statusNoCallback, procRemoveCB)
	}
	delete(b.callbacks, ch)
	return nil
}

// DMARequestTransfer queues a transfer.  The transfer runs, and its
// completion is delivered, on a goroutine owned by the board
func (b *SimBoard) DMARequestTransfer(t Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(procRequestXfer); err != nil {
		return err
	}
	if t.Channel != DMAChannel0 && t.Channel != DMAChannel1 {
		return enrich(statusInvalidParameter, procRequestXfer)
	}
	fifo := t.Port.FIFO()
	if fifo < 0 || fifo >= NumFIFOs || t.Buffer == nil || uint32(len(t.Buffer.Samples)) < t.Length {
		return enrich(statusInvalidParameter, procRequestXfer)
	}
	if _, ok := b.active[t.Channel]; ok {
		return enrich(statusDMAInUse, procRequestXfer)
	}
	f := &b.fifos[fifo]
	if !f.enabled {
		return enrich(statusInvalidParameter, procRequestXfer)
	}
	samples := t.Buffer.Samples[:t.Length]
	switch t.Op {
	case OpBufferToBoard:
		if f.cfg.Input != InputPCI || f.cfg.DREQ != DREQWrite {
			return enrich(statusInvalidParameter, procRequestXfer)
		}
		b.requests = append(b.requests, t)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.mu.Lock()
			f := &b.fifos[fifo]
			result, rr := StatusOK, DMAResultSuccess
			for _, v := range samples {
				if uint32(len(f.data)) >= b.info.FIFOSize {
					result, rr = statusFIFOOverflow, DMAResultOther
					break
				}
				f.data = append(f.data, v)
			}
			fire := b.completion(t, result, rr)
			b.mu.Unlock()
			for _, fn := range fire {
				fn()
			}
		}()
	case OpBoardToBuffer:
		if f.cfg.DREQ != DREQRead {
			return enrich(statusInvalidParameter, procRequestXfer)
		}
		b.requests = append(b.requests, t)
		b.active[t.Channel] = &simXfer{t: t, buf: t.Buffer, samples: samples}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.mu.Lock()
			fire := b.pump()
			b.mu.Unlock()
			for _, fn := range fire {
				fn()
			}
		}()
	default:
		return enrich(statusInvalidParameter, procRequestXfer)
	}
	return nil
}

// Alloc allocates a buffer of n samples
func (b *SimBoard) Alloc(n int) (*Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if n < 0 || (b.cfg.MaxAlloc > 0 && n > b.cfg.MaxAlloc) {
		return nil, fmt.Errorf("allocating %d samples: %w", n, ErrOutOfMemory)
	}
	b.allocated++
	buf := &Buffer{Samples: make([]uint16, n)}
	buf.free = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allocated--
		for ch, x := range b.active {
			if x.buf == buf {
				delete(b.active, ch)
			}
		}
	}
	return buf, nil
}

// Close stops the clocks, waits for pending deliveries and releases the board
func (b *SimBoard) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.closed = true
	for i := range b.clocks {
		if b.clocks[i].cancel != nil {
			b.clocks[i].cancel()
			b.clocks[i].cancel = nil
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
	b.drv.release(b.info.Index)
	return nil
}

// Requests returns the transfers requested so far
func (b *SimBoard) Requests() []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Transfer, len(b.requests))
	copy(out, b.requests)
	return out
}

// FifoEnabled returns true if a FIFO is enabled
func (b *SimBoard) FifoEnabled(fifo int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fifos[fifo].enabled
}

// CallbackInstalled returns true if a DMA channel has a callback
func (b *SimBoard) CallbackInstalled(ch DMAChannel) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.callbacks[ch]
	return ok
}

// ClockMode returns the mode of a programmable clock
func (b *SimBoard) ClockMode(clk int) PgmClkMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clocks[clk].mode
}

// Outstanding returns the number of buffers allocated and not yet freed
func (b *SimBoard) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocated
}

// Closed returns true once the board has been closed
func (b *SimBoard) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
