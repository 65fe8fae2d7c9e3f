//go:build dmx820 && cgo

package dmx820

/*
#cgo LDFLAGS: -ldmx820
#cgo CFLAGS: -I/usr/local/include/dmx820
#include <stdint.h>
#include <stdlib.h>
#include "DMX820_Library.h"

int shim_open(int index, DMX820_Board_Handle *handle);
int shim_close(DMX820_Board_Handle handle);
uint32_t shim_fifo_size(DMX820_Board_Handle handle);
int shim_fifo_enable(DMX820_Board_Handle handle, int fifo, int enable);
int shim_fifo_config(DMX820_Board_Handle handle, int fifo, int in, int out, int dreq, int input);
int shim_fifo_get_data(DMX820_Board_Handle handle, int fifo, uint16_t *out);
int shim_io_mode(DMX820_Board_Handle handle, int port, uint16_t mask, int mode);
int shim_periph_mode(DMX820_Board_Handle handle, int port, uint16_t mask, int periph);
int shim_pgmclk_config(DMX820_Board_Handle handle, int clk, int master, uint32_t period);
int shim_pgmclk_mode(DMX820_Board_Handle handle, int clk, int continuous);
int shim_install_callback(DMX820_Board_Handle handle, int channel);
int shim_remove_callback(DMX820_Board_Handle handle, int channel);
int shim_request_transfer(DMX820_Board_Handle handle, int channel, int toBoard, int port, uint16_t *buf, uint32_t length, int notify);
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// maxProbe is the highest minor number Boards looks at
const maxProbe = 8

var (
	// the library calls back without user data, so callbacks are looked up
	// by channel.  Only one open board may have callbacks installed.
	cbMu       sync.Mutex
	cbRegistry = map[DMAChannel]Callback{}
)

//export goDMADone
func goDMADone(channel, result, success C.int) {
	ch := DMAChannel(channel)
	cbMu.Lock()
	cb := cbRegistry[ch]
	cbMu.Unlock()
	if cb == nil {
		return
	}
	rr := DMAResultOther
	if success != 0 {
		rr = DMAResultSuccess
	}
	cb(CallbackInfo{Channel: ch, Result: StatusCode(result), RequestResult: rr})
}

func cbool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

type hardware struct{}

// Hardware returns the driver backed by the vendor library
func Hardware() Driver {
	return hardware{}
}

// Boards probes minor numbers 0..7 and lists the boards that open.
// Boards already open elsewhere are not listed
func (hardware) Boards() ([]BoardInfo, error) {
	var out []BoardInfo
	for i := 0; i < maxProbe; i++ {
		var h C.DMX820_Board_Handle
		if C.shim_open(C.int(i), &h) != 0 {
			continue
		}
		out = append(out, BoardInfo{Index: i, Name: fmt.Sprintf("/dev/rtd-dmx820-%d", i), FIFOSize: uint32(C.shim_fifo_size(h))})
		C.shim_close(h)
	}
	if len(out) == 0 {
		return nil, ErrNoBoard
	}
	return out, nil
}

// Open opens the board with the given minor number
func (hardware) Open(index int) (Board, error) {
	var h C.DMX820_Board_Handle
	if err := enrich(StatusCode(C.shim_open(C.int(index), &h)), procOpen); err != nil {
		return nil, err
	}
	return &HWBoard{
		handle:    h,
		info:      BoardInfo{Index: index, Name: fmt.Sprintf("/dev/rtd-dmx820-%d", index), FIFOSize: uint32(C.shim_fifo_size(h))},
		installed: make(map[DMAChannel]bool),
	}, nil
}

// HWBoard is a board opened through the vendor library
type HWBoard struct {
	sync.Mutex

	handle    C.DMX820_Board_Handle
	info      BoardInfo
	closed    bool
	installed map[DMAChannel]bool
}

// Info returns the description of the board read at open
func (b *HWBoard) Info() BoardInfo {
	return b.info
}

// call runs fn with the lock held, unless the board is closed
func (b *HWBoard) call(proc string, fn func() C.int) error {
	b.Lock()
	defer b.Unlock()
	if b.closed {
		return ErrClosed
	}
	return enrich(StatusCode(fn()), proc)
}

func (b *HWBoard) FifoSetEnable(fifo int, enable bool) error {
	return b.call(procFifoEnable, func() C.int {
		return C.shim_fifo_enable(b.handle, C.int(fifo), cbool(enable))
	})
}

func (b *HWBoard) FifoSetConfig(fifo int, cfg FifoConfig) error {
	return b.call(procFifoConfig, func() C.int {
		return C.shim_fifo_config(b.handle, C.int(fifo), C.int(cfg.InClock), C.int(cfg.OutClock), C.int(cfg.DREQ), C.int(cfg.Input))
	})
}

func (b *HWBoard) FifoGetData(fifo int) (uint16, error) {
	var v C.uint16_t
	err := b.call(procFifoGetData, func() C.int {
		return C.shim_fifo_get_data(b.handle, C.int(fifo), &v)
	})
	return uint16(v), err
}

func (b *HWBoard) StdIOSetIOMode(port Port, mask uint16, mode IOMode) error {
	return b.call(procIOMode, func() C.int {
		return C.shim_io_mode(b.handle, C.int(port), C.uint16_t(mask), C.int(mode))
	})
}

func (b *HWBoard) StdIOSetPeriphMode(port Port, mask uint16, periph Periph) error {
	return b.call(procPeriphMode, func() C.int {
		return C.shim_periph_mode(b.handle, C.int(port), C.uint16_t(mask), C.int(periph))
	})
}

// PgmClkSetConfig configures a programmable clock.  The library is only
// driven with an immediate start and no stop trigger
func (b *HWBoard) PgmClkSetConfig(clk int, cfg PgmClkConfig) error {
	if cfg.Start != StartImmediate || cfg.Stop != StopNone {
		return enrich(statusInvalidParameter, procPgmClkConfig)
	}
	return b.call(procPgmClkConfig, func() C.int {
		return C.shim_pgmclk_config(b.handle, C.int(clk), C.int(cfg.Master), C.uint32_t(cfg.Period))
	})
}

func (b *HWBoard) PgmClkSetMode(clk int, mode PgmClkMode) error {
	return b.call(procPgmClkMode, func() C.int {
		return C.shim_pgmclk_mode(b.handle, C.int(clk), cbool(mode == PgmClkContinuous))
	})
}

// DMAInstallCallback installs cb as the completion callback of a channel
func (b *HWBoard) DMAInstallCallback(ch DMAChannel, cb Callback) error {
	cbMu.Lock()
	if _, ok := cbRegistry[ch]; ok {
		cbMu.Unlock()
		return enrich(statusDMAInUse, procInstallCB)
	}
	cbRegistry[ch] = cb
	cbMu.Unlock()
	err := b.call(procInstallCB, func() C.int {
		return C.shim_install_callback(b.handle, C.int(ch))
	})
	if err != nil {
		cbMu.Lock()
		delete(cbRegistry, ch)
		cbMu.Unlock()
		return err
	}
	b.Lock()
	b.installed[ch] = true
	b.Unlock()
	return nil
}

// DMARemoveCallback removes the completion callback of a channel
func (b *HWBoard) DMARemoveCallback(ch DMAChannel) error {
	err := b.call(procRemoveCB, func() C.int {
		return C.shim_remove_callback(b.handle, C.int(ch))
	})
	b.Lock()
	owned := b.installed[ch]
	delete(b.installed, ch)
	b.Unlock()
	if owned {
		cbMu.Lock()
		delete(cbRegistry, ch)
		cbMu.Unlock()
	}
	return err
}

func (b *HWBoard) DMARequestTransfer(t Transfer) error {
	if t.Buffer == nil || len(t.Buffer.Samples) == 0 || uint32(len(t.Buffer.Samples)) < t.Length {
		return enrich(statusInvalidParameter, procRequestXfer)
	}
	ptr := (*C.uint16_t)(unsafe.Pointer(&t.Buffer.Samples[0]))
	return b.call(procRequestXfer, func() C.int {
		return C.shim_request_transfer(b.handle, C.int(t.Channel), cbool(t.Op == OpBufferToBoard),
			C.int(t.Port), ptr, C.uint32_t(t.Length), cbool(t.Notify))
	})
}

// Alloc allocates n samples in C memory, which the driver may hold on to
// while a transfer is in flight
func (b *HWBoard) Alloc(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("allocating %d samples: %w", n, ErrOutOfMemory)
	}
	p := C.calloc(C.size_t(n), C.size_t(unsafe.Sizeof(uint16(0))))
	if p == nil {
		return nil, fmt.Errorf("allocating %d samples: %w", n, ErrOutOfMemory)
	}
	return &Buffer{
		Samples: unsafe.Slice((*uint16)(p), n),
		free:    func() { C.free(p) },
	}, nil
}

// Close removes any callbacks still installed and closes the board
func (b *HWBoard) Close() error {
	b.Lock()
	defer b.Unlock()
	if b.closed {
		return ErrClosed
	}
	for ch := range b.installed {
		C.shim_remove_callback(b.handle, C.int(ch))
		cbMu.Lock()
		delete(cbRegistry, ch)
		cbMu.Unlock()
	}
	b.installed = nil
	b.closed = true
	return enrich(StatusCode(C.shim_close(b.handle)), procClose)
}
