package dmx820

import (
	"errors"
	"fmt"
	"strings"
)

// ClockSource is a clock used by a FIFO channel or a programmable clock
type ClockSource int

// DREQSource selects what raises a DMA request on a FIFO channel
type DREQSource int

// InputData selects where a FIFO channel takes its input data from
type InputData int

// Port is a standard I/O port
type Port int

// IOMode is the direction (or peripheral role) of a standard I/O port
type IOMode int

// Periph is a peripheral function that can drive a standard I/O port
type Periph int

// PgmClkMode is the run mode of a programmable clock
type PgmClkMode int

// PgmClkStart is a start trigger of a programmable clock
type PgmClkStart int

// PgmClkStop is a stop trigger of a programmable clock
type PgmClkStop int

// DMAChannel is one of the two DMA engines on the board
type DMAChannel int

// DMAOp is the direction of a DMA transfer
type DMAOp int

// RWPort is the PCI read/write port a DMA transfer moves data through
type RWPort int

// DMAResult is how a completed DMA request finished
type DMAResult int

// StatusCode is a status returned by the driver library
type StatusCode int

const (
	// ClockWritePort clocks the FIFO on every PCI write to its port
	ClockWritePort ClockSource = iota

	// ClockReadPort clocks the FIFO on every PCI read from its port
	ClockReadPort

	// Clock25MHz is the 25 MHz clock bus, the usual master of a programmable clock
	Clock25MHz

	// ClockPgm0 is programmable clock 0 on the clock bus
	ClockPgm0

	// ClockPgm1 is programmable clock 1 on the clock bus
	ClockPgm1

	// ClockPgm2 is programmable clock 2 on the clock bus
	ClockPgm2

	// ClockPgm3 is programmable clock 3 on the clock bus
	ClockPgm3
)

const (
	// DREQWrite requests DMA while the FIFO can be written (buffer to board)
	DREQWrite DREQSource = iota

	// DREQRead requests DMA while the FIFO can be read (board to buffer)
	DREQRead
)

const (
	// InputPCI fills the FIFO from PCI writes, i.e. host memory DMA
	InputPCI InputData = iota

	// InputPort0 fills the FIFO from the pins of standard I/O port 0
	InputPort0

	// InputPort1 fills the FIFO from the pins of standard I/O port 1
	InputPort1
)

const (
	// Port0 is standard I/O port 0
	Port0 Port = iota

	// Port1 is standard I/O port 1
	Port1

	// Port2 is standard I/O port 2
	Port2
)

const (
	// ModeInput makes the masked pins inputs
	ModeInput IOMode = iota

	// ModeOutput makes the masked pins software driven outputs
	ModeOutput

	// ModePeriphOut makes the masked pins outputs driven by a peripheral, see Periph
	ModePeriphOut
)

const (
	// PeriphFIFO0 drives a port from the output of FIFO channel 0
	PeriphFIFO0 Periph = iota

	// PeriphFIFO1 drives a port from the output of FIFO channel 1
	PeriphFIFO1
)

const (
	// PgmClkDisabled stops the clock
	PgmClkDisabled PgmClkMode = iota

	// PgmClkContinuous runs the clock until disabled or its stop trigger
	PgmClkContinuous
)

const (
	// StartImmediate starts the clock as soon as it is put in a run mode
	StartImmediate PgmClkStart = iota
)

const (
	// StopNone never stops the clock on its own
	StopNone PgmClkStop = iota
)

const (
	// DMAChannel0 is the first DMA engine
	DMAChannel0 DMAChannel = iota

	// DMAChannel1 is the second DMA engine
	DMAChannel1
)

const (
	// OpBufferToBoard moves samples from host memory to the board
	OpBufferToBoard DMAOp = iota

	// OpBoardToBuffer moves samples from the board into host memory
	OpBoardToBuffer
)

const (
	// FIFO0Port is the PCI read/write port of FIFO channel 0
	FIFO0Port RWPort = iota

	// FIFO1Port is the PCI read/write port of FIFO channel 1
	FIFO1Port
)

const (
	// DMAResultSuccess means every requested sample was moved
	DMAResultSuccess DMAResult = iota

	// DMAResultOther is any other end of a request (aborted, timed out, ...)
	DMAResultOther
)

const (
	// StatusOK is the "no error" status
	StatusOK StatusCode = 0

	// NumFIFOs is the number of FIFO channels on a DMX820
	NumFIFOs = 2

	// NumPgmClks is the number of programmable clocks on a DMX820
	NumPgmClks = 4

	// PortWidth is the number of pins on a standard I/O port
	PortWidth = 16
)

var (
	// ErrNoBoard is generated when no board exists at the requested index
	ErrNoBoard = errors.New("no DMX820 board at this index")

	// ErrNoDriver is generated when the program was built without the vendor library
	ErrNoDriver = errors.New("DMX820 driver library not linked, rebuild with -tags dmx820")

	// ErrOutOfMemory is generated when a DMA buffer cannot be allocated
	ErrOutOfMemory = errors.New("out of memory allocating DMA buffer")

	// ErrNoCallback is generated when removing a DMA callback that is not installed
	ErrNoCallback = errors.New("no DMA callback installed on channel")

	// ErrTransferIncomplete is generated when the driver reports a DMA request
	// finished without moving all of its samples
	ErrTransferIncomplete = errors.New("DMA request did not complete successfully")

	// ErrClosed is generated when a closed board is used
	ErrClosed = errors.New("board is closed")

	// StatusCodes is the status codes returned by the driver library
	// copied here to avoid C types as keys
	StatusCodes = map[StatusCode]string{
		0: "NO ERROR",
		1: "INVALID PARAMETER",  // argument out of range for this board
		2: "BOARD NOT OPEN",     // handle is stale or was never opened
		3: "BOARD NOT FOUND",    // no board at that minor number
		4: "DMA IN USE",         // channel already has a request or callback
		5: "DMA NOT INSTALLED",  // no callback installed on the channel
		6: "FIFO OVERFLOW",      // the FIFO could not accept the data
		7: "TIMEOUT",            // driver level timeout
		8: "OUT OF MEMORY",      // kernel buffer allocation failed
		9: "HARDWARE NOT READY", // board did not respond
	}
)

// vendor status codes with special meaning in Go
const (
	statusInvalidParameter StatusCode = 1
	statusBoardNotOpen     StatusCode = 2
	statusBoardNotFound    StatusCode = 3
	statusDMAInUse         StatusCode = 4
	statusNoCallback       StatusCode = 5
	statusFIFOOverflow     StatusCode = 6
	statusTimeout          StatusCode = 7
	statusOutOfMemory      StatusCode = 8
	statusNotReady         StatusCode = 9
)

// Error is a non-OK status returned by a call into the driver
type Error struct {
	// Code is the status code returned by the driver
	Code StatusCode

	// Procedure is the driver call that returned Code
	Procedure string
}

func (e *Error) Error() string {
	name, ok := StatusCodes[e.Code]
	if !ok {
		name = "UNKNOWN ERROR"
	}
	return fmt.Sprintf("%d: %s encountered at call to %s", e.Code, name, e.Procedure)
}

// Unwrap maps the statuses that have a Go sentinel onto it
func (e *Error) Unwrap() error {
	switch e.Code {
	case statusBoardNotFound:
		return ErrNoBoard
	case statusNoCallback:
		return ErrNoCallback
	case statusOutOfMemory:
		return ErrOutOfMemory
	default:
		return nil
	}
}

// enrich returns a new error and decorates with the procedure called
// if the status is OK, nil is returned
func enrich(code StatusCode, procedure string) error {
	if code == StatusOK {
		return nil
	}
	return &Error{Code: code, Procedure: procedure}
}

// ValidateClockSource ensures that a clock source is valid
// s is a member of {write-port, read-port, 25mhz, pgmclk0, pgmclk1, pgmclk2, pgmclk3}
func ValidateClockSource(s string) (ClockSource, error) {
	switch strings.ToLower(s) {
	case "write-port":
		return ClockWritePort, nil
	case "read-port":
		return ClockReadPort, nil
	case "25mhz":
		return Clock25MHz, nil
	case "pgmclk0":
		return ClockPgm0, nil
	case "pgmclk1":
		return ClockPgm1, nil
	case "pgmclk2":
		return ClockPgm2, nil
	case "pgmclk3":
		return ClockPgm3, nil
	default:
		return -1, errors.New("clock source must be a member of {write-port, read-port, 25mhz, pgmclk0, pgmclk1, pgmclk2, pgmclk3}")
	}
}

// FormatClockSource converts a clock source to its string representation
func FormatClockSource(c ClockSource) string {
	switch c {
	case ClockWritePort:
		return "write-port"
	case ClockReadPort:
		return "read-port"
	case Clock25MHz:
		return "25mhz"
	case ClockPgm0:
		return "pgmclk0"
	case ClockPgm1:
		return "pgmclk1"
	case ClockPgm2:
		return "pgmclk2"
	case ClockPgm3:
		return "pgmclk3"
	default:
		return ""
	}
}

func (c ClockSource) String() string { return FormatClockSource(c) }

// PgmClkIndex returns the index of the programmable clock c refers to,
// or -1 if c is not a programmable clock
func (c ClockSource) PgmClkIndex() int {
	if c >= ClockPgm0 && c <= ClockPgm3 {
		return int(c - ClockPgm0)
	}
	return -1
}

// ValidatePort ensures that a port is valid
// s is a member of {port0, port1, port2}
func ValidatePort(s string) (Port, error) {
	switch strings.ToLower(s) {
	case "port0":
		return Port0, nil
	case "port1":
		return Port1, nil
	case "port2":
		return Port2, nil
	default:
		return -1, errors.New("port must be a member of {port0, port1, port2}")
	}
}

// FormatPort converts a port to its string representation
func FormatPort(p Port) string {
	switch p {
	case Port0:
		return "port0"
	case Port1:
		return "port1"
	case Port2:
		return "port2"
	default:
		return ""
	}
}

func (p Port) String() string { return FormatPort(p) }

// ValidateIOMode ensures that an I/O mode is valid
// s is a member of {input, output, periph-out}
func ValidateIOMode(s string) (IOMode, error) {
	switch strings.ToLower(s) {
	case "input":
		return ModeInput, nil
	case "output":
		return ModeOutput, nil
	case "periph-out":
		return ModePeriphOut, nil
	default:
		return -1, errors.New("I/O mode must be a member of {input, output, periph-out}")
	}
}

// FormatIOMode converts an I/O mode to its string representation
func FormatIOMode(m IOMode) string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModePeriphOut:
		return "periph-out"
	default:
		return ""
	}
}

func (m IOMode) String() string { return FormatIOMode(m) }

// FormatPgmClkMode converts a programmable clock mode to a string, {disabled, continuous}
func FormatPgmClkMode(m PgmClkMode) string {
	switch m {
	case PgmClkDisabled:
		return "disabled"
	case PgmClkContinuous:
		return "continuous"
	default:
		return ""
	}
}

func (m PgmClkMode) String() string { return FormatPgmClkMode(m) }

func (ch DMAChannel) String() string {
	return fmt.Sprintf("DMA%d", int(ch))
}

// FormatDMAOp converts a DMA direction to a string
func FormatDMAOp(op DMAOp) string {
	switch op {
	case OpBufferToBoard:
		return "buffer-to-board"
	case OpBoardToBuffer:
		return "board-to-buffer"
	default:
		return ""
	}
}

func (op DMAOp) String() string { return FormatDMAOp(op) }

// FIFO returns the FIFO channel behind a read/write port
func (p RWPort) FIFO() int {
	return int(p)
}
