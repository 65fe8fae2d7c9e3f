package dmx820

import "fmt"

// BoardInfo describes an installed board
type BoardInfo struct {
	// Index is the minor number of the board, as passed to Open
	Index int `json:"index"`

	// Name is the device name reported by the driver
	Name string `json:"name"`

	// FIFOSize is the depth of each FIFO channel, in samples
	FIFOSize uint32 `json:"fifoSize"`
}

func (b BoardInfo) String() string {
	return fmt.Sprintf("board %d (%s), FIFO size %d samples", b.Index, b.Name, b.FIFOSize)
}

// FifoConfig is the configuration of one FIFO channel
type FifoConfig struct {
	// InClock clocks data into the FIFO
	InClock ClockSource

	// OutClock clocks data out of the FIFO
	OutClock ClockSource

	// DREQ is the DMA request source
	DREQ DREQSource

	// Input is where data entering the FIFO comes from
	Input InputData
}

// PgmClkConfig is the configuration of a programmable clock
type PgmClkConfig struct {
	// Master is the clock divided down to produce the output
	Master ClockSource

	// Start is the start trigger
	Start PgmClkStart

	// Stop is the stop trigger
	Stop PgmClkStop

	// Period is the divisor applied to Master
	Period uint32
}

// Buffer is a block of sample memory a DMA engine may read or write
// while a transfer is in flight.  Free must be called exactly once.
type Buffer struct {
	// Samples is the memory, len(Samples) is the size of the buffer
	Samples []uint16

	free func()
}

// Free releases the memory behind the buffer.  Calling Free on a nil
// buffer or calling it twice does nothing.
func (b *Buffer) Free() {
	if b == nil || b.free == nil {
		return
	}
	b.free()
	b.free = nil
	b.Samples = nil
}

// Transfer is a request for one DMA transfer
type Transfer struct {
	// Channel is the DMA engine to use
	Channel DMAChannel

	// Op is the direction of the transfer
	Op DMAOp

	// Port is the FIFO port on the board side of the transfer
	Port RWPort

	// Buffer is the host side of the transfer
	Buffer *Buffer

	// Length is the number of samples to move
	Length uint32

	// Notify requests a callback when the transfer ends
	Notify bool
}

// CallbackInfo is what the driver hands a DMA callback
type CallbackInfo struct {
	// Channel is the DMA channel that finished
	Channel DMAChannel

	// Result is the overall status of the request
	Result StatusCode

	// RequestResult is how the request ended, only meaningful if Result is OK
	RequestResult DMAResult
}

// Err converts the callback info into an error, nil if the transfer succeeded
func (ci CallbackInfo) Err() error {
	if err := enrich(ci.Result, fmt.Sprintf("DMA callback (%s)", ci.Channel)); err != nil {
		return err
	}
	if ci.RequestResult != DMAResultSuccess {
		return fmt.Errorf("%s: %w", ci.Channel, ErrTransferIncomplete)
	}
	return nil
}

// Callback is called by the driver, on its own thread, when a DMA request ends
type Callback func(CallbackInfo)

// Board is an opened DMX820.  Each method is one call into the driver library.
type Board interface {
	// Info returns the description of the board read at open
	Info() BoardInfo

	// FifoSetEnable enables or disables a FIFO channel.
	// disabling an already disabled channel is not an error
	FifoSetEnable(fifo int, enable bool) error

	// FifoSetConfig configures a FIFO channel
	FifoSetConfig(fifo int, cfg FifoConfig) error

	// FifoGetData reads one sample from a FIFO channel through its PCI port
	FifoGetData(fifo int) (uint16, error)

	// StdIOSetIOMode sets the direction of the masked pins of a port
	StdIOSetIOMode(port Port, mask uint16, mode IOMode) error

	// StdIOSetPeriphMode binds the masked pins of a port to a peripheral
	StdIOSetPeriphMode(port Port, mask uint16, periph Periph) error

	// PgmClkSetConfig configures a programmable clock
	PgmClkSetConfig(clk int, cfg PgmClkConfig) error

	// PgmClkSetMode starts or stops a programmable clock
	PgmClkSetMode(clk int, mode PgmClkMode) error

	// DMAInstallCallback registers the completion callback of a DMA channel
	DMAInstallCallback(ch DMAChannel, cb Callback) error

	// DMARemoveCallback removes the completion callback of a DMA channel.
	// The error wraps ErrNoCallback if none was installed
	DMARemoveCallback(ch DMAChannel) error

	// DMARequestTransfer queues a transfer.  It returns once queued,
	// completion is signaled through the channel's callback
	DMARequestTransfer(t Transfer) error

	// Alloc allocates a buffer of n samples that DMA may use.
	// The error wraps ErrOutOfMemory if it cannot be allocated
	Alloc(n int) (*Buffer, error)

	// Close releases the board
	Close() error
}

// Driver finds and opens boards
type Driver interface {
	// Boards lists the installed boards
	Boards() ([]BoardInfo, error)

	// Open opens the board at index
	Open(index int) (Board, error)
}
