package selftest

import (
	"errors"
	"fmt"
	"math/rand"
)

// DefaultReserved is the part of the FIFO left unused so that the transfer
// can never time out waiting for room
const DefaultReserved = 0x400

var (
	// ErrNoFIFO is generated when the board reports a FIFO size of zero
	ErrNoFIFO = errors.New("board reports no FIFO capacity")

	// ErrFIFOTooSmall is generated when the FIFO is smaller than the reserved
	// margin, or leaves nothing to transfer
	ErrFIFOTooSmall = errors.New("FIFO is smaller than the reserved margin")

	// Sentinels are written at the head of the send buffer so alignment can be
	// checked by eye in the sample dump
	Sentinels = [5]uint16{0xA11A, 0xA22A, 0xA33A, 0xA44A, 0xA55A}
)

// TransferSize is the number of samples moved in each direction for a FIFO
// of fifoSize samples, fifoSize - reserved.  It never underflows; a FIFO
// of exactly reserved samples gives a size of zero
func TransferSize(fifoSize, reserved uint32) (uint32, error) {
	if fifoSize == 0 {
		return 0, ErrNoFIFO
	}
	if fifoSize < reserved {
		return 0, fmt.Errorf("%w: FIFO holds %d samples, %d reserved", ErrFIFOTooSmall, fifoSize, reserved)
	}
	return fifoSize - reserved, nil
}

// Fill writes uniform random samples over the full 16 bit range into buf,
// then the sentinels over its first five samples
func Fill(buf []uint16, rng *rand.Rand) {
	for i := range buf {
		buf[i] = uint16(rng.Intn(0x10000))
	}
	copy(buf, Sentinels[:])
}

// Compare returns the first index below n where sent and received differ, or -1.
// n is clamped to the shorter of the two
func Compare(sent, received []uint16, n int) int {
	if n > len(sent) {
		n = len(sent)
	}
	if n > len(received) {
		n = len(received)
	}
	for i := 0; i < n; i++ {
		if received[i] != sent[i] {
			return i
		}
	}
	return -1
}
