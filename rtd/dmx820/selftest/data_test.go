package selftest

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

func ExampleTransferSize() {
	size, err := TransferSize(0x2000, DefaultReserved)
	fmt.Printf("%#x %v\n", size, err)
	// Output: 0x1c00 <nil>
}

func TestTransferSizeNeverUnderflows(t *testing.T) {
	for _, fifo := range []uint32{1, 0x3FF} {
		if _, err := TransferSize(fifo, DefaultReserved); !errors.Is(err, ErrFIFOTooSmall) {
			t.Errorf("FIFO of %#x: expected ErrFIFOTooSmall got %v", fifo, err)
		}
	}
	if _, err := TransferSize(0, DefaultReserved); !errors.Is(err, ErrNoFIFO) {
		t.Errorf("expected ErrNoFIFO got %v", err)
	}
}

func TestTransferSizeIsFIFOLessMargin(t *testing.T) {
	for _, fifo := range []uint32{0x400, 0x401, 0x800, 0x2000, 0xFFFFFFFF} {
		size, err := TransferSize(fifo, DefaultReserved)
		if err != nil {
			t.Fatal(err)
		}
		if size != fifo-0x400 {
			t.Errorf("FIFO of %#x: expected %#x got %#x", fifo, fifo-0x400, size)
		}
	}
}

func TestFillSentinels(t *testing.T) {
	buf := make([]uint16, 64)
	Fill(buf, rand.New(rand.NewSource(1)))
	for i, v := range Sentinels {
		if buf[i] != v {
			t.Errorf("sample %d: expected %04x got %04x", i, v, buf[i])
		}
	}
}

func TestFillShortBuffer(t *testing.T) {
	buf := make([]uint16, 3)
	Fill(buf, rand.New(rand.NewSource(1)))
	if buf[2] != Sentinels[2] {
		t.Errorf("expected %04x got %04x", Sentinels[2], buf[2])
	}
}

func TestFillSpansRange(t *testing.T) {
	buf := make([]uint16, 1<<14)
	Fill(buf, rand.New(rand.NewSource(2)))
	var lo, hi bool
	for _, v := range buf[len(Sentinels):] {
		if v < 0x1000 {
			lo = true
		}
		if v > 0xF000 {
			hi = true
		}
	}
	if !lo || !hi {
		t.Error("expected the fill to reach both ends of the 16 bit range")
	}
}

func TestCompareEqual(t *testing.T) {
	a := []uint16{1, 2, 3}
	if idx := Compare(a, []uint16{1, 2, 3, 0}, 3); idx != -1 {
		t.Errorf("expected -1 got %d", idx)
	}
}

func TestCompareFindsFirst(t *testing.T) {
	sent := make([]uint16, 100)
	recv := make([]uint16, 104)
	recv[42] = 1
	recv[60] = 1
	if idx := Compare(sent, recv, 100); idx != 42 {
		t.Errorf("expected 42 got %d", idx)
	}
}

func TestCompareOnlyFirstN(t *testing.T) {
	sent := []uint16{1, 2, 3, 4}
	recv := []uint16{1, 2, 0, 0}
	if idx := Compare(sent, recv, 2); idx != -1 {
		t.Errorf("expected -1 got %d", idx)
	}
	if idx := Compare(sent, recv, 10); idx != 2 {
		t.Errorf("expected 2 got %d", idx)
	}
}
