package selftest

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/snksoft/crc"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820"
	"github.jpl.nasa.gov/bdube/dmx820/util"
)

// DumpRows is the number of sample pairs printed at the head of the
// buffers and after a mismatch
const DumpRows = 10

var crcTable = crc.NewTable(crc.XMODEM)

// Row is one sample pair of the dump
type Row struct {
	Index    int    `json:"index"`
	Received uint16 `json:"received"`
	Sent     uint16 `json:"sent"`
}

func (r Row) String() string {
	return fmt.Sprintf(">> %d >>> %04x < %04x >", r.Index, r.Received, r.Sent)
}

// Report is the outcome of one loopback run
type Report struct {
	// Board is the board the run was made on
	Board dmx820.BoardInfo `json:"board"`

	// Size is the number of samples sent and received
	Size uint32 `json:"size"`

	// Passed is true when every received sample equals the one sent
	Passed bool `json:"passed"`

	// FailAt is the index of the first mismatch, -1 if none
	FailAt int `json:"failAt"`

	// Head is the first DumpRows sample pairs
	Head []Row `json:"head"`

	// Neighbourhood is up to DumpRows sample pairs starting at FailAt
	Neighbourhood []Row `json:"neighbourhood,omitempty"`

	// SentCRC and ReceivedCRC are CRC-16/XMODEM checksums of the first Size
	// samples of each buffer, little endian
	SentCRC     uint16 `json:"sentCRC"`
	ReceivedCRC uint16 `json:"receivedCRC"`

	// Seed seeded the random fill
	Seed int64 `json:"seed"`

	// Start is when the run began
	Start time.Time `json:"start"`

	// Duration is how long the run took, teardown excluded
	Duration time.Duration `json:"duration"`

	// Sent and Received are copies of the buffers, only kept on request
	Sent     []uint16 `json:"sent,omitempty"`
	Received []uint16 `json:"received,omitempty"`
}

// Checksum is the CRC-16/XMODEM of samples serialized little endian
func Checksum(samples []uint16) uint16 {
	buf := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, buf)
	return crcTable.CRC16(c)
}

// rows returns the sample pairs [from, from+n), clamped to both buffers
func rows(sent, received []uint16, from, n int) []Row {
	end := from + n
	end = util.ClampInt(end, from, len(sent))
	end = util.ClampInt(end, from, len(received))
	if from < 0 || from >= end {
		return nil
	}
	out := make([]Row, 0, end-from)
	for i := from; i < end; i++ {
		out = append(out, Row{Index: i, Received: received[i], Sent: sent[i]})
	}
	return out
}

// Evaluate compares the first size samples of the buffers and builds the
// data part of a report
func Evaluate(sent, received []uint16, size uint32) Report {
	n := int(size)
	r := Report{Size: size, FailAt: Compare(sent, received, n)}
	r.Passed = r.FailAt < 0
	r.Head = rows(sent, received, 0, util.ClampInt(DumpRows, 0, n))
	if !r.Passed {
		r.Neighbourhood = rows(sent, received, r.FailAt, DumpRows)
	}
	r.SentCRC = Checksum(sent[:util.ClampInt(n, 0, len(sent))])
	r.ReceivedCRC = Checksum(received[:util.ClampInt(n, 0, len(received))])
	return r
}

// Print writes the report the way the console test shows it
func (r Report) Print(w io.Writer) {
	for _, row := range r.Head {
		fmt.Fprintln(w, row)
	}
	if r.Passed {
		fmt.Fprintf(w, "Successfully transferred %d words from memory to the FIFO\n", r.Size)
	} else {
		fmt.Fprintf(w, "Failed to transfer all data. Data was wrong at index %d\n", r.FailAt)
		for _, row := range r.Neighbourhood {
			fmt.Fprintln(w, row)
		}
	}
	fmt.Fprintf(w, "CRC sent %04x received %04x, seed %d, %v\n", r.SentCRC, r.ReceivedCRC, r.Seed, r.Duration)
}
