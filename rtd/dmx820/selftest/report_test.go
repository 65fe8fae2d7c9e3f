package selftest

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/snksoft/crc"
)

func ExampleRow() {
	r := Row{Index: 3, Received: 0xA44A, Sent: 0xA44A}
	fmt.Println(r)
	// Output: >> 3 >>> a44a < a44a >
}

func TestEvaluateMismatchAt42(t *testing.T) {
	sent := make([]uint16, 200)
	for i := range sent {
		sent[i] = uint16(i)
	}
	recv := make([]uint16, 204)
	copy(recv, sent)
	recv[42] = 0xFFFF

	r := Evaluate(sent, recv, 200)
	if r.Passed {
		t.Fatal("expected the report to fail")
	}
	if r.FailAt != 42 {
		t.Fatalf("expected failure at 42 got %d", r.FailAt)
	}
	if len(r.Neighbourhood) != DumpRows {
		t.Fatalf("expected %d rows got %d", DumpRows, len(r.Neighbourhood))
	}
	if r.Neighbourhood[0].Index != 42 {
		t.Errorf("expected the dump to start at 42, got %d", r.Neighbourhood[0].Index)
	}
	for _, row := range r.Neighbourhood {
		if row.Index < 42 {
			t.Errorf("dump holds index %d before the mismatch", row.Index)
		}
	}
	if r.SentCRC == r.ReceivedCRC {
		t.Error("expected different checksums for different buffers")
	}
}

func TestEvaluateDumpClampedAtEnd(t *testing.T) {
	sent := make([]uint16, 20)
	recv := make([]uint16, 20)
	recv[17] = 1
	r := Evaluate(sent, recv, 20)
	if len(r.Neighbourhood) != 3 {
		t.Errorf("expected 3 rows at the end of the buffer got %d", len(r.Neighbourhood))
	}
}

func TestEvaluatePass(t *testing.T) {
	sent := []uint16{1, 2, 3, 4, 5, 6}
	recv := []uint16{1, 2, 3, 4, 5, 6, 0, 0, 0, 0}
	r := Evaluate(sent, recv, 6)
	if !r.Passed || r.FailAt != -1 {
		t.Errorf("expected a pass, got passed=%v failAt=%d", r.Passed, r.FailAt)
	}
	if len(r.Head) != 6 {
		t.Errorf("expected 6 head rows got %d", len(r.Head))
	}
	if r.Neighbourhood != nil {
		t.Error("a passing report has no neighbourhood")
	}
	if r.SentCRC != r.ReceivedCRC {
		t.Error("expected equal checksums")
	}
}

func TestChecksumXMODEM(t *testing.T) {
	// samples are serialized little endian, "12345678"
	samples := []uint16{0x3231, 0x3433, 0x3635, 0x3837}
	expected := uint16(crc.CalculateCRC(crc.XMODEM, []byte("12345678")))
	if got := Checksum(samples); got != expected {
		t.Errorf("expected %04x got %04x", expected, got)
	}
	if Checksum(nil) != 0 {
		t.Errorf("expected the XMODEM checksum of nothing to be 0, got %04x", Checksum(nil))
	}
}

func TestPrintFailure(t *testing.T) {
	sent := make([]uint16, 50)
	recv := make([]uint16, 50)
	recv[42] = 0xBEEF
	r := Evaluate(sent, recv, 50)
	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()
	if !strings.Contains(out, "Data was wrong at index 42") {
		t.Errorf("missing failure line in %q", out)
	}
	if !strings.Contains(out, ">> 42 >>> beef < 0000 >") {
		t.Errorf("missing mismatch row in %q", out)
	}
	if strings.Contains(out, ">> 41 >>>") {
		t.Errorf("dump should not start before the mismatch: %q", out)
	}
}

func TestPrintSuccess(t *testing.T) {
	sent := []uint16{0xA11A, 0xA22A}
	r := Evaluate(sent, sent, 2)
	var buf bytes.Buffer
	r.Print(&buf)
	if !strings.Contains(buf.String(), "Successfully transferred 2 words") {
		t.Errorf("missing success line in %q", buf.String())
	}
}
