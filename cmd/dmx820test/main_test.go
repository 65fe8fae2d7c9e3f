package main

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820/selftest"
)

var twoBoards = []dmx820.BoardInfo{
	{Index: 0, Name: "sim-dmx820-0", FIFOSize: 0x2000},
	{Index: 2, Name: "sim-dmx820-2", FIFOSize: 0x2000},
}

func TestSelectBoardReprompts(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("x\n1\n2\n"))
	var out bytes.Buffer
	n, err := selectBoard(in, &out, twoBoards)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected board 2 got %d", n)
	}
	txt := out.String()
	for _, want := range []string{"[0,2]", "not a number", "no board 1"} {
		if !strings.Contains(txt, want) {
			t.Errorf("expected %q in the prompt output, got %q", want, txt)
		}
	}
}

func TestSelectBoardNone(t *testing.T) {
	_, err := selectBoard(bufio.NewReader(strings.NewReader("0\n")), &bytes.Buffer{}, nil)
	if !errors.Is(err, dmx820.ErrNoBoard) {
		t.Errorf("expected ErrNoBoard got %v", err)
	}
}

func TestSelectBoardEOF(t *testing.T) {
	_, err := selectBoard(bufio.NewReader(strings.NewReader("")), &bytes.Buffer{}, twoBoards)
	if err == nil {
		t.Error("expected an error at end of input")
	}
}

func simConfig() selftest.Config {
	c := selftest.DefaultConfig()
	c.Backend = "sim"
	c.Board = 0
	c.Spinner = false
	c.PauseOnExit = false
	c.Sim.FIFOSize = 0x800
	return c
}

func TestSelftestMainPasses(t *testing.T) {
	if code := selftestMain(simConfig(), bufio.NewReader(strings.NewReader(""))); code != 0 {
		t.Errorf("expected exit code 0 got %d", code)
	}
}

func TestSelftestMainMismatchIsNotAnExitCode(t *testing.T) {
	c := simConfig()
	c.Sim.CorruptAt, c.Sim.CorruptMask = 10, 0x8000
	if code := selftestMain(c, bufio.NewReader(strings.NewReader(""))); code != 0 {
		t.Errorf("expected exit code 0 got %d", code)
	}
}

func TestSelftestMainDumps(t *testing.T) {
	c := simConfig()
	c.Dump = filepath.Join(t.TempDir(), "loop.fits")
	if code := selftestMain(c, bufio.NewReader(strings.NewReader(""))); code != 0 {
		t.Fatalf("expected exit code 0 got %d", code)
	}
	if fi, err := os.Stat(c.Dump); err != nil || fi.Size() == 0 {
		t.Errorf("expected a FITS dump at %s, %v", c.Dump, err)
	}
}

func TestSelftestMainNoBoard(t *testing.T) {
	c := simConfig()
	c.Board = 3
	if code := selftestMain(c, bufio.NewReader(strings.NewReader(""))); code != -1 {
		t.Errorf("expected exit code -1 got %d", code)
	}
}

func TestSelftestMainAsks(t *testing.T) {
	c := simConfig()
	c.Board = -1
	c.Sim.Boards = 2
	if code := selftestMain(c, bufio.NewReader(strings.NewReader("1\n"))); code != 0 {
		t.Errorf("expected exit code 0 got %d", code)
	}
}
