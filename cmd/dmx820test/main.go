package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/theckman/yacspin"
	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820/selftest"
	"github.jpl.nasa.gov/bdube/dmx820/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "dmx820test.yml"
)

func root() {
	str := `dmx820test checks the DMA and FIFO path of an RTD DMX820 board by looping
random data out of FIFO 0 on DIO port 0 and back in through DIO port 1 to FIFO 1.
Port 0 must be wired to port 1 pin for pin.

Usage:
	dmx820test <command>

Commands:
	run
	boards
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `dmx820test is amenable to configuration via its .yml file, dmx820test.yml in the
working directory, and via environment variables prefixed with DMX820_.  Nested keys
are joined with a double underscore, for example DMX820_SIM__UNWIRED=true.

backend selects "hardware" (the RTD library, built with -tags dmx820) or "sim",
a software model of a looped back board.

board is the minor number to open; -1 lists the boards and asks.

clock.master is one of 25mhz, pgmclk0, pgmclk1, pgmclk2, pgmclk3, write-port or
read-port; clock.period divides it.  The default 25mhz / 93 paces
the loopback at about 100 kHz.

dump, if set, is a FITS file the sent and received buffers are written to.

The program exits -1 if no board could be selected or opened and 0 otherwise;
the outcome of the self-test is in its output.`
	fmt.Println(str)
}

func loadconfig() selftest.Config {
	c, err := selftest.LoadConfig(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func mkconf() {
	c := loadconfig()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("dmx820test version %v\n", Version)
}

func printBoards(w io.Writer, boards []dmx820.BoardInfo) {
	for _, b := range boards {
		fmt.Fprintf(w, "%d\t%s\tFIFO %#x samples\n", b.Index, b.Name, b.FIFOSize)
	}
}

func listboards() {
	c := loadconfig()
	drv, err := c.Driver()
	if err != nil {
		log.Fatal(err)
	}
	boards, err := drv.Boards()
	if err != nil {
		log.Fatal(err)
	}
	printBoards(os.Stdout, boards)
}

// selectBoard lists the boards and reads a minor number from in
func selectBoard(in *bufio.Reader, out io.Writer, boards []dmx820.BoardInfo) (int, error) {
	if len(boards) == 0 {
		return -1, dmx820.ErrNoBoard
	}
	idx := make([]int, len(boards))
	for i, b := range boards {
		idx[i] = b.Index
	}
	printBoards(out, boards)
	for {
		fmt.Fprintf(out, "Select a board [%s]: ", util.IntSliceToCSV(idx))
		str, err := in.ReadString('\n')
		if err != nil {
			return -1, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			fmt.Fprintln(out, "not a number")
			continue
		}
		for _, i := range idx {
			if i == n {
				return n, nil
			}
		}
		fmt.Fprintf(out, "no board %d\n", n)
	}
}

// spinner shows a console spinner while the session waits on a DMA
type spinner struct {
	s *yacspin.Spinner
}

func newSpinner() (*spinner, error) {
	s, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return nil, err
	}
	return &spinner{s: s}, nil
}

func (sp *spinner) BeginWait(step string) {
	sp.s.Message(step)
	sp.s.Start()
}

func (sp *spinner) EndWait(step string, err error) {
	if err != nil {
		sp.s.StopFailMessage(err.Error())
		sp.s.StopFail()
		return
	}
	sp.s.StopMessage(step)
	sp.s.Stop()
}

func pause(in *bufio.Reader) {
	fmt.Print("Press enter to continue...\n\n\n")
	in.ReadString('\n')
}

func run() {
	c := loadconfig()
	in := bufio.NewReader(os.Stdin)
	code := selftestMain(c, in)
	if c.PauseOnExit {
		pause(in)
	}
	os.Exit(code)
}

func selftestMain(c selftest.Config, in *bufio.Reader) int {
	drv, err := c.Driver()
	if err != nil {
		log.Println(err)
		return -1
	}
	index := c.Board
	if index < 0 {
		boards, err := drv.Boards()
		if err != nil {
			log.Println("no boards found:", err)
			return -1
		}
		index, err = selectBoard(in, os.Stdout, boards)
		if err != nil {
			log.Println(err)
			return -1
		}
	}
	log.Println("Board Selected!!!")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	board, err := dmx820.OpenRetry(ctx, drv, index, c.OpenRetry)
	if err != nil {
		log.Printf("Board could not be opened.\nError Code: %v\n", err)
		return -1
	}
	defer func() {
		log.Println("Closing Board")
		if err := board.Close(); err != nil {
			log.Println(err)
		}
	}()
	info := board.Info()
	fmt.Printf("board %d\t%s\tFIFO %#x samples\n", info.Index, info.Name, info.FIFOSize)

	var obs selftest.Observer
	if c.Spinner {
		sp, err := newSpinner()
		if err != nil {
			log.Println("spinner unavailable:", err)
		} else {
			obs = sp
		}
	}
	opts, err := c.Options(log.New(os.Stdout, "", 0), obs)
	if err != nil {
		log.Println(err)
		return 0
	}
	rep, err := selftest.NewSession(board, opts).Run(ctx)
	if err == nil {
		rep.Print(os.Stdout)
	}
	if c.Dump != "" && rep.Sent != nil {
		if ferr := dump(c.Dump, rep); ferr != nil {
			log.Println("writing", c.Dump, ferr)
		} else {
			log.Println("buffers written to", c.Dump)
		}
	}
	if err != nil {
		log.Println(err)
	}
	return 0
}

func dump(path string, rep selftest.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return selftest.WriteFITS(f, rep)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "boards":
		listboards()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
