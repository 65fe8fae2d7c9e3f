/*Package dmx820 provides an interface to RTD DMX820 PCI digital I/O boards

The DMX820 carries two hardware FIFO channels, a set of 16-bit standard I/O
ports, programmable clock generators and two DMA channels.  Everything below
the register level is done by the closed source driver library from RTD; this
package mirrors that library's API one call per method, so that a sequence
written against the C SDK reads the same in Go.

Two drivers implement the same Board interface:

	Hardware() - the vendor library, through cgo.  Requires building with
	             -tags dmx820 and the RTD SDK headers/libraries installed.
	NewSim()   - a pure Go model of a board with port 0 wired back to port 1,
	             used for tests and for dry runs without a board in the machine.

Basic usage is as followed:
 drv := dmx820.Hardware()
 brd, err := dmx820.OpenRetry(context.Background(), drv, 0, 3*time.Second)
 if err != nil {
 	log.Fatal(err)
 }
 defer brd.Close()
 // see method docs on error values, this example ignores them
 brd.FifoSetEnable(0, false)
 brd.StdIOSetIOMode(dmx820.Port0, 0xFFFF, dmx820.ModePeriphOut)
 brd.StdIOSetPeriphMode(dmx820.Port0, 0xFFFF, dmx820.PeriphFIFO0)
 brd.FifoSetConfig(0, dmx820.FifoConfig{
 	InClock:  dmx820.ClockWritePort,
 	OutClock: dmx820.ClockReadPort,
 	DREQ:     dmx820.DREQWrite,
 	Input:    dmx820.InputPCI})

DMA completions are delivered on a thread owned by the driver.  Callbacks must
not block and must not call back into the Board.
*/
package dmx820
