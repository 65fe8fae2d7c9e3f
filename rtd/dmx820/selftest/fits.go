package selftest

import (
	"errors"
	"io"

	"github.com/astrogo/fitsio"
	"github.jpl.nasa.gov/bdube/dmx820/util"
)

// ErrNoData is generated when a report without buffer copies is dumped
var ErrNoData = errors.New("report does not hold the sample buffers, run with keep_data")

// WriteFITS streams the sent and received buffers of a report to w as a
// size x 2 image, row 0 sent and row 1 received
func WriteFITS(w io.Writer, r Report) error {
	n := int(r.Size)
	if len(r.Sent) < n || len(r.Received) < n || n == 0 {
		return ErrNoData
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{n, 2})
	defer im.Close()

	err = im.Header().Append(
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0},
		fitsio.Card{Name: "HDRVER", Value: "DMX820-1", Comment: "header version"},
		fitsio.Card{Name: "BOARD", Value: r.Board.Index, Comment: "board minor number"},
		fitsio.Card{Name: "FIFOSIZE", Value: int(r.Board.FIFOSize), Comment: "FIFO depth, samples"},
		fitsio.Card{Name: "XFERSIZE", Value: n, Comment: "samples per transfer"},
		fitsio.Card{Name: "PASSED", Value: r.Passed, Comment: "received == sent"},
		fitsio.Card{Name: "FAILAT", Value: r.FailAt, Comment: "first mismatch, -1 if none"},
		fitsio.Card{Name: "SEED", Value: int(r.Seed), Comment: "random fill seed"},
		fitsio.Card{Name: "CRCSENT", Value: int(r.SentCRC), Comment: "CRC-16/XMODEM of row 0"},
		fitsio.Card{Name: "CRCRECV", Value: int(r.ReceivedCRC), Comment: "CRC-16/XMODEM of row 1"},
		fitsio.Card{Name: "DATE-OBS", Value: r.Start.UTC().Format("2006-01-02T15:04:05"), Comment: "run start, UTC"},
	)
	if err != nil {
		return err
	}
	buf := make([]uint16, 0, 2*n)
	buf = append(buf, r.Sent[:n]...)
	buf = append(buf, r.Received[:n]...)
	err = im.Write(util.Uint16ToFITS(buf))
	if err != nil {
		return err
	}
	return fits.Write(im)
}
