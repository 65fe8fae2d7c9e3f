// Package diag exposes the DMX820 loopback self-test over HTTP
//
// Routes, relative to where the table is mounted:
//
//	GET  /boards   boards the driver can see
//	POST /run      run the self-test, optional JSON body {"board", "seed", "timeout"}
//	GET  /last     report of the last run
//	GET  /last.fits sent and received buffers of the last run as a FITS image
//	GET  /lock, POST /lock
//
// Only one run may be in progress at a time; a second POST /run while one
// is going gets 423 (locked).
package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/dmx820/generichttp"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820/selftest"
	"github.jpl.nasa.gov/bdube/dmx820/server"
	"github.jpl.nasa.gov/bdube/dmx820/server/middleware/locker"
	"github.jpl.nasa.gov/bdube/dmx820/util"
)

// RunRequest is the optional body of POST /run
type RunRequest struct {
	// Board overrides the configured board when present
	Board *int `json:"board,omitempty"`

	// Seed overrides the configured seed when nonzero
	Seed int64 `json:"seed,omitempty"`

	// Timeout overrides the DMA timeout when nonzero, in seconds
	Timeout float64 `json:"timeout,omitempty"`
}

// RunResult is the reply to POST /run and GET /last
type RunResult struct {
	Report selftest.Report `json:"report"`

	// Error is why the run aborted, empty if it ran to the end
	Error string `json:"error,omitempty"`
}

// HTTPDiag runs self-tests on behalf of HTTP clients
type HTTPDiag struct {
	Driver dmx820.Driver
	Config selftest.Config
	Lock   *locker.Locker

	mu   sync.Mutex
	last *RunResult

	RouteTable server.RouteTable
}

// NewHTTPDiag returns a new HTTP wrapper for the self-test on drv
func NewHTTPDiag(drv dmx820.Driver, cfg selftest.Config) *HTTPDiag {
	d := &HTTPDiag{Driver: drv, Config: cfg, Lock: locker.New()}
	d.Lock.DoNotProtect = append(d.Lock.DoNotProtect, "last", "boards", "list-of-routes")
	rt := server.RouteTable{
		{Method: http.MethodGet, Path: "/boards"}:    generichttp.GetJSON(d.boards),
		{Method: http.MethodPost, Path: "/run"}:      d.Run,
		{Method: http.MethodGet, Path: "/last"}:      generichttp.GetJSON(d.lastResult),
		{Method: http.MethodGet, Path: "/last.fits"}: d.LastFITS,
	}
	d.RouteTable = rt
	locker.Inject(d, d.Lock)
	return d
}

// RT satisfies server.HTTPer
func (d *HTTPDiag) RT() server.RouteTable {
	return d.RouteTable
}

func (d *HTTPDiag) boards() (interface{}, error) {
	return d.Driver.Boards()
}

func (d *HTTPDiag) lastResult() (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil, fmt.Errorf("no run yet: %w", generichttp.ErrNotFound)
	}
	return d.last, nil
}

// Execute opens the board, runs one self-test and closes the board.
// The result is kept for GET /last
func (d *HTTPDiag) Execute(ctx context.Context, req RunRequest) RunResult {
	cfg := d.Config
	if req.Board != nil {
		cfg.Board = *req.Board
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	if req.Timeout > 0 {
		cfg.DMATimeout = util.SecsToDuration(req.Timeout)
	}
	if cfg.Board < 0 {
		cfg.Board = 0
	}
	res := RunResult{}
	res.Report, res.Error = d.execute(ctx, cfg)
	d.mu.Lock()
	d.last = &res
	d.mu.Unlock()
	return res
}

func (d *HTTPDiag) execute(ctx context.Context, cfg selftest.Config) (selftest.Report, string) {
	opts, err := cfg.Options(log.Default(), nil)
	if err != nil {
		return selftest.Report{FailAt: -1}, err.Error()
	}
	opts.KeepData = true
	board, err := dmx820.OpenRetry(ctx, d.Driver, cfg.Board, cfg.OpenRetry)
	if err != nil {
		return selftest.Report{FailAt: -1}, err.Error()
	}
	defer board.Close()
	rep, err := selftest.NewSession(board, opts).Run(ctx)
	if err != nil {
		return rep, err.Error()
	}
	return rep, ""
}

// Run handles POST /run
func (d *HTTPDiag) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if !d.Lock.TryLock() {
		w.WriteHeader(http.StatusLocked)
		return
	}
	defer d.Lock.Unlock()
	start := time.Now()
	res := d.Execute(r.Context(), req)
	log.Printf("self-test finished in %v, passed=%v error=%q\n", time.Since(start), res.Report.Passed, res.Error)
	code := http.StatusOK
	if res.Error != "" {
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(res)
}

// LastFITS handles GET /last.fits
func (d *HTTPDiag) LastFITS(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	last := d.last
	d.mu.Unlock()
	if last == nil {
		http.Error(w, "no run yet", http.StatusNotFound)
		return
	}
	// the encoder streams, buffer so an error can still be sent as a status
	var buf bytes.Buffer
	if err := selftest.WriteFITS(&buf, last.Report); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	hdr := w.Header()
	hdr.Set("Content-Type", "image/fits")
	hdr.Set("Content-Disposition", "attachment; filename=dmx820-loopback.fits")
	w.Write(buf.Bytes())
}
