package diag

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820/selftest"
)

func setup(sim dmx820.SimConfig) (*HTTPDiag, http.Handler) {
	if sim.FIFOSize == 0 {
		sim.FIFOSize = 0x800
	}
	cfg := selftest.DefaultConfig()
	cfg.Backend = "sim"
	cfg.Board = 0
	cfg.Seed = 7
	d := NewHTTPDiag(dmx820.NewSim(sim), cfg)
	r := chi.NewRouter()
	r.Use(d.Lock.Check)
	d.RouteTable.Bind(r)
	return d, r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestRunAndLast(t *testing.T) {
	_, h := setup(dmx820.SimConfig{})
	w := do(h, http.MethodGet, "/last", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any run, got %d", w.Code)
	}

	w = do(h, http.MethodPost, "/run", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	var res RunResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if !res.Report.Passed || res.Report.Size != 0x400 {
		t.Errorf("expected a passing run of 0x400 samples, got %+v", res.Report)
	}

	w = do(h, http.MethodGet, "/last", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 got %d", w.Code)
	}

	w = do(h, http.MethodGet, "/last.fits", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/fits" {
		t.Errorf("expected a FITS file, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestRunMismatchIsNotAnError(t *testing.T) {
	_, h := setup(dmx820.SimConfig{CorruptAt: 42, CorruptMask: 1})
	w := do(h, http.MethodPost, "/run", `{"seed": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	var res RunResult
	json.NewDecoder(w.Body).Decode(&res)
	if res.Report.Passed || res.Report.FailAt != 42 || res.Report.Seed != 3 {
		t.Errorf("unexpected report %+v", res.Report)
	}
}

func TestRunMissingBoard(t *testing.T) {
	_, h := setup(dmx820.SimConfig{})
	w := do(h, http.MethodPost, "/run", `{"board": 4}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", w.Code)
	}
	var res RunResult
	json.NewDecoder(w.Body).Decode(&res)
	if !strings.Contains(res.Error, "BOARD NOT FOUND") {
		t.Errorf("expected a board not found error, got %q", res.Error)
	}
}

func TestRunBadBody(t *testing.T) {
	_, h := setup(dmx820.SimConfig{})
	if w := do(h, http.MethodPost, "/run", `{board`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 got %d", w.Code)
	}
}

func TestRunWhileLocked(t *testing.T) {
	d, h := setup(dmx820.SimConfig{})
	d.Lock.Lock()
	if w := do(h, http.MethodPost, "/run", ""); w.Code != http.StatusLocked {
		t.Errorf("expected 423 got %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/boards", ""); w.Code != http.StatusOK {
		t.Errorf("expected boards to stay readable while locked, got %d", w.Code)
	}
	if w := do(h, http.MethodPost, "/lock", `{"bool": false}`); w.Code != http.StatusOK {
		t.Errorf("expected 200 got %d", w.Code)
	}
	if w := do(h, http.MethodPost, "/run", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 after unlocking got %d", w.Code)
	}
}

func TestBoards(t *testing.T) {
	_, h := setup(dmx820.SimConfig{Boards: 2})
	w := do(h, http.MethodGet, "/boards", "")
	var boards []dmx820.BoardInfo
	if err := json.NewDecoder(w.Body).Decode(&boards); err != nil {
		t.Fatal(err)
	}
	if len(boards) != 2 || boards[1].Index != 1 {
		t.Errorf("unexpected boards %+v", boards)
	}
}

func TestListOfRoutes(t *testing.T) {
	_, h := setup(dmx820.SimConfig{})
	w := do(h, http.MethodGet, "/list-of-routes", "")
	for _, route := range []string{"POST /run", "GET /last", "GET /lock", "POST /lock"} {
		if !strings.Contains(w.Body.String(), route) {
			t.Errorf("route list is missing %s: %s", route, w.Body.String())
		}
	}
}
