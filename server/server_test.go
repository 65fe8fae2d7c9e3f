package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.jpl.nasa.gov/bdube/dmx820/server"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestEndpointsSorted(t *testing.T) {
	rt := server.RouteTable{
		{Method: http.MethodPost, Path: "/run"}:  ok,
		{Method: http.MethodGet, Path: "/last"}:  ok,
		{Method: http.MethodGet, Path: "/board"}: ok,
	}
	expected := []string{"GET /board", "GET /last", "POST /run"}
	out := rt.Endpoints()
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("expected %s got %s", expected[i], out[i])
		}
	}
}

func TestBind(t *testing.T) {
	rt := server.RouteTable{{Method: http.MethodPost, Path: "run"}: ok}
	r := chi.NewRouter()
	rt.Bind(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/run", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/list-of-routes", nil))
	var list []string
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0] != "POST run" {
		t.Errorf("expected [POST run] got %v", list)
	}
}
