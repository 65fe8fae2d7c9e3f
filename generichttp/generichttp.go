// Package generichttp holds handler generators shared by the HTTP wrappers
// of devices
package generichttp

import (
	"errors"
	"net/http"

	"github.jpl.nasa.gov/bdube/dmx820/server"
)

// ErrNotFound may be returned by a getter when there is nothing to get yet.
// It is sent as 404 instead of 500
var ErrNotFound = errors.New("not found")

// GetJSON calls a getter and returns its value as JSON
func GetJSON(fcn func() (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fcn()
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, ErrNotFound) {
				code = http.StatusNotFound
			}
			http.Error(w, err.Error(), code)
			return
		}
		server.EncodeAndRespond(w, v)
	}
}
