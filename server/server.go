// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"
)

// BoolT is a struct with a single Bool field
type BoolT struct {
	Bool bool `json:"bool"`
}

// MethodPath is an HTTP method and the path it is served at
type MethodPath struct {
	Method, Path string
}

func (mp MethodPath) String() string {
	return mp.Method + " " + mp.Path
}

// RouteTable maps method and path pairs to the handlers that serve them
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the routes in the table as "METHOD /path", sorted by path
func (rt RouteTable) Endpoints() []string {
	keys := make([]MethodPath, 0, len(rt))
	for k := range rt {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path == keys[j].Path {
			return keys[i].Method < keys[j].Method
		}
		return keys[i].Path < keys[j].Path
	})
	routes := make([]string, len(keys))
	for i, k := range keys {
		routes[i] = k.String()
	}
	return routes
}

// Bind binds every route in the table to r, plus GET /list-of-routes
// which returns the table's endpoints as JSON
func (rt RouteTable) Bind(r chi.Router) {
	for mp, meth := range rt {
		path := mp.Path
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		r.MethodFunc(mp.Method, path, meth)
	}
	r.Get("/list-of-routes", func(w http.ResponseWriter, r *http.Request) {
		list := rt.Endpoints()
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(list)
		if err != nil {
			fstr := fmt.Sprintf("error encoding list of routes data to json %q", err)
			log.Println(fstr)
			http.Error(w, fstr, http.StatusInternalServerError)
		}
	})
}

// HTTPer is an object that holds a RouteTable
type HTTPer interface {
	RT() RouteTable
}

// EncodeAndRespond writes v to w as JSON
func EncodeAndRespond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		fstr := fmt.Sprintf("error encoding data to json %q", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
	}
}
