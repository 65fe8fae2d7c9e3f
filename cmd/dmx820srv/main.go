package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.jpl.nasa.gov/bdube/dmx820/generichttp/diag"
	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820/selftest"
)

// ConfigFileName is what it sounds like
var ConfigFileName = "dmx820srv.yml"

// SetupHTTP creates a new chi router that exposes the self-test
func SetupHTTP(d *diag.HTTPDiag) chi.Router {
	r := chi.NewRouter()
	r.Use(d.Lock.Check)
	d.RouteTable.Bind(r)
	return r
}

func main() {
	cfg, err := selftest.LoadConfig(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	drv, err := cfg.Driver()
	if err != nil {
		log.Fatal(err)
	}
	if boards, err := drv.Boards(); err != nil {
		log.Println("no DMX820 boards visible, runs will fail until one is", err)
	} else {
		for _, b := range boards {
			log.Printf("found %s (minor %d), FIFO %#x samples\n", b.Name, b.Index, b.FIFOSize)
		}
	}
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Mount("/dmx820", SetupHTTP(diag.NewHTTPDiag(drv, cfg)))
	log.Println("DMX820 self-test available via HTTP at /dmx820")

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGABRT, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-ch
		os.Exit(0)
	}()
	log.Println("now listening for requests at ", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, root))
}
