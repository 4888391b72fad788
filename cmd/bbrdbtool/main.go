// Command bbrdbtool is a thin example binary wiring config, bbrdb, and
// httpapi together: it opens the first matching console, initialises it,
// and serves the diagnostic status API until interrupted.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/Jhynjhiruu/bbrdb/bbrdb"
	"github.com/Jhynjhiruu/bbrdb/config"
	"github.com/Jhynjhiruu/bbrdb/httpapi"
	"github.com/Jhynjhiruu/bbrdb/progress"
)

const helpBlurb = `
Usage: bbrdbtool [CONFIGPATH]

Opens the first attached console, initialises it, and serves a read-only
status API (GET /stats, /files, /files/{name}) at the configured address.

Example config file:
httpaddr: ":8080"
verbose: true
`

// logReporter logs a line whenever its running count reaches a multiple of
// 100 units, and once more on Done, matching the corpus's
// plain-log-line progress idiom rather than a terminal spinner (spec.md §1
// names progress reporting as an external collaborator; see
// progress.Reporter).
type logReporter struct {
	label string
	n     int
}

func (r *logReporter) Inc(n int) {
	r.n += n
	if r.n%100 == 0 {
		log.Printf("%s: %d blocks", r.label, r.n)
	}
}

func (r *logReporter) Done() {
	log.Printf("%s: done (%d blocks)", r.label, r.n)
}

var _ progress.Reporter = (*logReporter)(nil)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "help" {
		fmt.Println(helpBlurb)
		return
	}

	path := "bbrdbtool.yml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	bbrdb.Verbose = cfg.Verbose

	ctx, devs, err := bbrdb.ScanDevices()
	if err != nil {
		log.Fatalf("scanning for devices: %v", err)
	}
	defer ctx.Close()
	if len(devs) == 0 {
		log.Fatal("no console found")
	}

	h, err := bbrdb.NewHandle(devs[0])
	if err != nil {
		log.Fatalf("opening device: %v", err)
	}
	defer h.Close()

	if err := h.Init(context.Background()); err != nil {
		log.Fatalf("initialising device: %v", err)
	}

	api := httpapi.New(h)
	log.Printf("bbrdbtool started bound to %s", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, api.Router()))
}
