// Package httpapi exposes a read-only diagnostic view of a bbrdb.Handle
// over HTTP: card stats and the file listing. It never mutates filesystem
// state — it is an observability layer, not a reimplementation of the CLI
// driver spec.md excludes.
//
// Grounded on generichttp's HumanPayload JSON-envelope convention and
// generichttp/motion's chi.URLParam handler style, with
// server/middleware/locker's non-blocking lock repurposed as a Busy()
// guard: spec.md §5 requires that a console's single USB handle never be
// driven by two goroutines at once, so every handler here is serialized
// through one mutex-backed flag rather than locker's externally-toggled
// one.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi"

	"github.com/Jhynjhiruu/bbrdb/bbfs"
)

// Handle is the subset of *bbrdb.Handle this package depends on, letting
// tests substitute a fake without a real USB connection.
type Handle interface {
	CardStats() (bbfs.Stats, error)
	ListFiles() ([]bbfs.DirEntry, error)
	StatFile(name string) (*bbfs.FileEntry, error)
}

// busyLock is a non-blocking, single-holder lock: TryAcquire returns false
// immediately rather than waiting, mirroring locker.Locker's Check
// middleware but self-managed for the duration of one handler call.
type busyLock struct {
	mu   sync.Mutex
	held bool
}

func (b *busyLock) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held {
		return false
	}
	b.held = true
	return true
}

func (b *busyLock) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.held = false
}

// API wires a Handle into a chi.Router of read-only status endpoints.
type API struct {
	h    Handle
	busy busyLock
}

// New returns an API serving h's filesystem state.
func New(h Handle) *API {
	return &API{h: h}
}

// busyGuard wraps next so that at most one request at a time reaches h,
// returning 423 Locked to any request that arrives while another is
// in flight.
func (a *API) busyGuard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.busy.TryAcquire() {
			w.WriteHeader(http.StatusLocked)
			return
		}
		defer a.busy.Release()
		next(w, r)
	}
}

// Router returns a chi.Router serving GET /stats, GET /files, and
// GET /files/{name}.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/stats", a.busyGuard(a.handleStats))
	r.Get("/files", a.busyGuard(a.handleListFiles))
	r.Get("/files/{name}", a.busyGuard(a.handleStatFile))
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.h.CardStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (a *API) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := a.h.ListFiles()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, files)
}

func (a *API) handleStatFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entry, err := a.h.StatFile(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}
