package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Jhynjhiruu/bbrdb/bbfs"
)

type fakeHandle struct {
	stats   bbfs.Stats
	statErr error

	files    []bbfs.DirEntry
	filesErr error

	entry    *bbfs.FileEntry
	entryErr error

	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (f *fakeHandle) CardStats() (bbfs.Stats, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.stats, f.statErr
}

func (f *fakeHandle) ListFiles() ([]bbfs.DirEntry, error) {
	return f.files, f.filesErr
}

func (f *fakeHandle) StatFile(name string) (*bbfs.FileEntry, error) {
	return f.entry, f.entryErr
}

func TestHandleStats(t *testing.T) {
	h := &fakeHandle{stats: bbfs.Stats{Free: 10, Used: 5, Bad: 1, Seqno: 3}}
	api := New(h)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got bbfs.Stats
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h.stats {
		t.Errorf("body = %+v, want %+v", got, h.stats)
	}
}

func TestHandleStatsError(t *testing.T) {
	h := &fakeHandle{statErr: errors.New("usb gone")}
	api := New(h)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHandleListFiles(t *testing.T) {
	h := &fakeHandle{files: []bbfs.DirEntry{{Name: "a.bin", Size: 10}}}
	api := New(h)
	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got []bbfs.DirEntry
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "a.bin" {
		t.Errorf("body = %+v", got)
	}
}

func TestHandleStatFileNotFound(t *testing.T) {
	h := &fakeHandle{entryErr: errors.New("not found")}
	api := New(h)
	req := httptest.NewRequest(http.MethodGet, "/files/missing.bin", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestBusyGuardRejectsConcurrentRequests(t *testing.T) {
	h := &fakeHandle{release: make(chan struct{})}
	api := New(h)

	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		w := httptest.NewRecorder()
		api.Router().ServeHTTP(w, req)
		done <- w.Code
	}()

	for {
		h.mu.Lock()
		n := h.calls
		h.mu.Unlock()
		if n > 0 {
			break
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusLocked {
		t.Errorf("concurrent request status = %d, want 423", w.Code)
	}

	close(h.release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first request status = %d, want 200", code)
	}
}
