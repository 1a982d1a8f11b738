package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kestrelsoft/screenmemory/internal/eventbus"
	"github.com/kestrelsoft/screenmemory/internal/session"
)

type fixedSnapshotter struct{ snap session.Snapshot }

func (f fixedSnapshotter) Snapshot() session.Snapshot { return f.snap }

func TestHandleStatusReturnsSnapshot(t *testing.T) {
	snap := session.Snapshot{State: session.Running, Counters: session.Counters{Captures: 3}}
	s := New(fixedSnapshotter{snap: snap}, eventbus.New())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.State != session.Running || got.Counters.Captures != 3 {
		t.Fatalf("got %+v", got)
	}
}
