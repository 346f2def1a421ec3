package admin_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mickamy/kvstore/admin"
	"github.com/mickamy/kvstore/broker"
)

func TestHandleInfoDefaultsToMasterRole(t *testing.T) {
	t.Parallel()
	s := admin.New(broker.New(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got admin.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Role != "master" {
		t.Errorf("Role = %q, want master", got.Role)
	}
}

func TestHandleInfoUsesProvider(t *testing.T) {
	t.Parallel()
	s := admin.New(broker.New(), func() admin.Info {
		return admin.Info{ConnectedClients: 3, TotalKeys: 42, Role: "master"}
	})
	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var got admin.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ConnectedClients != 3 || got.TotalKeys != 42 {
		t.Errorf("got = %+v", got)
	}
}

func TestHandleSSEStreamsPublishedEvents(t *testing.T) {
	t.Parallel()
	b := broker.New()
	s := admin.New(b, nil)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	// Give the handler a moment to subscribe before we publish, since
	// subscription happens asynchronously relative to this goroutine.
	time.Sleep(20 * time.Millisecond)
	b.Publish(broker.Event{DB: 0, Client: "c1", Command: []string{"SET", "a", "b"}, Unix: 123})

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("line = %q, want data: prefix", line)
	}
	if !strings.Contains(line, `"client":"c1"`) {
		t.Fatalf("line = %q, missing client field", line)
	}
}
