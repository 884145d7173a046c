package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nethserver/gitops-updater/internal/report"
)

func TestSendPostsJSONReport(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("body not JSON: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	rep := &report.Report{Started: time.Now()}
	rep.Add(report.Outcome{ItemID: "db", Status: report.StatusUpdated, From: "1.0.0", To: "1.1.0"})

	if err := New(server.URL).Send(context.Background(), rep); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if received["outcomes"] == nil {
		t.Error("payload missing outcomes")
	}
}

func TestSendDisabledWithoutURL(t *testing.T) {
	if err := New("").Send(context.Background(), &report.Report{}); err != nil {
		t.Errorf("empty URL must be a no-op, got %v", err)
	}
}

func TestSendReportsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := New(server.URL).Send(context.Background(), &report.Report{}); err == nil {
		t.Error("expected an error for a 500 response")
	}
}
