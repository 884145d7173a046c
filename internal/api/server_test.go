package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nethserver/gitops-updater/internal/report"
)

func testApp(run RunFunc) (*fiber.App, *Server) {
	app := fiber.New()
	s := NewServer(run)
	s.Register(app)
	return app, s
}

func doRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	app, _ := testApp(nil)
	resp := doRequest(t, app, http.MethodGet, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestReportBeforeFirstRun(t *testing.T) {
	app, _ := testApp(nil)
	resp := doRequest(t, app, http.MethodGet, "/api/report")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRunEndpointTriggersRunner(t *testing.T) {
	var mu sync.Mutex
	ran := false
	done := make(chan struct{})

	run := func(ctx context.Context, dryRun bool) (*report.Report, error) {
		mu.Lock()
		ran = true
		mu.Unlock()
		close(done)
		rep := &report.Report{Started: time.Now(), DryRun: dryRun}
		rep.Add(report.Outcome{ItemID: "db", Status: report.StatusUpToDate, From: "1.0.0"})
		return rep, nil
	}
	app, _ := testApp(run)

	resp := doRequest(t, app, http.MethodPost, "/api/run?dryRun=true")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	if !ran {
		t.Error("runner not called")
	}
}

func TestConcurrentRunRejected(t *testing.T) {
	release := make(chan struct{})
	run := func(ctx context.Context, dryRun bool) (*report.Report, error) {
		<-release
		return &report.Report{Started: time.Now()}, nil
	}
	app, _ := testApp(run)

	if resp := doRequest(t, app, http.MethodPost, "/api/run"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first run status = %d", resp.StatusCode)
	}
	if resp := doRequest(t, app, http.MethodPost, "/api/run"); resp.StatusCode != http.StatusConflict {
		t.Errorf("second run status = %d, want 409", resp.StatusCode)
	}
	close(release)
}

func TestReportAfterRun(t *testing.T) {
	done := make(chan struct{})
	run := func(ctx context.Context, dryRun bool) (*report.Report, error) {
		defer close(done)
		rep := &report.Report{Started: time.Now()}
		rep.Add(report.Outcome{ItemID: "db", Status: report.StatusUpdated, From: "1.0.0", To: "1.1.0"})
		return rep, nil
	}
	app, _ := testApp(run)

	doRequest(t, app, http.MethodPost, "/api/run")
	<-done
	// The goroutine stores the report after the runner returns; give the
	// scheduler a moment.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := doRequest(t, app, http.MethodGet, "/api/report")
		if resp.StatusCode == http.StatusOK {
			var rep report.Report
			data, _ := io.ReadAll(resp.Body)
			if err := json.Unmarshal(data, &rep); err != nil {
				t.Fatalf("report not JSON: %v", err)
			}
			if len(rep.Outcomes) != 1 || rep.Outcomes[0].ItemID != "db" {
				t.Errorf("report = %+v", rep)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("report never became available")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
