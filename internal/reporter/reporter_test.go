package reporter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pipelinewatch/internal/models"
)

func TestReport_SendsTaskUpdate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/tasks" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	New(srv.URL, srv.Client(), nil).Report(context.Background(), Update{
		SessionID: "s-1",
		JobID:     "j-1",
		Status:    models.ActionTerminated,
		Zone:      "core",
		Payload:   map[string]any{"message": "pipeline failed."},
	})

	if got["session_id"] != "s-1" || got["job_id"] != "j-1" {
		t.Fatalf("ids not forwarded: %v", got)
	}
	if got["status"] != "TERMINATED" {
		t.Errorf("status = %v, want TERMINATED", got["status"])
	}
	if got["progress"] != "100" {
		t.Errorf("progress = %v, want \"100\"", got["progress"])
	}
	add, ok := got["add_payload"].(map[string]any)
	if !ok {
		t.Fatalf("add_payload missing: %v", got)
	}
	if add["zone"] != "core" || add["message"] != "pipeline failed." {
		t.Errorf("add_payload = %v", add)
	}
}

func TestReport_ZoneOverridesPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	New(srv.URL, srv.Client(), nil).Report(context.Background(), Update{
		Status:  models.ActionTerminated,
		Zone:    "greenroom",
		Payload: map[string]any{"zone": "core"},
	})
	if add := got["add_payload"].(map[string]any); add["zone"] != "greenroom" {
		t.Fatalf("zone = %v, want greenroom", add["zone"])
	}
}

func TestReport_SwallowsServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	New(srv.URL, srv.Client(), nil).Report(context.Background(), Update{Status: models.ActionTerminated})
	if calls != 1 {
		t.Fatalf("calls = %d, want exactly one attempt", calls)
	}
}

func TestReport_SwallowsTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	New(url, http.DefaultClient, nil).Report(context.Background(), Update{Status: models.ActionTerminated})
}
