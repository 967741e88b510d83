package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"pipelinewatch/internal/models"
	"pipelinewatch/internal/telemetry"
)

// HTTPDoer is the part of *http.Client the reporter uses.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Update is a terminal status change for one tracked file operation.
type Update struct {
	SessionID string
	JobID     string
	Status    models.ActionState
	Zone      string
	Payload   map[string]any
}

type taskRequest struct {
	SessionID  string         `json:"session_id"`
	JobID      string         `json:"job_id"`
	Status     string         `json:"status"`
	Progress   string         `json:"progress"`
	AddPayload map[string]any `json:"add_payload"`
}

// StatusReporter posts task status updates to the data-ops service.
type StatusReporter struct {
	endpoint string
	client   HTTPDoer
	log      *slog.Logger
}

// New targets {baseURL}/v1/tasks.
func New(baseURL string, client HTTPDoer, logger *slog.Logger) *StatusReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{endpoint: baseURL + "/v1/tasks", client: client, log: logger}
}

// Report sends the update once. Failures are logged, never returned.
func (r *StatusReporter) Report(ctx context.Context, u Update) {
	addPayload := make(map[string]any, len(u.Payload)+1)
	for k, v := range u.Payload {
		addPayload[k] = v
	}
	addPayload["zone"] = u.Zone

	body, err := json.Marshal(taskRequest{
		SessionID:  u.SessionID,
		JobID:      u.JobID,
		Status:     string(u.Status),
		Progress:   "100",
		AddPayload: addPayload,
	})
	if err != nil {
		r.fail("marshal task update", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.endpoint, bytes.NewReader(body))
	if err != nil {
		r.fail("build task update", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.fail("send task update", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	r.log.Info("task update sent", "status_code", resp.StatusCode, "session_id", u.SessionID, "job_id", u.JobID)
	if resp.StatusCode >= http.StatusBadRequest {
		telemetry.StatusUpdates.WithLabelValues("rejected").Inc()
		return
	}
	telemetry.StatusUpdates.WithLabelValues("sent").Inc()
}

func (r *StatusReporter) fail(msg string, err error) {
	telemetry.StatusUpdates.WithLabelValues("error").Inc()
	r.log.Error(msg, "error", err)
}
