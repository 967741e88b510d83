// Package failure reports failed pipeline jobs back to the task service.
//
// Every failure event gets its own Handler with its own HTTP session. The
// workflow is fixed: read the event payload from the pod-template
// annotations, resolve the source resource, derive the zone through the
// pipeline's ZoneRule and send a TERMINATED status update.
package failure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pipelinewatch/internal/config"
	"pipelinewatch/internal/models"
	"pipelinewatch/internal/reporter"
	"pipelinewatch/internal/resolver"
	"pipelinewatch/internal/telemetry"
)

// ErrMissingSourceID means the upstream pipeline launched a job without the
// event_payload_source_id annotation. The event cannot be reported.
var ErrMissingSourceID = errors.New("missing " + models.AnnotationSourceID + " annotation")

const failureMessage = "pipeline failed."

// Archiver keeps a copy of each handled failure.
type Archiver interface {
	Store(ctx context.Context, rec models.FailureRecord) (string, error)
}

// JobRef identifies the job a failure came from.
type JobRef struct {
	Name      string
	Namespace string
	Pipeline  models.PipelineName
	EventID   string
}

// Factory builds single-use Handlers.
type Factory struct {
	labels     ZoneLabels
	resolvers  resolver.Factory
	dataOpsURL string
	timeout    time.Duration
	archive    Archiver
	log        *slog.Logger
	now        func() time.Time
}

// NewFactory wires handlers to the configured services. archive may be nil.
func NewFactory(cfg config.Config, resolvers resolver.Factory, archive Archiver, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		labels:     ZoneLabels{Green: cfg.GreenZoneLabel, Core: cfg.CoreZoneLabel},
		resolvers:  resolvers,
		dataOpsURL: cfg.DataOpsService,
		timeout:    cfg.HTTPTimeout,
		archive:    archive,
		log:        logger,
		now:        time.Now,
	}
}

// RuleFor returns the zone rule of a pipeline. Pipelines without failure
// reporting return false.
func (f *Factory) RuleFor(p models.PipelineName) (ZoneRule, bool) {
	switch p {
	case models.PipelineDataTransferFolder:
		return TransferFailed{Labels: f.labels}, true
	case models.PipelineDataDeleteFolder:
		return DeleteFailed{Labels: f.labels}, true
	case models.PipelineDicomEdit, models.PipelineDataTransfer, models.PipelineDataDelete, models.PipelineUnclassified:
		return nil, false
	}
	return nil, false
}

// New builds a Handler with a fresh HTTP session.
func (f *Factory) New(rule ZoneRule, job JobRef, annotations map[string]string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = f.log
	}
	client := newSession(f.timeout)
	return &Handler{
		job:         job,
		annotations: annotations,
		rule:        rule,
		resolver:    f.resolvers(client),
		reporter:    reporter.New(f.dataOpsURL, client, logger),
		archive:     f.archive,
		client:      client,
		log:         logger,
		now:         f.now,
	}
}

func newSession(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Handler reports one failed job. It is not reusable.
type Handler struct {
	job         JobRef
	annotations map[string]string
	rule        ZoneRule
	resolver    resolver.Resolver
	reporter    *reporter.StatusReporter
	archive     Archiver
	client      *http.Client
	log         *slog.Logger
	now         func() time.Time
}

// Handle runs the failure workflow. Missing source ids and unresolvable
// resources are returned as errors; status update problems are only logged.
func (h *Handler) Handle(ctx context.Context) error {
	defer h.client.CloseIdleConnections()

	h.log.Debug("failure annotations", "pipeline", h.job.Pipeline, "annotations", h.annotations)
	payload := models.PayloadFromAnnotations(h.annotations)
	if payload.SourceID == "" {
		h.log.Error("[Fatal] source id annotation missing", "annotations", h.annotations)
		return fmt.Errorf("%w on job %s", ErrMissingSourceID, h.job.Name)
	}

	res, err := h.resolver.Resolve(ctx, payload.SourceID)
	if err != nil {
		h.log.Error("[Fatal] source resource lookup failed", "source_id", payload.SourceID, "error", err)
		return fmt.Errorf("resolve source of job %s: %w", h.job.Name, err)
	}
	h.log.Info("received resource", "type", res.Type, "source_id", payload.SourceID)

	zone := h.rule.Zone(res)
	h.reporter.Report(ctx, reporter.Update{
		SessionID: payload.SessionID,
		JobID:     payload.JobID,
		Status:    models.ActionTerminated,
		Zone:      zone,
		Payload:   map[string]any{"message": failureMessage},
	})
	telemetry.FailuresHandled.WithLabelValues(string(h.job.Pipeline), zone).Inc()

	if h.archive != nil {
		loc, err := h.archive.Store(ctx, models.FailureRecord{
			EventID:      h.job.EventID,
			JobName:      h.job.Name,
			Namespace:    h.job.Namespace,
			Pipeline:     string(h.job.Pipeline),
			SourceID:     payload.SourceID,
			SessionID:    payload.SessionID,
			JobID:        payload.JobID,
			Zone:         zone,
			ResourceType: res.Type,
			Status:       models.ActionTerminated,
			Message:      failureMessage,
			RecordedAt:   h.now().UTC(),
		})
		if err != nil {
			h.log.Error("archive failure record", "error", err)
		} else if loc != "" {
			h.log.Debug("failure record archived", "location", loc)
		}
	}
	return nil
}
