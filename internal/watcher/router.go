package watcher

import (
	"context"
	"fmt"
	"log/slog"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"pipelinewatch/internal/failure"
	"pipelinewatch/internal/models"
	"pipelinewatch/internal/telemetry"
)

// Action is what the router decided to do with a job.
type Action int

const (
	// ActionSkip leaves a job with running pods alone.
	ActionSkip Action = iota
	// ActionReap deletes a successfully finished job.
	ActionReap
	// ActionReportFailure runs the pipeline's failure handler.
	ActionReportFailure
	// ActionLogFailure only logs a failed job.
	ActionLogFailure
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionReap:
		return "reap"
	case ActionReportFailure:
		return "report_failure"
	case ActionLogFailure:
		return "log_failure"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decide classifies a job. It depends only on the job itself.
func Decide(job *batchv1.Job) (models.PipelineName, Action, error) {
	label, ok := job.Labels[models.PipelineLabel]
	if !ok {
		return "", ActionSkip, fmt.Errorf("%w: job %s has no %q label", ErrMalformedEvent, job.Name, models.PipelineLabel)
	}
	pipeline := models.ParsePipeline(label)
	if !models.IsTerminal(job) {
		return pipeline, ActionSkip, nil
	}
	if !models.IsFailed(job) {
		return pipeline, ActionReap, nil
	}

	switch pipeline {
	case models.PipelineDataTransferFolder, models.PipelineDataDeleteFolder:
		return pipeline, ActionReportFailure, nil
	case models.PipelineDicomEdit, models.PipelineDataTransfer, models.PipelineDataDelete, models.PipelineUnclassified:
		return pipeline, ActionLogFailure, nil
	}
	return pipeline, ActionLogFailure, nil
}

func (w *Watcher) route(ctx context.Context, job *batchv1.Job, eventID string, log *slog.Logger) error {
	pipeline, action, err := Decide(job)
	if err != nil {
		return err
	}
	log = log.With("pipeline", job.Labels[models.PipelineLabel])

	switch action {
	case ActionSkip:
		log.Info("job has been skipped", "active", job.Status.Active)
		return nil
	case ActionReap:
		log.Debug("ended job", "final_status", models.FinalStatus(job))
		w.reap(ctx, job.Name, log)
		return nil
	case ActionReportFailure:
		log.Debug("ended job", "final_status", models.FinalStatus(job))
		rule, ok := w.failures.RuleFor(pipeline)
		if !ok {
			return fmt.Errorf("no zone rule for pipeline %s", pipeline)
		}
		ref := failure.JobRef{Name: job.Name, Namespace: job.Namespace, Pipeline: pipeline, EventID: eventID}
		if err := w.failures.New(rule, ref, models.TemplateAnnotations(job), log).Handle(ctx); err != nil {
			return err
		}
		log.Warn("terminating pipeline job after reporting failure")
		return nil
	case ActionLogFailure:
		if pipeline == models.PipelineDicomEdit {
			log.Warn("dicom edit job failed")
		} else {
			log.Warn("unknown pipeline job failed")
		}
		return nil
	}
	return fmt.Errorf("unhandled action %s", action)
}

// reap deletes a finished job and blocks on its pods via foreground propagation.
func (w *Watcher) reap(ctx context.Context, name string, log *slog.Logger) {
	policy := metav1.DeletePropagationForeground
	if err := w.jobs.Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy}); err != nil {
		telemetry.ReapErrors.Inc()
		log.Error("delete job", "error", err)
		return
	}
	telemetry.JobsReaped.Inc()
	log.Info("deleted job")
}
