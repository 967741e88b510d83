package models

import (
	"time"

	batchv1 "k8s.io/api/batch/v1"
)

// PipelineLabel is the job label naming the workflow that produced the job.
const PipelineLabel = "pipeline"

// Pod-template annotation keys carrying the triggering event payload.
const (
	AnnotationSourceID  = "event_payload_source_id"
	AnnotationSessionID = "event_payload_session_id"
	AnnotationJobID     = "event_payload_job_id"

	DefaultSessionID = "default_session"
	DefaultJobID     = "default_job"
)

// PipelineName identifies the workflow that produced a job.
type PipelineName string

const (
	PipelineDicomEdit          PipelineName = "dicom_edit"
	PipelineDataTransfer       PipelineName = "data_transfer"
	PipelineDataDelete         PipelineName = "data_delete"
	PipelineDataTransferFolder PipelineName = "data_transfer_folder"
	PipelineDataDeleteFolder   PipelineName = "data_delete_folder"
	// PipelineUnclassified stands in for any label outside the known set.
	PipelineUnclassified PipelineName = "unclassified"
)

// ParsePipeline maps a raw label onto the closed pipeline set.
func ParsePipeline(label string) PipelineName {
	switch p := PipelineName(label); p {
	case PipelineDicomEdit, PipelineDataTransfer, PipelineDataDelete,
		PipelineDataTransferFolder, PipelineDataDeleteFolder:
		return p
	default:
		return PipelineUnclassified
	}
}

// ActionState enumerates the lifecycle labels of a tracked file operation.
type ActionState string

const (
	ActionInit                ActionState = "INIT"
	ActionPreUploaded         ActionState = "PRE_UPLOADED"
	ActionChunkUploaded       ActionState = "CHUNK_UPLOADED"
	ActionFinalized           ActionState = "FINALIZED"
	ActionSucceeded           ActionState = "SUCCEED"
	ActionTerminated          ActionState = "TERMINATED"
	ActionRunning             ActionState = "RUNNING"
	ActionZipping             ActionState = "ZIPPING"
	ActionReadyForDownloading ActionState = "READY_FOR_DOWNLOADING"
)

// EventPayload is the subset of pod-template annotations the failure handlers read.
type EventPayload struct {
	SourceID  string
	SessionID string
	JobID     string
}

// PayloadFromAnnotations extracts the event payload, defaulting session and job ids.
// SourceID is left empty when absent; callers decide whether that is fatal.
func PayloadFromAnnotations(annotations map[string]string) EventPayload {
	p := EventPayload{
		SourceID:  annotations[AnnotationSourceID],
		SessionID: annotations[AnnotationSessionID],
		JobID:     annotations[AnnotationJobID],
	}
	if p.SessionID == "" {
		p.SessionID = DefaultSessionID
	}
	if p.JobID == "" {
		p.JobID = DefaultJobID
	}
	return p
}

// IsTerminal reports whether the job has no running pods.
func IsTerminal(job *batchv1.Job) bool {
	return job.Status.Active == 0
}

// IsFailed reports whether any pod of the job failed.
func IsFailed(job *batchv1.Job) bool {
	return job.Status.Failed > 0
}

// FinalStatus renders the terminal outcome for logging.
func FinalStatus(job *batchv1.Job) string {
	if IsFailed(job) {
		return "failed"
	}
	return "succeeded"
}

// TemplateAnnotations returns the pod-template annotations of a job.
func TemplateAnnotations(job *batchv1.Job) map[string]string {
	return job.Spec.Template.Annotations
}

// FailureRecord is the archived account of one handled pipeline failure.
type FailureRecord struct {
	EventID      string      `json:"event_id"`
	JobName      string      `json:"job_name"`
	Namespace    string      `json:"namespace"`
	Pipeline     string      `json:"pipeline"`
	SourceID     string      `json:"source_id"`
	SessionID    string      `json:"session_id"`
	JobID        string      `json:"job_id"`
	Zone         string      `json:"zone"`
	ResourceType ItemType    `json:"resource_type"`
	Status       ActionState `json:"status"`
	Message      string      `json:"message"`
	RecordedAt   time.Time   `json:"recorded_at"`
}
