package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	batchv1client "k8s.io/client-go/kubernetes/typed/batch/v1"

	"pipelinewatch/internal/config"
	"pipelinewatch/internal/failure"
	"pipelinewatch/internal/resolver"
	"pipelinewatch/internal/telemetry"
)

// ErrMalformedEvent marks events whose shape the watcher cannot interpret.
var ErrMalformedEvent = errors.New("malformed job event")

// errWatchExpired ends a stream whose resourceVersion the server no longer serves.
var errWatchExpired = errors.New("job watch expired")

// Watcher consumes job events one at a time and reconciles terminal pipeline jobs.
type Watcher struct {
	namespace      string
	jobs           batchv1client.JobInterface
	source         EventSource
	failures       *failure.Factory
	diagnostic     bool
	reconnectDelay time.Duration
	ready          atomic.Bool
	log            *slog.Logger

	// resourceVersion is the last version seen; stale forces a relist before
	// the next watch. Both are only touched by the Run goroutine.
	resourceVersion string
	stale           bool
}

// New builds a watcher for cfg.Namespace.
func New(cfg config.Config, client kubernetes.Interface, failures *failure.Factory, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	jobs := client.BatchV1().Jobs(cfg.Namespace)
	return &Watcher{
		namespace:      cfg.Namespace,
		jobs:           jobs,
		source:         clusterSource{jobs: jobs},
		failures:       failures,
		diagnostic:     cfg.Diagnostic,
		reconnectDelay: 2 * time.Second,
		log:            logger.With("component", "k8s_job_watch"),
	}
}

// Ready reports whether a job watch is currently open.
func (w *Watcher) Ready() bool {
	return w.ready.Load()
}

func (w *Watcher) setReady(v bool) {
	w.ready.Store(v)
	if v {
		telemetry.WatchConnected.Set(1)
	} else {
		telemetry.WatchConnected.Set(0)
	}
}

// Run watches until ctx is cancelled, reopening the stream whenever the
// server closes it. Each reopen resumes after the last resourceVersion seen;
// when the server no longer serves that version the namespace is relisted.
// In diagnostic mode the first per-event error ends Run.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("start pipeline job stream watching", "namespace", w.namespace, "diagnostic", w.diagnostic)
	for {
		if w.stale {
			if err := w.relist(ctx); err != nil {
				if err := w.retry(ctx, "relist jobs", err); err != nil {
					return err
				}
				continue
			}
		}

		stream, err := w.source.Watch(ctx, w.resourceVersion)
		if err != nil {
			if isExpired(err) {
				w.expire()
				continue
			}
			if err := w.retry(ctx, "open job watch", err); err != nil {
				return err
			}
			continue
		}

		w.setReady(true)
		err = w.Consume(ctx, stream)
		w.setReady(false)
		if errors.Is(err, errWatchExpired) {
			w.expire()
			continue
		}
		if err != nil {
			return err
		}
		w.log.Info("job watch closed by server, reopening", "resource_version", w.resourceVersion)
		if err := w.wait(ctx); err != nil {
			return err
		}
	}
}

// retry logs a failed cluster call and waits out the reconnect delay. In
// diagnostic mode, or once ctx is done, it returns the error instead.
func (w *Watcher) retry(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if w.diagnostic {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.log.Error(op, "error", err)
	return w.wait(ctx)
}

func (w *Watcher) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.reconnectDelay):
		return nil
	}
}

func (w *Watcher) expire() {
	w.log.Warn("job watch expired, relisting", "resource_version", w.resourceVersion)
	w.resourceVersion = ""
	w.stale = true
}

// relist routes every job of the namespace once, as if it had just been
// modified, then resumes from the list's resourceVersion. Failed jobs already
// reported are reported again with the same terminal status.
func (w *Watcher) relist(ctx context.Context) error {
	list, err := w.jobs.List(ctx, metav1.ListOptions{})
	if err != nil {
		return err
	}
	for i := range list.Items {
		if err := w.processEvent(ctx, watch.Event{Type: watch.Modified, Object: &list.Items[i]}); err != nil && w.diagnostic {
			return err
		}
	}
	w.resourceVersion = list.ResourceVersion
	w.stale = false
	w.log.Info("relisted jobs", "count", len(list.Items), "resource_version", list.ResourceVersion)
	return nil
}

// Consume processes events from stream until it closes. Each event is fully
// handled before the next one is read.
func (w *Watcher) Consume(ctx context.Context, stream watch.Interface) error {
	defer stream.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.ResultChan():
			if !ok {
				return nil
			}
			err := w.processEvent(ctx, ev)
			if errors.Is(err, errWatchExpired) || (err != nil && w.diagnostic) {
				return err
			}
		}
	}
}

// processEvent applies the modified/no-finalizer filter and routes the job.
// Errors are logged and counted here; they are returned for diagnostic mode.
func (w *Watcher) processEvent(ctx context.Context, ev watch.Event) (err error) {
	telemetry.EventsReceived.WithLabelValues(string(ev.Type)).Inc()
	switch ev.Type {
	case watch.Error:
		if isExpired(apierrors.FromObject(ev.Object)) {
			return errWatchExpired
		}
		w.log.Warn("job watch reported an error event", "object", ev.Object)
		telemetry.EventsSkipped.Inc()
		return nil
	case watch.Bookmark:
		w.trackVersion(ev.Object)
		return nil
	}

	w.trackVersion(ev.Object)
	if ev.Type != watch.Modified {
		telemetry.EventsSkipped.Inc()
		return nil
	}

	job, ok := ev.Object.(*batchv1.Job)
	if !ok {
		err = fmt.Errorf("%w: unexpected object %T", ErrMalformedEvent, ev.Object)
		w.recordError(w.log, err)
		return err
	}
	if len(job.Finalizers) > 0 {
		telemetry.EventsSkipped.Inc()
		return nil
	}

	eventID := uuid.NewString()
	log := w.log.With("event_id", eventID, "job", job.Name, "namespace", job.Namespace)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling job %s: %v", job.Name, r)
			w.recordError(log, err)
		}
	}()

	if err = w.route(ctx, job, eventID, log); err != nil {
		w.recordError(log, err)
		return err
	}
	return nil
}

func (w *Watcher) trackVersion(obj runtime.Object) {
	m, err := meta.Accessor(obj)
	if err != nil || m.GetResourceVersion() == "" {
		return
	}
	w.resourceVersion = m.GetResourceVersion()
}

func isExpired(err error) bool {
	return apierrors.IsResourceExpired(err) || apierrors.IsGone(err)
}

func (w *Watcher) recordError(log *slog.Logger, err error) {
	telemetry.EventErrors.WithLabelValues(errorKind(err)).Inc()
	log.Error("Internal Error", "error", err)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, failure.ErrMissingSourceID):
		return "missing_source_id"
	case errors.Is(err, resolver.ErrResourceNotFound):
		return "resource_not_found"
	case errors.Is(err, resolver.ErrInvalidItem):
		return "invalid_item"
	case errors.Is(err, ErrMalformedEvent):
		return "malformed_event"
	default:
		return "internal"
	}
}
