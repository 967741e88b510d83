package watcher

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	batchv1client "k8s.io/client-go/kubernetes/typed/batch/v1"
)

// EventSource opens a server-pushed stream of job events starting after
// resourceVersion. An empty resourceVersion starts from the current state.
type EventSource interface {
	Watch(ctx context.Context, resourceVersion string) (watch.Interface, error)
}

// EventSourceFunc adapts a function to EventSource.
type EventSourceFunc func(ctx context.Context, resourceVersion string) (watch.Interface, error)

func (f EventSourceFunc) Watch(ctx context.Context, resourceVersion string) (watch.Interface, error) {
	return f(ctx, resourceVersion)
}

// clusterSource watches every job of one namespace.
type clusterSource struct {
	jobs batchv1client.JobInterface
}

func (s clusterSource) Watch(ctx context.Context, resourceVersion string) (watch.Interface, error) {
	return s.jobs.Watch(ctx, metav1.ListOptions{
		ResourceVersion:     resourceVersion,
		AllowWatchBookmarks: true,
	})
}
