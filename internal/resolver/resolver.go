// Package resolver turns the opaque source identifier carried by a pipeline
// job into a zone-bearing resource.
//
// Two lookup strategies exist: ItemResolver asks the metadata service for an
// item by id, GraphResolver runs label-scoped compatibility queries against the
// graph service. One of them is chosen at startup through a Factory.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"pipelinewatch/internal/config"
	"pipelinewatch/internal/models"
)

// ErrResourceNotFound is returned when no lookup located the source resource.
var ErrResourceNotFound = errors.New("source resource not found")

// ErrInvalidItem is returned when the metadata service answers with an item
// the zone rules cannot use.
var ErrInvalidItem = errors.New("invalid item")

// Resolver locates the resource a pipeline job was triggered for.
type Resolver interface {
	Resolve(ctx context.Context, sourceID string) (models.Resource, error)
}

// HTTPDoer is the part of *http.Client the resolvers use.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Factory binds a resolver strategy to an HTTP session.
type Factory func(client HTTPDoer) Resolver

// NewFactory selects the strategy configured by cfg.ResolverMode.
func NewFactory(cfg config.Config) (Factory, error) {
	switch strings.ToLower(cfg.ResolverMode) {
	case config.ResolverItem:
		base := cfg.MetadataService
		return func(client HTTPDoer) Resolver { return NewItemResolver(base, client) }, nil
	case config.ResolverGraph:
		base := cfg.GraphService
		return func(client HTTPDoer) Resolver { return NewGraphResolver(base, client) }, nil
	default:
		return nil, fmt.Errorf("unknown resolver mode %q", cfg.ResolverMode)
	}
}

func notFound(sourceID string) error {
	return fmt.Errorf("%w: %s", ErrResourceNotFound, sourceID)
}
