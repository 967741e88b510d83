package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"pipelinewatch/internal/models"
	"pipelinewatch/internal/telemetry"
)

const strategyGraph = "graph"

// graphLabels is the query order. Files win over folders and containers that
// share an identifier.
var graphLabels = []string{models.LabelFile, models.LabelFolder, models.LabelContainer}

// GraphResolver resolves legacy identifiers with label-scoped node queries.
type GraphResolver struct {
	endpoint string
	client   HTTPDoer
}

// NewGraphResolver targets {baseURL}/v2/nodes/query.
func NewGraphResolver(baseURL string, client HTTPDoer) *GraphResolver {
	return &GraphResolver{endpoint: baseURL + "/v2/nodes/query", client: client}
}

type graphQuery struct {
	Page      int             `json:"page"`
	PageSize  int             `json:"page_size"`
	Partial   bool            `json:"partial"`
	OrderBy   string          `json:"order_by"`
	OrderType string          `json:"order_type"`
	Query     graphQueryMatch `json:"query"`
}

type graphQueryMatch struct {
	ID     string   `json:"id"`
	Labels []string `json:"labels"`
}

type graphNode struct {
	ID     any      `json:"id"`
	Labels []string `json:"labels"`
}

type graphResponse struct {
	Result []graphNode `json:"result"`
}

// Resolve queries File, Folder then Container and returns the first match.
func (r *GraphResolver) Resolve(ctx context.Context, sourceID string) (models.Resource, error) {
	for _, label := range graphLabels {
		node, found, err := r.query(ctx, sourceID, label)
		if err != nil {
			telemetry.Lookups.WithLabelValues(strategyGraph, "error").Inc()
			return models.Resource{}, err
		}
		if !found {
			continue
		}
		telemetry.Lookups.WithLabelValues(strategyGraph, "found").Inc()
		id := sourceID
		if node.ID != nil {
			id = fmt.Sprint(node.ID)
		}
		return models.ResourceFromLabels(id, node.Labels), nil
	}
	telemetry.Lookups.WithLabelValues(strategyGraph, "not_found").Inc()
	return models.Resource{}, notFound(sourceID)
}

func (r *GraphResolver) query(ctx context.Context, sourceID, label string) (graphNode, bool, error) {
	payload, err := json.Marshal(graphQuery{
		Page:      0,
		PageSize:  1,
		Partial:   false,
		OrderBy:   "global_entity_id",
		OrderType: "desc",
		Query:     graphQueryMatch{ID: sourceID, Labels: []string{label}},
	})
	if err != nil {
		return graphNode{}, false, fmt.Errorf("marshal %s query: %w", label, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return graphNode{}, false, fmt.Errorf("build %s query: %w", label, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return graphNode{}, false, fmt.Errorf("query %s %s: %w", label, sourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return graphNode{}, false, nil
	}
	var body graphResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return graphNode{}, false, fmt.Errorf("decode %s query: %w", label, err)
	}
	if len(body.Result) == 0 {
		return graphNode{}, false, nil
	}
	return body.Result[0], true, nil
}
