package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"pipelinewatch/internal/models"
	"pipelinewatch/internal/telemetry"
)

const strategyItem = "item"

// ItemResolver looks resources up directly by id in the metadata service.
type ItemResolver struct {
	endpoint string
	client   HTTPDoer
}

// NewItemResolver targets {baseURL}/v1.
func NewItemResolver(baseURL string, client HTTPDoer) *ItemResolver {
	return &ItemResolver{endpoint: baseURL + "/v1", client: client}
}

type itemResponse struct {
	Result *itemResult `json:"result"`
}

// itemResult keeps the zone optional so a missing field is not read as greenroom.
type itemResult struct {
	ID   string           `json:"id"`
	Zone *models.ItemZone `json:"zone"`
	Type models.ItemType  `json:"type"`
}

// Resolve fetches /v1/item/{id}. Any non-200 answer, or a 200 without an item,
// means the resource does not exist.
func (r *ItemResolver) Resolve(ctx context.Context, sourceID string) (models.Resource, error) {
	u := fmt.Sprintf("%s/item/%s", r.endpoint, url.PathEscape(sourceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Resource{}, fmt.Errorf("build item request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		telemetry.Lookups.WithLabelValues(strategyItem, "error").Inc()
		return models.Resource{}, fmt.Errorf("get item %s: %w", sourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		telemetry.Lookups.WithLabelValues(strategyItem, "not_found").Inc()
		return models.Resource{}, notFound(sourceID)
	}

	var body itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		telemetry.Lookups.WithLabelValues(strategyItem, "error").Inc()
		return models.Resource{}, fmt.Errorf("decode item %s: %w", sourceID, err)
	}
	if body.Result == nil || body.Result.ID == "" {
		telemetry.Lookups.WithLabelValues(strategyItem, "not_found").Inc()
		return models.Resource{}, notFound(sourceID)
	}
	it := body.Result
	if it.Zone == nil || (*it.Zone != models.ZoneGreenroom && *it.Zone != models.ZoneCore) {
		telemetry.Lookups.WithLabelValues(strategyItem, "error").Inc()
		return models.Resource{}, fmt.Errorf("%w: item %s has no valid zone", ErrInvalidItem, sourceID)
	}
	telemetry.Lookups.WithLabelValues(strategyItem, "found").Inc()
	return models.ResourceFromItem(models.Item{ID: it.ID, Zone: *it.Zone, Type: it.Type}), nil
}
