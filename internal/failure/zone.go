package failure

import (
	"strings"

	"pipelinewatch/internal/models"
)

// ZoneLabels are the configured names of the two zones.
type ZoneLabels struct {
	Green string
	Core  string
}

func (l ZoneLabels) green() string { return strings.ToLower(l.Green) }
func (l ZoneLabels) core() string  { return strings.ToLower(l.Core) }

// ZoneRule derives the zone a failure is attributed to.
type ZoneRule interface {
	Zone(res models.Resource) string
}

// DeleteFailed attributes a failed deletion to the zone the resource lives in.
type DeleteFailed struct {
	Labels ZoneLabels
}

func (r DeleteFailed) Zone(res models.Resource) string {
	switch res.Zone {
	case models.ZoneGreenroom:
		return r.Labels.green()
	case models.ZoneCore:
		return r.Labels.core()
	case models.ZoneUnknown:
		if res.HasLabel(r.Labels.Green) {
			return r.Labels.green()
		}
	}
	return r.Labels.core()
}

// TransferFailed always blames the destination, which is core.
type TransferFailed struct {
	Labels ZoneLabels
}

func (r TransferFailed) Zone(models.Resource) string {
	return r.Labels.core()
}
