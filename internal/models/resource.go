package models

import "strings"

// ItemZone is the data-locality domain of a resource.
type ItemZone int

const (
	ZoneGreenroom ItemZone = 0
	ZoneCore      ItemZone = 1
	// ZoneUnknown marks resources resolved without an explicit zone field.
	ZoneUnknown ItemZone = -1
)

func (z ItemZone) String() string {
	switch z {
	case ZoneGreenroom:
		return "greenroom"
	case ZoneCore:
		return "core"
	default:
		return "unknown"
	}
}

// ItemType is the granularity of a resource.
type ItemType string

const (
	ItemTypeNameFolder ItemType = "name_folder"
	ItemTypeFolder     ItemType = "folder"
	ItemTypeFile       ItemType = "file"
	ItemTypeContainer  ItemType = "container"
)

// Graph node labels used by the compatibility query.
const (
	LabelFile      = "File"
	LabelFolder    = "Folder"
	LabelContainer = "Container"
	LabelTrashFile = "TrashFile"
)

// Item is the record returned by the metadata service. Unknown fields are ignored.
type Item struct {
	ID   string   `json:"id"`
	Zone ItemZone `json:"zone"`
	Type ItemType `json:"type"`
}

// Resource is a resolved source resource, whichever lookup produced it.
type Resource struct {
	ID     string
	Zone   ItemZone
	Type   ItemType
	Labels []string
}

// ResourceFromItem converts a metadata-service item.
func ResourceFromItem(it Item) Resource {
	return Resource{ID: it.ID, Zone: it.Zone, Type: it.Type}
}

// ResourceFromLabels builds a resource from graph node labels; zone stays unknown.
func ResourceFromLabels(id string, labels []string) Resource {
	r := Resource{ID: id, Zone: ZoneUnknown, Labels: labels}
	switch {
	case r.HasLabel(LabelFile), r.HasLabel(LabelTrashFile):
		r.Type = ItemTypeFile
	case r.HasLabel(LabelFolder):
		r.Type = ItemTypeFolder
	case r.HasLabel(LabelContainer):
		r.Type = ItemTypeContainer
	}
	return r
}

// HasLabel reports label membership, ignoring case.
func (r Resource) HasLabel(label string) bool {
	for _, l := range r.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}
