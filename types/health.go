package types

import "strings"

// CategoryLabel is the secondary label carried by every measurement node.
// The vector index is scoped to it.
const CategoryLabel = "HealthData"

// UserLabel is the label of the owning person node.
const UserLabel = "User"

// MeasurementKind identifies one of the four recorded wellness measurements.
type MeasurementKind string

const (
	KindFood  MeasurementKind = "Food"
	KindWater MeasurementKind = "Water"
	KindSleep MeasurementKind = "Sleep"
	KindStep  MeasurementKind = "Step"
)

// AllKinds lists the measurement kinds in keyword precedence order.
// Category detection walks this slice front to back.
var AllKinds = []MeasurementKind{KindFood, KindWater, KindSleep, KindStep}

type kindInfo struct {
	relationship string
	datasetKey   string
	keywords     []string
}

var kinds = map[MeasurementKind]kindInfo{
	KindFood:  {relationship: "HAS_ATE", datasetKey: "food_intake", keywords: []string{"food", "eat"}},
	KindWater: {relationship: "HAS_DRUNK", datasetKey: "water_intake", keywords: []string{"water", "drink"}},
	KindSleep: {relationship: "HAS_SLEPT", datasetKey: "sleep_hours", keywords: []string{"sleep"}},
	KindStep:  {relationship: "HAS_WALKED", datasetKey: "step_count", keywords: []string{"step", "walk"}},
}

// Label returns the graph node label of the kind.
func (k MeasurementKind) Label() string { return string(k) }

// Relationship returns the ownership edge type from User to the kind's nodes.
func (k MeasurementKind) Relationship() string { return kinds[k].relationship }

// DatasetKey returns the key of the ingestion table carrying this kind.
func (k MeasurementKind) DatasetKey() string { return kinds[k].datasetKey }

// Keywords returns the lowercase keyword family that selects this kind.
func (k MeasurementKind) Keywords() []string {
	return append([]string(nil), kinds[k].keywords...)
}

// Valid reports whether k is one of the four known kinds.
func (k MeasurementKind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// KindForDataset maps a dataset key such as "food_intake" to its kind.
func KindForDataset(key string) (MeasurementKind, bool) {
	key = strings.TrimSpace(strings.ToLower(key))
	for _, k := range AllKinds {
		if kinds[k].datasetKey == key {
			return k, true
		}
	}
	return "", false
}

// ParseKind parses a label such as "food" or "Food".
func ParseKind(s string) (MeasurementKind, bool) {
	for _, k := range AllKinds {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, true
		}
	}
	return "", false
}
