package googlefit

import "strings"

// MetricKind is the canonical metric a Google Fit data source contributes to.
type MetricKind int

const (
	MetricUnknown MetricKind = iota
	MetricSteps
	MetricCalories
	MetricActiveMinutes
	MetricHeartMinutes
	MetricWeight
)

func (k MetricKind) String() string {
	switch k {
	case MetricSteps:
		return "steps"
	case MetricCalories:
		return "calories"
	case MetricActiveMinutes:
		return "active_minutes"
	case MetricHeartMinutes:
		return "heart_minutes"
	case MetricWeight:
		return "weight"
	default:
		return "unknown"
	}
}

const (
	dataTypeSteps         = "com.google.step_count.delta"
	dataTypeCalories      = "com.google.calories.expended"
	dataTypeActiveMinutes = "com.google.active_minutes"
	dataTypeHeartMinutes  = "com.google.heart_minutes"
	dataTypeWeight        = "com.google.weight"

	summarySuffix = ".summary"
)

var dataTypeKinds = map[string]MetricKind{
	dataTypeSteps:         MetricSteps,
	dataTypeCalories:      MetricCalories,
	dataTypeActiveMinutes: MetricActiveMinutes,
	dataTypeHeartMinutes:  MetricHeartMinutes,
	dataTypeWeight:        MetricWeight,
}

// Classify maps a data source id such as
// "derived:com.google.step_count.delta:com.google.android.gms:aggregated" to its
// metric. The id is split on ':' and each segment is looked up as a data type
// name, with the aggregate ".summary" suffix removed. Ids naming no known data
// type yield MetricUnknown.
func Classify(dataSourceID string) MetricKind {
	for _, segment := range strings.Split(dataSourceID, ":") {
		name := strings.TrimSuffix(segment, summarySuffix)
		if kind, ok := dataTypeKinds[name]; ok {
			return kind
		}
	}
	return MetricUnknown
}
