package googlefit

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"example.com/healthsync/internal/domain"
)

type rawBucket struct {
	StartTimeMillis json.RawMessage   `json:"startTimeMillis"`
	Dataset         []json.RawMessage `json:"dataset"`
}

type rawDataset struct {
	DataSourceID string            `json:"dataSourceId"`
	Point        []json.RawMessage `json:"point"`
}

type rawPoint struct {
	Value []rawValue `json:"value"`
}

type rawValue struct {
	IntVal *float64 `json:"intVal"`
	FpVal  *float64 `json:"fpVal"`
}

type dayTotals struct {
	steps, calories, active, heart float64
	weight                         float64
}

// Reconcile folds aggregate buckets into at most one activity row and one weight
// log per bucket, in bucket order. Buckets, datasets, and points that cannot be
// decoded are skipped. Sums are taken for step, calorie, active and heart
// minute points; for weight the last point wins. Rows whose metrics are all zero
// are not emitted.
func Reconcile(userID string, resp *AggregateResponse) ([]domain.DailyActivity, []domain.WeightLog) {
	if resp == nil {
		return nil, nil
	}

	var (
		activities []domain.DailyActivity
		weights    []domain.WeightLog
	)
	for _, raw := range resp.Buckets {
		var b rawBucket
		if err := json.Unmarshal(raw, &b); err != nil || b.Dataset == nil {
			continue
		}
		startMillis, ok := parseMillis(b.StartTimeMillis)
		if !ok {
			continue
		}
		day := domain.DayOf(time.UnixMilli(startMillis))

		totals := reduceBucket(b.Dataset)

		activity := domain.DailyActivity{
			UserID:        userID,
			Date:          day,
			Steps:         int64(math.Round(totals.steps)),
			Calories:      totals.calories,
			ActiveMinutes: totals.active,
			HeartMinutes:  totals.heart,
		}
		if activity.HasActivity() {
			activities = append(activities, activity)
		}
		if totals.weight > 0 {
			weights = append(weights, domain.WeightLog{
				UserID: userID,
				Date:   day,
				Weight: totals.weight,
				Source: domain.WeightSourceGoogleFit,
			})
		}
	}
	return activities, weights
}

func reduceBucket(datasets []json.RawMessage) dayTotals {
	var totals dayTotals
	for _, raw := range datasets {
		var ds rawDataset
		if err := json.Unmarshal(raw, &ds); err != nil || ds.DataSourceID == "" || ds.Point == nil {
			continue
		}
		kind := Classify(ds.DataSourceID)
		if kind == MetricUnknown {
			continue
		}
		for _, rawPt := range ds.Point {
			value, ok := pointValue(rawPt)
			if !ok {
				continue
			}
			switch kind {
			case MetricSteps:
				totals.steps += value
			case MetricCalories:
				totals.calories += value
			case MetricActiveMinutes:
				totals.active += value
			case MetricHeartMinutes:
				totals.heart += value
			case MetricWeight:
				totals.weight = value
			}
		}
	}
	return totals
}

// pointValue reads the first value entry, preferring fpVal over intVal.
// Negative and non-finite values are rejected.
func pointValue(raw json.RawMessage) (float64, bool) {
	var p rawPoint
	if err := json.Unmarshal(raw, &p); err != nil || len(p.Value) == 0 {
		return 0, false
	}
	first := p.Value[0]
	var v float64
	switch {
	case first.FpVal != nil:
		v = *first.FpVal
	case first.IntVal != nil:
		v = *first.IntVal
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// parseMillis accepts the int64-as-string encoding Google uses as well as a
// plain JSON number.
func parseMillis(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ms, err := strconv.ParseInt(s, 10, 64)
		return ms, err == nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if ms, err := n.Int64(); err == nil {
		return ms, true
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return int64(f), true
}
