package googlefit

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

const (
	stepsSource    = "derived:com.google.step_count.delta:com.google.android.gms:aggregated"
	caloriesSource = "derived:com.google.calories.expended:com.google.android.gms:aggregated"
	activeSource   = "derived:com.google.active_minutes:com.google.android.gms:aggregated"
	heartSource    = "derived:com.google.heart_minutes.summary:com.google.android.gms:aggregated"
	weightSource   = "derived:com.google.weight.summary:com.google.android.gms:aggregated"
)

func TestReconcileSumsDailyMetrics(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	resp := aggregate(t,
		bucket(day,
			dataset(stepsSource, intPoint(1200), intPoint(800)),
			dataset(caloriesSource, fpPoint(50.5)),
		),
	)

	activities, weights := Reconcile("user-1", resp)
	require.Empty(t, weights)
	require.Equal(t, []domain.DailyActivity{{
		UserID:   "user-1",
		Date:     day,
		Steps:    2000,
		Calories: 50.5,
	}}, activities)
}

func TestReconcileWeightLastPointWins(t *testing.T) {
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	resp := aggregate(t, bucket(day, dataset(weightSource, fpPoint(82.0), fpPoint(81.5))))

	activities, weights := Reconcile("user-1", resp)
	require.Empty(t, activities)
	require.Equal(t, []domain.WeightLog{{
		UserID: "user-1",
		Date:   day,
		Weight: 81.5,
		Source: domain.WeightSourceGoogleFit,
	}}, weights)
}

func TestReconcileSkipsEmptyDays(t *testing.T) {
	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	resp := aggregate(t, bucket(day,
		dataset(stepsSource, intPoint(0)),
		dataset(heartSource),
		dataset(weightSource, fpPoint(0)),
	))

	activities, weights := Reconcile("user-1", resp)
	require.Empty(t, activities)
	require.Empty(t, weights)
}

func TestReconcilePrefersFloatValueAndFirstEntry(t *testing.T) {
	day := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	both := map[string]any{"value": []any{
		map[string]any{"intVal": 10, "fpVal": 12.5},
		map[string]any{"fpVal": 1000},
	}}
	resp := aggregate(t, bucket(day, dataset(heartSource, both)))

	activities, _ := Reconcile("user-1", resp)
	require.Len(t, activities, 1)
	require.Equal(t, 12.5, activities[0].HeartMinutes)
}

func TestReconcileSkipsIncompleteUnits(t *testing.T) {
	day := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	raw := []json.RawMessage{
		json.RawMessage(`{"dataset":[]}`),
		json.RawMessage(`{"startTimeMillis":"1710374400000"}`),
		json.RawMessage(`"not an object"`),
		mustJSON(t, map[string]any{
			"startTimeMillis": day.UnixMilli(),
			"dataset": []any{
				map[string]any{"point": []any{intPoint(99)}},
				map[string]any{"dataSourceId": stepsSource},
				map[string]any{"dataSourceId": stepsSource, "point": []any{
					map[string]any{"value": []any{}},
					map[string]any{"value": []any{map[string]any{"stringVal": "x"}}},
					map[string]any{"value": []any{map[string]any{"intVal": -5}}},
					intPoint(300),
				}},
			},
		}),
	}

	activities, weights := Reconcile("user-1", &AggregateResponse{Buckets: raw})
	require.Empty(t, weights)
	require.Len(t, activities, 1)
	require.Equal(t, int64(300), activities[0].Steps)
	require.Equal(t, day, activities[0].Date)
}

func TestReconcileIgnoresUnknownSources(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	resp := aggregate(t, bucket(day,
		dataset("derived:com.google.sleep.minutes:com.google.android.gms:merged", fpPoint(480)),
		dataset("raw:com.example.move_minutes:vendor", fpPoint(30)),
		dataset(activeSource, intPoint(45)),
	))

	activities, _ := Reconcile("user-1", resp)
	require.Len(t, activities, 1)
	require.Equal(t, 45.0, activities[0].ActiveMinutes)
	require.Zero(t, activities[0].HeartMinutes)
}

func TestReconcilePreservesBucketOrder(t *testing.T) {
	first := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 0, 1)
	resp := aggregate(t,
		bucket(first, dataset(stepsSource, intPoint(10))),
		bucket(second, dataset(stepsSource, intPoint(20))),
	)

	activities, _ := Reconcile("user-1", resp)
	require.Len(t, activities, 2)
	require.Equal(t, first, activities[0].Date)
	require.Equal(t, second, activities[1].Date)
}

func TestClassify(t *testing.T) {
	cases := map[string]MetricKind{
		stepsSource:    MetricSteps,
		caloriesSource: MetricCalories,
		activeSource:   MetricActiveMinutes,
		heartSource:    MetricHeartMinutes,
		weightSource:   MetricWeight,
		"derived:com.google.heart_minutes:com.google.android.gms:merge_heart_minutes": MetricHeartMinutes,
		"derived:com.google.move_minutes:com.google.android.gms:aggregated":           MetricUnknown,
		"": MetricUnknown,
	}
	for id, want := range cases {
		require.Equal(t, want, Classify(id), id)
	}
}

func aggregate(t *testing.T, buckets ...map[string]any) *AggregateResponse {
	t.Helper()
	resp := &AggregateResponse{}
	for _, b := range buckets {
		resp.Buckets = append(resp.Buckets, mustJSON(t, b))
	}
	return resp
}

func bucket(day time.Time, datasets ...map[string]any) map[string]any {
	ds := make([]any, 0, len(datasets))
	for _, d := range datasets {
		ds = append(ds, d)
	}
	return map[string]any{
		"startTimeMillis": strconvMillis(day),
		"endTimeMillis":   strconvMillis(day.Add(24 * time.Hour)),
		"dataset":         ds,
	}
}

func dataset(sourceID string, points ...map[string]any) map[string]any {
	pts := make([]any, 0, len(points))
	for _, p := range points {
		pts = append(pts, p)
	}
	return map[string]any{"dataSourceId": sourceID, "point": pts}
}

func intPoint(v int64) map[string]any {
	return map[string]any{"value": []any{map[string]any{"intVal": v}}}
}

func fpPoint(v float64) map[string]any {
	return map[string]any{"value": []any{map[string]any{"fpVal": v}}}
}

func strconvMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
