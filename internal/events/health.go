// Package events defines the payloads published when health records change.
package events

import "time"

// Event types recorded in the outbox.
const (
	TypeActivitySynced = "fit.activity_synced"
	TypeWeightSynced   = "fit.weight_synced"
	TypeWeightLogged   = "weight.logged"
)

// Route describes where an event type is delivered.
type Route struct {
	Topic         string
	SchemaSubject string
}

// Routes maps every event type to its Kafka topic and schema subject.
var Routes = map[string]Route{
	TypeActivitySynced: {Topic: "fit_activity_synced", SchemaSubject: "fit_activity_synced-value"},
	TypeWeightSynced:   {Topic: "fit_weight_synced", SchemaSubject: "fit_weight_synced-value"},
	TypeWeightLogged:   {Topic: "weight_logged", SchemaSubject: "weight_logged-value"},
}

// ActivitySynced is emitted when a sync upserts daily activity rows.
type ActivitySynced struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Dates      []string  `json:"dates"`
	TotalSteps int64     `json:"total_steps"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WeightSynced is emitted when a sync upserts weight logs from Google Fit.
type WeightSynced struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Dates      []string  `json:"dates"`
	Latest     float64   `json:"latest_weight"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WeightLogged is emitted for a manually entered weight.
type WeightLogged struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Date       string    `json:"date"`
	Weight     float64   `json:"weight"`
	OccurredAt time.Time `json:"occurred_at"`
}
