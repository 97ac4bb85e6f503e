package outbox

import "example.com/healthsync/internal/events"

// schemaCatalog maps each event type to the JSON schema registered for its subject.
var schemaCatalog = map[string]string{
	events.TypeActivitySynced: activitySyncedSchema,
	events.TypeWeightSynced:   weightSyncedSchema,
	events.TypeWeightLogged:   weightLoggedSchema,
}

const activitySyncedSchema = `{
  "type": "object",
  "title": "ActivitySynced",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "dates": {"type": "array", "items": {"type": "string", "format": "date"}},
    "total_steps": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "dates", "total_steps", "occurred_at"],
  "additionalProperties": false
}`

const weightSyncedSchema = `{
  "type": "object",
  "title": "WeightSynced",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "dates": {"type": "array", "items": {"type": "string", "format": "date"}},
    "latest_weight": {"type": "number"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "dates", "latest_weight", "occurred_at"],
  "additionalProperties": false
}`

const weightLoggedSchema = `{
  "type": "object",
  "title": "WeightLogged",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "weight": {"type": "number", "exclusiveMinimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "date", "weight", "occurred_at"],
  "additionalProperties": false
}`
