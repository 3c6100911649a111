package outbox

// SchemaCatalogEntry maps an event type to its JSON schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	"instance.created":       {Schema: instanceCreatedSchema},
	"instance.state_changed": {Schema: instanceStateChangedSchema},
	"schedule.invalidated":   {Schema: scheduleInvalidatedSchema},
}

const instanceCreatedSchema = `{
  "type": "object",
  "title": "InstanceCreated",
  "properties": {
    "instance_id": {"type": "string"},
    "template_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "shift": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "preferred_time": {"type": "string"},
    "auto_generated": {"type": "boolean"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["instance_id", "template_id", "activity_type", "shift", "date", "preferred_time", "auto_generated", "created_at"],
  "additionalProperties": false
}`

const instanceStateChangedSchema = `{
  "type": "object",
  "title": "InstanceStateChanged",
  "properties": {
    "instance_id": {"type": "string"},
    "template_id": {"type": "string"},
    "state": {"type": "string"},
    "action": {"type": "string"},
    "actor_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "reason": {"type": "string"}
  },
  "required": ["instance_id", "template_id", "state", "action", "occurred_at"],
  "additionalProperties": false
}`

const scheduleInvalidatedSchema = `{
  "type": "object",
  "title": "ScheduleInvalidated",
  "properties": {
    "template_id": {"type": "string"},
    "removed": {"type": "integer"},
    "from": {"type": "string", "format": "date"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["template_id", "removed", "from", "occurred_at"],
  "additionalProperties": false
}`
