package domain

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the civil-date key used throughout the scheduling core.
const DateLayout = "2006-01-02"

// InstanceState is the lifecycle state of a materialized occurrence.
type InstanceState string

const (
	StatePending   InstanceState = "pending"
	StateCompleted InstanceState = "completed"
	StateOmitted   InstanceState = "omitted"
	StateCancelled InstanceState = "cancelled"
)

// instanceNamespace seeds the deterministic instance id derivation. Changing
// it would orphan every previously materialized instance.
var instanceNamespace = uuid.MustParse("b3a64d8e-52c1-4b88-9f6d-1f6f6f4de0c7")

// InstanceID derives the deterministic id for (template, date). It replaces a
// database uniqueness constraint: at most one instance can exist per pair, and
// regeneration after a partial failure can never duplicate.
func InstanceID(templateID string, date time.Time) string {
	key := templateID + "|" + date.Format(DateLayout)
	return uuid.NewSHA1(instanceNamespace, []byte(key)).String()
}

// NormalizeDate truncates a timestamp to midnight in its own location.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ChosenActivity records the caregiver's runtime choice when completing an
// open slot: either an allow-listed option reference or a free-form entry.
type ChosenActivity struct {
	OptionID   string `json:"option_id,omitempty"`
	CustomName string `json:"custom_name,omitempty"`
	PhotoURL   string `json:"photo_url,omitempty"`
}

// Execution captures how a completed instance actually went.
type Execution struct {
	ActorID       string    `json:"actor_id"`
	ActorName     string    `json:"actor_name,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
	DurationMin   int       `json:"duration_min"`
	Participation string    `json:"participation,omitempty"`
	Mood          string    `json:"mood,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// Omission records why a pending instance was skipped.
type Omission struct {
	Reason    string    `json:"reason"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	OmittedAt time.Time `json:"omitted_at"`
}

// Instance is one concrete dated occurrence materialized from a template.
// Payload is a value snapshot taken at creation time; later template edits
// never reach back into it.
type Instance struct {
	ID            string
	TemplateID    string
	ActivityType  ActivityType
	Shift         Shift
	Date          time.Time
	PreferredTime string
	Payload       ActivityPayload
	Chosen        *ChosenActivity
	State         InstanceState
	Execution     *Execution
	Omission      *Omission
	AutoGenerated bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ScheduledAt combines the instance date with its preferred clock time.
func (i Instance) ScheduledAt() time.Time {
	minute, err := ParseClockTime(i.PreferredTime)
	if err != nil {
		return i.Date
	}
	return i.Date.Add(time.Duration(minute) * time.Minute)
}

// NewInstanceFromTemplate snapshots a template into a pending instance for the
// given (already normalized) date.
func NewInstanceFromTemplate(t ScheduleTemplate, date time.Time, now time.Time) Instance {
	return Instance{
		ID:            InstanceID(t.ID, date),
		TemplateID:    t.ID,
		ActivityType:  t.ActivityType,
		Shift:         t.Shift,
		Date:          date,
		PreferredTime: t.PreferredTime,
		Payload:       snapshotPayload(t.Payload),
		State:         StatePending,
		AutoGenerated: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// snapshotPayload deep-copies the payload so the instance never aliases
// template-owned slices.
func snapshotPayload(p ActivityPayload) ActivityPayload {
	out := ActivityPayload{Modality: p.Modality}
	if p.Defined != nil {
		defined := *p.Defined
		defined.Materials = append([]string(nil), p.Defined.Materials...)
		out.Defined = &defined
	}
	if p.OpenSlot != nil {
		slot := *p.OpenSlot
		slot.OptionIDs = append([]string(nil), p.OpenSlot.OptionIDs...)
		out.OpenSlot = &slot
	}
	return out
}
