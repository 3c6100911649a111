// Package domain implements the recurring-schedule core: weekly templates,
// their materialized dated instances, the instance lifecycle, and the
// day-status timeline used by the caregiving dashboard.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Modality discriminates the template payload variant.
type Modality string

const (
	ModalityDefined  Modality = "defined"
	ModalityOpenSlot Modality = "open_slot"
)

// ActivityType is the broad class of care activity.
type ActivityType string

const (
	ActivityPhysical  ActivityType = "physical"
	ActivityCognitive ActivityType = "cognitive"
)

// DefinedActivity fully specifies an activity in advance.
type DefinedActivity struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	DurationMin int      `json:"duration_min"`
	Location    string   `json:"location,omitempty"`
	Materials   []string `json:"materials,omitempty"`
	EnergyLevel string   `json:"energy_level,omitempty"`
}

// OpenSlot reserves time for an activity chosen by the caregiver at completion.
type OpenSlot struct {
	DurationMin  int      `json:"duration_min"`
	Instructions string   `json:"instructions,omitempty"`
	OptionIDs    []string `json:"option_ids,omitempty"`
}

// ActivityPayload is the tagged union carried by templates and snapshotted
// into instances. Exactly one variant is populated, matching Modality.
type ActivityPayload struct {
	Modality Modality         `json:"modality"`
	Defined  *DefinedActivity `json:"defined,omitempty"`
	OpenSlot *OpenSlot        `json:"open_slot,omitempty"`
}

// Validate checks the variant matches the modality tag.
func (p ActivityPayload) Validate() error {
	switch p.Modality {
	case ModalityDefined:
		if p.Defined == nil || p.OpenSlot != nil {
			return fmt.Errorf("%w: defined modality requires exactly the defined payload", ErrValidation)
		}
		if strings.TrimSpace(p.Defined.Name) == "" {
			return fmt.Errorf("%w: defined activity name is required", ErrValidation)
		}
		if p.Defined.DurationMin <= 0 {
			return fmt.Errorf("%w: defined activity duration must be positive", ErrValidation)
		}
	case ModalityOpenSlot:
		if p.OpenSlot == nil || p.Defined != nil {
			return fmt.Errorf("%w: open_slot modality requires exactly the open slot payload", ErrValidation)
		}
		if p.OpenSlot.DurationMin <= 0 {
			return fmt.Errorf("%w: open slot duration must be positive", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown modality %q", ErrValidation, p.Modality)
	}
	return nil
}

// ScheduleTemplate is a recurring weekly rule describing when and what class
// of activity should occur. Templates are deactivated rather than deleted so
// history that references them stays resolvable.
type ScheduleTemplate struct {
	ID            string
	Payload       ActivityPayload
	ActivityType  ActivityType
	Shift         Shift
	PreferredTime string
	Weekdays      []time.Weekday
	Active        bool
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OccursOn reports whether the template's weekday set includes day.
func (t ScheduleTemplate) OccursOn(day time.Weekday) bool {
	for _, wd := range t.Weekdays {
		if wd == day {
			return true
		}
	}
	return false
}

// Validate rejects malformed templates before any write. The shift field is
// recomputed from PreferredTime, so callers never supply it directly.
func (t *ScheduleTemplate) Validate(b Boundaries) error {
	if err := t.Payload.Validate(); err != nil {
		return err
	}
	switch t.ActivityType {
	case ActivityPhysical, ActivityCognitive:
	default:
		return fmt.Errorf("%w: unknown activity type %q", ErrValidation, t.ActivityType)
	}
	if len(t.Weekdays) == 0 {
		return fmt.Errorf("%w: at least one weekday is required", ErrValidation)
	}
	for _, wd := range t.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("%w: weekday index %d out of range", ErrValidation, wd)
		}
	}
	shift, err := Classify(t.PreferredTime, b)
	if err != nil {
		return err
	}
	t.Shift = shift
	return nil
}
