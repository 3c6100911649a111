package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/careplan/internal/domain"
)

// TemplateRequest is the payload for creating or updating a template.
type TemplateRequest struct {
	Modality      string                  `json:"modality"`
	Defined       *domain.DefinedActivity `json:"defined,omitempty"`
	OpenSlot      *domain.OpenSlot        `json:"open_slot,omitempty"`
	ActivityType  string                  `json:"activity_type"`
	PreferredTime string                  `json:"preferred_time"`
	Weekdays      []int                   `json:"weekdays"`
}

// Validate ensures request correctness before it reaches the domain layer.
func (r TemplateRequest) Validate() error {
	if strings.TrimSpace(r.Modality) == "" {
		return errors.New("modality is required")
	}
	if strings.TrimSpace(r.ActivityType) == "" {
		return errors.New("activity_type is required")
	}
	if strings.TrimSpace(r.PreferredTime) == "" {
		return errors.New("preferred_time is required")
	}
	if len(r.Weekdays) == 0 {
		return errors.New("weekdays is required")
	}
	for _, wd := range r.Weekdays {
		if wd < 0 || wd > 6 {
			return fmt.Errorf("weekday %d out of range", wd)
		}
	}
	return nil
}

func (r TemplateRequest) payload() domain.ActivityPayload {
	return domain.ActivityPayload{
		Modality: domain.Modality(r.Modality),
		Defined:  r.Defined,
		OpenSlot: r.OpenSlot,
	}
}

func (r TemplateRequest) weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, len(r.Weekdays))
	for _, wd := range r.Weekdays {
		out = append(out, time.Weekday(wd))
	}
	return out
}

// TemplateView exposes a template to API consumers.
type TemplateView struct {
	ID            string                  `json:"id"`
	Modality      string                  `json:"modality"`
	Defined       *domain.DefinedActivity `json:"defined,omitempty"`
	OpenSlot      *domain.OpenSlot        `json:"open_slot,omitempty"`
	ActivityType  string                  `json:"activity_type"`
	PreferredTime string                  `json:"preferred_time"`
	Shift         string                  `json:"shift"`
	Weekdays      []int                   `json:"weekdays"`
	Active        bool                    `json:"active"`
	CreatedBy     string                  `json:"created_by,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func toTemplateView(t domain.ScheduleTemplate) TemplateView {
	weekdays := make([]int, 0, len(t.Weekdays))
	for _, wd := range t.Weekdays {
		weekdays = append(weekdays, int(wd))
	}
	return TemplateView{
		ID:            t.ID,
		Modality:      string(t.Payload.Modality),
		Defined:       t.Payload.Defined,
		OpenSlot:      t.Payload.OpenSlot,
		ActivityType:  string(t.ActivityType),
		PreferredTime: t.PreferredTime,
		Shift:         string(t.Shift),
		Weekdays:      weekdays,
		Active:        t.Active,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// InstanceView exposes a materialized instance to API consumers.
type InstanceView struct {
	ID            string                  `json:"id"`
	TemplateID    string                  `json:"template_id"`
	Modality      string                  `json:"modality"`
	Defined       *domain.DefinedActivity `json:"defined,omitempty"`
	OpenSlot      *domain.OpenSlot        `json:"open_slot,omitempty"`
	Chosen        *domain.ChosenActivity  `json:"chosen_activity,omitempty"`
	ActivityType  string                  `json:"activity_type"`
	Shift         string                  `json:"shift"`
	Date          string                  `json:"date"`
	PreferredTime string                  `json:"preferred_time"`
	State         string                  `json:"state"`
	Execution     *domain.Execution       `json:"execution,omitempty"`
	Omission      *domain.Omission        `json:"omission,omitempty"`
	AutoGenerated bool                    `json:"auto_generated"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func toInstanceView(inst domain.Instance) InstanceView {
	return InstanceView{
		ID:            inst.ID,
		TemplateID:    inst.TemplateID,
		Modality:      string(inst.Payload.Modality),
		Defined:       inst.Payload.Defined,
		OpenSlot:      inst.Payload.OpenSlot,
		Chosen:        inst.Chosen,
		ActivityType:  string(inst.ActivityType),
		Shift:         string(inst.Shift),
		Date:          inst.Date.Format(domain.DateLayout),
		PreferredTime: inst.PreferredTime,
		State:         string(inst.State),
		Execution:     inst.Execution,
		Omission:      inst.Omission,
		AutoGenerated: inst.AutoGenerated,
		CreatedAt:     inst.CreatedAt,
		UpdatedAt:     inst.UpdatedAt,
	}
}

// ListInstancesResponse packages paginated list results.
type ListInstancesResponse struct {
	Items      []InstanceView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// MaterializeRequest is the payload for POST /v1/schedule/materialize.
type MaterializeRequest struct {
	Date string `json:"date"`
}

// MaterializeResponse reports how many instances a pass created.
type MaterializeResponse struct {
	Date    string `json:"date"`
	Created int    `json:"created"`
}

// ExecutionRequest carries the caregiver's report for completions.
type ExecutionRequest struct {
	DurationMin   int    `json:"duration_min"`
	Participation string `json:"participation,omitempty"`
	Mood          string `json:"mood,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func (r ExecutionRequest) toInput() domain.ExecutionInput {
	return domain.ExecutionInput{
		DurationMin:   r.DurationMin,
		Participation: r.Participation,
		Mood:          r.Mood,
		Notes:         r.Notes,
	}
}

// CompleteOpenSlotRequest extends ExecutionRequest with the runtime choice.
type CompleteOpenSlotRequest struct {
	ExecutionRequest
	Chosen domain.ChosenActivity `json:"chosen_activity"`
}

// UpdateExecutionRequest corrects a completed record.
type UpdateExecutionRequest struct {
	ExecutionRequest
	Chosen *domain.ChosenActivity `json:"chosen_activity,omitempty"`
}

// OmitRequest carries the omission reason.
type OmitRequest struct {
	Reason string `json:"reason"`
}

// TemplateMutationResponse reports a template write plus any invalidation.
type TemplateMutationResponse struct {
	Template    TemplateView `json:"template"`
	Invalidated int          `json:"invalidated"`
}

// DeactivateResponse reports a deactivation plus its invalidation.
type DeactivateResponse struct {
	TemplateID  string `json:"template_id"`
	Active      bool   `json:"active"`
	Invalidated int    `json:"invalidated"`
}

// DayStatusResponse is the dashboard timeline for one day.
type DayStatusResponse struct {
	Date  string                  `json:"date"`
	Now   time.Time               `json:"now"`
	Items []domain.DayProcessItem `json:"items"`
}
