package domain

import (
	"sort"
	"time"
)

// DayStatus is the time-relative state of one scheduled item on the dashboard.
type DayStatus string

const (
	StatusOverdue  DayStatus = "overdue"
	StatusActive   DayStatus = "active"
	StatusUpcoming DayStatus = "upcoming"
	StatusPending  DayStatus = "pending"
	StatusDone     DayStatus = "done"
)

// ScheduledEvent is the minimal shape the day engine needs from any scheduled
// care event: activity instances, checkups, vitals readings, medication doses,
// or meals all fold into the same timeline through it.
type ScheduledEvent interface {
	EventID() string
	EventKind() string
	EventLabel() string
	EventScheduledAt() time.Time
	// EventCompletedAt reports the completion timestamp if a completion
	// record exists for the item.
	EventCompletedAt() (time.Time, bool)
	EventLink() string
}

// StatusWindows tunes the time-relative classification. The overdue threshold
// is deliberately a parameter, not a constant.
type StatusWindows struct {
	// ActiveWindow is how long past its scheduled time an uncompleted item
	// still counts as active before it turns overdue.
	ActiveWindow time.Duration
	// UpcomingHorizon is how far ahead an item counts as upcoming rather
	// than merely pending.
	UpcomingHorizon time.Duration
}

// DefaultStatusWindows returns the stock dashboard windows.
func DefaultStatusWindows() StatusWindows {
	return StatusWindows{
		ActiveWindow:    30 * time.Minute,
		UpcomingHorizon: time.Hour,
	}
}

// DayProcessItem is one entry of the derived dashboard timeline. It is
// produced fresh on every computation and never persisted.
type DayProcessItem struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Label       string     `json:"label"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      DayStatus  `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Link        string     `json:"link"`
}

// ComputeDayStatus folds heterogeneous scheduled events into one
// time-relative status list, sorted by scheduled time ascending. Events
// sharing a timestamp keep their input order.
func ComputeDayStatus(now time.Time, events []ScheduledEvent, windows StatusWindows) []DayProcessItem {
	items := make([]DayProcessItem, 0, len(events))
	for _, ev := range events {
		item := DayProcessItem{
			ID:          ev.EventID(),
			Kind:        ev.EventKind(),
			Label:       ev.EventLabel(),
			ScheduledAt: ev.EventScheduledAt(),
			Link:        ev.EventLink(),
		}

		if completedAt, done := ev.EventCompletedAt(); done {
			item.Status = StatusDone
			ts := completedAt
			item.CompletedAt = &ts
		} else {
			item.Status = classifyMoment(now, item.ScheduledAt, windows)
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ScheduledAt.Before(items[j].ScheduledAt)
	})
	return items
}

func classifyMoment(now, scheduled time.Time, w StatusWindows) DayStatus {
	elapsed := now.Sub(scheduled)
	switch {
	case elapsed >= 0 && elapsed <= w.ActiveWindow:
		return StatusActive
	case elapsed > 0:
		return StatusOverdue
	case -elapsed <= w.UpcomingHorizon:
		return StatusUpcoming
	default:
		return StatusPending
	}
}

// InstanceEvent adapts an activity Instance to the ScheduledEvent interface.
type InstanceEvent struct {
	Instance Instance
}

func (e InstanceEvent) EventID() string   { return e.Instance.ID }
func (e InstanceEvent) EventKind() string { return "activity" }

func (e InstanceEvent) EventLabel() string {
	p := e.Instance.Payload
	switch {
	case p.Defined != nil:
		return p.Defined.Name
	case e.Instance.Chosen != nil && e.Instance.Chosen.CustomName != "":
		return e.Instance.Chosen.CustomName
	default:
		return "Open activity slot"
	}
}

func (e InstanceEvent) EventScheduledAt() time.Time { return e.Instance.ScheduledAt() }

func (e InstanceEvent) EventCompletedAt() (time.Time, bool) {
	if e.Instance.State == StateCompleted && e.Instance.Execution != nil {
		return e.Instance.Execution.CompletedAt, true
	}
	return time.Time{}, false
}

func (e InstanceEvent) EventLink() string { return "/v1/instances/" + e.Instance.ID }
