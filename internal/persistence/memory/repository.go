// Package memory provides an in-memory Repository for unit tests and local
// development. Semantics mirror the Postgres implementation, including the
// conditional create and the state-guarded instance update.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/careplan/internal/domain"
)

// Repository stores templates and instances behind a RWMutex.
type Repository struct {
	mu        sync.RWMutex
	templates map[string]domain.ScheduleTemplate
	instances map[string]domain.Instance
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		templates: make(map[string]domain.ScheduleTemplate),
		instances: make(map[string]domain.Instance),
	}
}

// CreateTemplate stores a new template.
func (r *Repository) CreateTemplate(_ context.Context, t domain.ScheduleTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

// GetTemplate returns the template or nil when absent.
func (r *Repository) GetTemplate(_ context.Context, id string) (*domain.ScheduleTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// ListTemplates returns templates ordered by creation time.
func (r *Repository) ListTemplates(_ context.Context, activeOnly bool) ([]domain.ScheduleTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ScheduleTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		if activeOnly && !t.Active {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateTemplate rewrites an existing template.
func (r *Repository) UpdateTemplate(_ context.Context, t domain.ScheduleTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.ID]; !ok {
		return domain.ErrTemplateNotFound
	}
	r.templates[t.ID] = t
	return nil
}

// SetTemplateActive flips the soft-delete flag.
func (r *Repository) SetTemplateActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return domain.ErrTemplateNotFound
	}
	t.Active = active
	r.templates[id] = t
	return nil
}

// CreateInstanceIfAbsent stores the instance unless its id already exists.
func (r *Repository) CreateInstanceIfAbsent(_ context.Context, inst domain.Instance) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[inst.ID]; ok {
		return false, nil
	}
	r.instances[inst.ID] = inst
	return true, nil
}

// GetInstance returns the instance or nil when absent.
func (r *Repository) GetInstance(_ context.Context, id string) (*domain.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, nil
	}
	return &inst, nil
}

// ListInstancesByDateRange returns instances dated within [from, to], ordered
// by (date, id) ascending with cursor pagination.
func (r *Repository) ListInstancesByDateRange(_ context.Context, from, to time.Time, cursor *domain.Cursor, limit int) ([]domain.Instance, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.Instance, 0)
	for _, inst := range r.instances {
		if inst.Date.Before(from) || inst.Date.After(to) {
			continue
		}
		matches = append(matches, inst)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Date.Equal(matches[j].Date) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Date.Before(matches[j].Date)
	})

	if cursor != nil {
		trimmed := matches[:0]
		for _, inst := range matches {
			if inst.Date.Before(cursor.Date) {
				continue
			}
			if inst.Date.Equal(cursor.Date) && inst.ID <= cursor.ID {
				continue
			}
			trimmed = append(trimmed, inst)
		}
		matches = trimmed
	}

	var next *domain.Cursor
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
		last := matches[len(matches)-1]
		next = &domain.Cursor{Date: last.Date, ID: last.ID}
	}
	return matches, next, nil
}

// UpdateInstanceGuarded rewrites the instance only while its stored state
// still equals expect.
func (r *Repository) UpdateInstanceGuarded(_ context.Context, inst domain.Instance, expect domain.InstanceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.instances[inst.ID]
	if !ok {
		return domain.ErrInstanceNotFound
	}
	if current.State != expect {
		return domain.ErrInvalidState
	}
	r.instances[inst.ID] = inst
	return nil
}

// DeletePendingInstancesFrom removes pending instances of the template dated
// from (inclusive) onward.
func (r *Repository) DeletePendingInstancesFrom(_ context.Context, templateID string, from time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, inst := range r.instances {
		if inst.TemplateID != templateID || inst.State != domain.StatePending || inst.Date.Before(from) {
			continue
		}
		delete(r.instances, id)
		removed++
	}
	return removed, nil
}
