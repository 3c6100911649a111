package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/careplan/internal/observability"
)

// Materialize expands every active template whose weekday set covers date into
// a dated pending instance. The deterministic instance id plus the store's
// conditional create make repeated and concurrent calls idempotent: an
// existing instance is skipped, never overwritten, so prior edits and state
// survive re-materialization.
//
// A failure writing one template's instance does not block the others; all
// failures are accumulated and returned alongside the count actually created.
func (s *Service) Materialize(ctx context.Context, date time.Time) (int, error) {
	day := NormalizeDate(date)

	templates, err := s.repo.ListTemplates(ctx, true)
	if err != nil {
		return 0, err
	}

	created := 0
	var failures []error
	for _, t := range templates {
		if !t.Active || !t.OccursOn(day.Weekday()) {
			continue
		}

		inst := NewInstanceFromTemplate(t, day, s.now())
		ok, err := s.repo.CreateInstanceIfAbsent(ctx, inst)
		if err != nil {
			failures = append(failures, fmt.Errorf("template %s: %w", t.ID, err))
			continue
		}
		if ok {
			created++
		}
	}

	observability.RecordMaterialization(created)
	return created, errors.Join(failures...)
}
