package domain

import (
	"context"
	"fmt"

	"example.com/careplan/internal/observability"
)

// OnTemplateEdited deletes every pending, today-or-later instance of the
// template so the next materialization regenerates them from the edited data.
// Completed, omitted, and cancelled instances, and anything past-dated, are
// immutable history and never touched.
func (s *Service) OnTemplateEdited(ctx context.Context, templateID string) (int, error) {
	t, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return 0, err
	}
	if t == nil {
		return 0, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}

	removed, err := s.repo.DeletePendingInstancesFrom(ctx, templateID, NormalizeDate(s.now()))
	if err != nil {
		return 0, err
	}
	observability.RecordInvalidation(removed)
	return removed, nil
}

// OnTemplateDeactivated performs the same invalidation and then marks the
// template inactive so future materialization passes skip it.
func (s *Service) OnTemplateDeactivated(ctx context.Context, templateID string) (int, error) {
	removed, err := s.OnTemplateEdited(ctx, templateID)
	if err != nil {
		return removed, err
	}
	if err := s.repo.SetTemplateActive(ctx, templateID, false); err != nil {
		return removed, err
	}
	return removed, nil
}
