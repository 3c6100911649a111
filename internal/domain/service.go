package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository captures persistence operations the scheduling core needs. The
// store is treated as a document store addressable by id: point reads, ranged
// queries, a conditional create, and guarded single-document writes.
type Repository interface {
	CreateTemplate(ctx context.Context, t ScheduleTemplate) error
	GetTemplate(ctx context.Context, id string) (*ScheduleTemplate, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]ScheduleTemplate, error)
	UpdateTemplate(ctx context.Context, t ScheduleTemplate) error
	SetTemplateActive(ctx context.Context, id string, active bool) error

	// CreateInstanceIfAbsent writes the instance only when no document with
	// its id exists yet. It reports whether a row was created. An existing
	// instance is left untouched, state included.
	CreateInstanceIfAbsent(ctx context.Context, inst Instance) (bool, error)
	GetInstance(ctx context.Context, id string) (*Instance, error)
	ListInstancesByDateRange(ctx context.Context, from, to time.Time, cursor *Cursor, limit int) ([]Instance, *Cursor, error)
	// UpdateInstanceGuarded rewrites the instance document only while its
	// persisted state still equals expect, failing with ErrInvalidState
	// otherwise. This per-document compare-and-set is the sole concurrency
	// guard lifecycle transitions rely on.
	UpdateInstanceGuarded(ctx context.Context, inst Instance, expect InstanceState) error
	// DeletePendingInstancesFrom removes pending instances of the template
	// dated from (inclusive) onward and returns how many were removed.
	DeletePendingInstancesFrom(ctx context.Context, templateID string, from time.Time) (int, error)
}

// Cursor models the pagination token for instance range queries.
type Cursor struct {
	Date time.Time
	ID   string
}

// Service orchestrates scheduling workflows over a Repository.
type Service struct {
	repo       Repository
	boundaries Boundaries
	now        func() time.Time
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the wall clock, letting tests pin "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBoundaries overrides the shift boundaries used for classification.
func WithBoundaries(b Boundaries) Option {
	return func(s *Service) { s.boundaries = b }
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		boundaries: DefaultBoundaries(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTemplateInput carries the payload from the API layer.
type CreateTemplateInput struct {
	Payload       ActivityPayload
	ActivityType  ActivityType
	PreferredTime string
	Weekdays      []time.Weekday
	CreatedBy     string
}

// CreateTemplate validates and persists a new weekly template.
func (s *Service) CreateTemplate(ctx context.Context, in CreateTemplateInput) (*ScheduleTemplate, error) {
	now := s.now()
	t := ScheduleTemplate{
		ID:            uuid.NewString(),
		Payload:       in.Payload,
		ActivityType:  in.ActivityType,
		PreferredTime: in.PreferredTime,
		Weekdays:      in.Weekdays,
		Active:        true,
		CreatedBy:     strings.TrimSpace(in.CreatedBy),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := t.Validate(s.boundaries); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTemplateInput carries a full replacement of the editable fields.
type UpdateTemplateInput struct {
	Payload       ActivityPayload
	ActivityType  ActivityType
	PreferredTime string
	Weekdays      []time.Weekday
}

// UpdateTemplate rewrites the template and invalidates its not-yet-acted-upon
// future instances so the next materialization regenerates them from the new
// data. It returns the updated template and how many instances were removed.
func (s *Service) UpdateTemplate(ctx context.Context, id string, in UpdateTemplateInput) (*ScheduleTemplate, int, error) {
	existing, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if existing == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	t := *existing
	t.Payload = in.Payload
	t.ActivityType = in.ActivityType
	t.PreferredTime = in.PreferredTime
	t.Weekdays = in.Weekdays
	t.UpdatedAt = s.now()
	if err := t.Validate(s.boundaries); err != nil {
		return nil, 0, err
	}
	if err := s.repo.UpdateTemplate(ctx, t); err != nil {
		return nil, 0, err
	}

	removed, err := s.OnTemplateEdited(ctx, id)
	return &t, removed, err
}

// GetTemplate fetches a template by id.
func (s *Service) GetTemplate(ctx context.Context, id string) (*ScheduleTemplate, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// ListTemplates returns templates, optionally only active ones.
func (s *Service) ListTemplates(ctx context.Context, activeOnly bool) ([]ScheduleTemplate, error) {
	return s.repo.ListTemplates(ctx, activeOnly)
}

// GetInstance fetches an instance by id.
func (s *Service) GetInstance(ctx context.Context, id string) (*Instance, error) {
	inst, err := s.repo.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return inst, nil
}

// ListInstances returns instances dated within [from, to] with cursor pagination.
func (s *Service) ListInstances(ctx context.Context, from, to time.Time, cursor *Cursor, limit int) ([]Instance, *Cursor, error) {
	if to.Before(from) {
		return nil, nil, fmt.Errorf("%w: range end precedes start", ErrValidation)
	}
	return s.repo.ListInstancesByDateRange(ctx, NormalizeDate(from), NormalizeDate(to), cursor, limit)
}
