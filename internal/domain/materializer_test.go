package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/careplan/internal/domain"
	"example.com/careplan/internal/persistence/memory"
)

// fixedNow is a Monday.
var fixedNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*domain.Service, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	svc := domain.NewService(repo, domain.WithClock(func() time.Time { return fixedNow }))
	return svc, repo
}

func definedInput(preferredTime string, weekdays ...time.Weekday) domain.CreateTemplateInput {
	return domain.CreateTemplateInput{
		Payload: domain.ActivityPayload{
			Modality: domain.ModalityDefined,
			Defined: &domain.DefinedActivity{
				Name:        "Morning walk",
				DurationMin: 30,
				Materials:   []string{"walking shoes"},
			},
		},
		ActivityType:  domain.ActivityPhysical,
		PreferredTime: preferredTime,
		Weekdays:      weekdays,
		CreatedBy:     "coordinator-1",
	}
}

func openSlotInput(preferredTime string, weekdays ...time.Weekday) domain.CreateTemplateInput {
	return domain.CreateTemplateInput{
		Payload: domain.ActivityPayload{
			Modality: domain.ModalityOpenSlot,
			OpenSlot: &domain.OpenSlot{
				DurationMin: 45,
				OptionIDs:   []string{"opt-puzzle", "opt-music"},
			},
		},
		ActivityType:  domain.ActivityCognitive,
		PreferredTime: preferredTime,
		Weekdays:      weekdays,
		CreatedBy:     "coordinator-1",
	}
}

func TestMaterializeCreatesPendingInstance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tmpl, err := svc.CreateTemplate(ctx, definedInput("09:30", time.Monday))
	require.NoError(t, err)
	require.Equal(t, domain.ShiftMorning, tmpl.Shift)

	created, err := svc.Materialize(ctx, fixedNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	day := domain.NormalizeDate(fixedNow)
	inst, err := svc.GetInstance(ctx, domain.InstanceID(tmpl.ID, day))
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, inst.State)
	require.Equal(t, tmpl.ID, inst.TemplateID)
	require.Equal(t, domain.ShiftMorning, inst.Shift)
	require.Equal(t, "09:30", inst.PreferredTime)
	require.True(t, inst.AutoGenerated)
	require.Equal(t, "Morning walk", inst.Payload.Defined.Name)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tmpl, err := svc.CreateTemplate(ctx, definedInput("09:30", time.Monday))
	require.NoError(t, err)

	created, err := svc.Materialize(ctx, fixedNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	day := domain.NormalizeDate(fixedNow)
	id := domain.InstanceID(tmpl.ID, day)
	_, err = svc.Omit(ctx, id, "resident unwell", domain.Actor{ID: "carer-1"})
	require.NoError(t, err)

	created, err = svc.Materialize(ctx, fixedNow)
	require.NoError(t, err)
	require.Equal(t, 0, created)

	inst, err := svc.GetInstance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StateOmitted, inst.State)
	require.Equal(t, "resident unwell", inst.Omission.Reason)
}

func TestMaterializeSkipsNonMatchingWeekday(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.CreateTemplate(ctx, definedInput("09:30", time.Saturday))
	require.NoError(t, err)

	created, err := svc.Materialize(ctx, fixedNow)
	require.NoError(t, err)
	require.Equal(t, 0, created)
}

func TestMaterializeSkipsInactiveTemplate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tmpl, err := svc.CreateTemplate(ctx, definedInput("09:30", time.Monday))
	require.NoError(t, err)

	_, err = svc.OnTemplateDeactivated(ctx, tmpl.ID)
	require.NoError(t, err)

	created, err := svc.Materialize(ctx, fixedNow)
	require.NoError(t, err)
	require.Equal(t, 0, created)
}

func TestMaterializedSnapshotSurvivesTemplateEdit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tmpl, err := svc.CreateTemplate(ctx, definedInput("09:30", time.Monday))
	require.NoError(t, err)

	created, err := svc.Materialize(ctx, fixedNow)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	day := domain.NormalizeDate(fixedNow)
	id := domain.InstanceID(tmpl.ID, day)
	_, err = svc.CompleteDefined(ctx, id, domain.Actor{ID: "carer-1"}, domain.ExecutionInput{DurationMin: 25})
	require.NoError(t, err)

	// Completed instances are history; the edit must not reach into them.
	_, _, err = svc.UpdateTemplate(ctx, tmpl.ID, domain.UpdateTemplateInput{
		Payload: domain.ActivityPayload{
			Modality: domain.ModalityDefined,
			Defined:  &domain.DefinedActivity{Name: "Evening stretch", DurationMin: 20},
		},
		ActivityType:  domain.ActivityPhysical,
		PreferredTime: "18:00",
		Weekdays:      []time.Weekday{time.Monday},
	})
	require.NoError(t, err)

	inst, err := svc.GetInstance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Morning walk", inst.Payload.Defined.Name)
	require.Equal(t, "09:30", inst.PreferredTime)
}

// faultyRepo fails conditional creates for one template id.
type faultyRepo struct {
	domain.Repository
	failTemplateID string
}

func (r *faultyRepo) CreateInstanceIfAbsent(ctx context.Context, inst domain.Instance) (bool, error) {
	if inst.TemplateID == r.failTemplateID {
		return false, errors.New("write timeout")
	}
	return r.Repository.CreateInstanceIfAbsent(ctx, inst)
}

func TestMaterializeIsolatesPerTemplateFailures(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()

	base := domain.NewService(repo, domain.WithClock(func() time.Time { return fixedNow }))
	broken, err := base.CreateTemplate(ctx, definedInput("09:30", time.Monday))
	require.NoError(t, err)
	healthy, err := base.CreateTemplate(ctx, openSlotInput("15:00", time.Monday))
	require.NoError(t, err)

	svc := domain.NewService(&faultyRepo{Repository: repo, failTemplateID: broken.ID},
		domain.WithClock(func() time.Time { return fixedNow }))

	created, err := svc.Materialize(ctx, fixedNow)
	require.Error(t, err)
	require.Contains(t, err.Error(), broken.ID)
	require.Equal(t, 1, created)

	day := domain.NormalizeDate(fixedNow)
	inst, err := base.GetInstance(ctx, domain.InstanceID(healthy.ID, day))
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, inst.State)
}

func TestInstanceIDIsDeterministic(t *testing.T) {
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	a := domain.InstanceID("tmpl-1", day)
	b := domain.InstanceID("tmpl-1", day.Add(5*time.Hour))
	require.Equal(t, a, b)

	require.NotEqual(t, a, domain.InstanceID("tmpl-2", day))
	require.NotEqual(t, a, domain.InstanceID("tmpl-1", day.AddDate(0, 0, 1)))
}
