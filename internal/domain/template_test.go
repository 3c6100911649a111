package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestActivityPayloadValidate(t *testing.T) {
	valid := ActivityPayload{
		Modality: ModalityDefined,
		Defined:  &DefinedActivity{Name: "Walk", DurationMin: 30},
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name    string
		payload ActivityPayload
	}{
		{"missing variant", ActivityPayload{Modality: ModalityDefined}},
		{"wrong variant", ActivityPayload{Modality: ModalityDefined, OpenSlot: &OpenSlot{DurationMin: 30}}},
		{"both variants", ActivityPayload{
			Modality: ModalityOpenSlot,
			Defined:  &DefinedActivity{Name: "Walk", DurationMin: 30},
			OpenSlot: &OpenSlot{DurationMin: 30},
		}},
		{"blank name", ActivityPayload{Modality: ModalityDefined, Defined: &DefinedActivity{Name: "  ", DurationMin: 30}}},
		{"zero duration", ActivityPayload{Modality: ModalityDefined, Defined: &DefinedActivity{Name: "Walk"}}},
		{"zero slot duration", ActivityPayload{Modality: ModalityOpenSlot, OpenSlot: &OpenSlot{}}},
		{"unknown modality", ActivityPayload{Modality: "hybrid"}},
	}
	for _, tc := range cases {
		require.ErrorIs(t, tc.payload.Validate(), ErrValidation, tc.name)
	}
}

func TestTemplateValidateComputesShift(t *testing.T) {
	tmpl := ScheduleTemplate{
		Payload: ActivityPayload{
			Modality: ModalityDefined,
			Defined:  &DefinedActivity{Name: "Walk", DurationMin: 30},
		},
		ActivityType:  ActivityPhysical,
		PreferredTime: "15:30",
		Weekdays:      []time.Weekday{time.Monday, time.Thursday},
		// Any caller-supplied shift is overwritten.
		Shift: ShiftMorning,
	}

	require.NoError(t, tmpl.Validate(Boundaries{}))
	require.Equal(t, ShiftAfternoon, tmpl.Shift)
}

func TestTemplateValidateRejections(t *testing.T) {
	base := func() ScheduleTemplate {
		return ScheduleTemplate{
			Payload: ActivityPayload{
				Modality: ModalityDefined,
				Defined:  &DefinedActivity{Name: "Walk", DurationMin: 30},
			},
			ActivityType:  ActivityPhysical,
			PreferredTime: "09:30",
			Weekdays:      []time.Weekday{time.Monday},
		}
	}

	tmpl := base()
	tmpl.ActivityType = "social"
	require.ErrorIs(t, tmpl.Validate(Boundaries{}), ErrValidation)

	tmpl = base()
	tmpl.Weekdays = nil
	require.ErrorIs(t, tmpl.Validate(Boundaries{}), ErrValidation)

	tmpl = base()
	tmpl.Weekdays = []time.Weekday{time.Weekday(7)}
	require.ErrorIs(t, tmpl.Validate(Boundaries{}), ErrValidation)

	tmpl = base()
	tmpl.PreferredTime = "9:30"
	require.ErrorIs(t, tmpl.Validate(Boundaries{}), ErrValidation)
}

func TestOccursOn(t *testing.T) {
	tmpl := ScheduleTemplate{Weekdays: []time.Weekday{time.Monday, time.Friday}}
	require.True(t, tmpl.OccursOn(time.Monday))
	require.True(t, tmpl.OccursOn(time.Friday))
	require.False(t, tmpl.OccursOn(time.Sunday))
}

func TestSnapshotPayloadDoesNotAliasTemplateSlices(t *testing.T) {
	tmpl := ScheduleTemplate{
		ID: "tmpl-1",
		Payload: ActivityPayload{
			Modality: ModalityDefined,
			Defined:  &DefinedActivity{Name: "Walk", DurationMin: 30, Materials: []string{"shoes"}},
		},
		ActivityType:  ActivityPhysical,
		PreferredTime: "09:30",
	}
	date := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	inst := NewInstanceFromTemplate(tmpl, date, date)
	tmpl.Payload.Defined.Name = "Changed"
	tmpl.Payload.Defined.Materials[0] = "changed"

	require.Equal(t, "Walk", inst.Payload.Defined.Name)
	require.Equal(t, []string{"shoes"}, inst.Payload.Defined.Materials)
}
