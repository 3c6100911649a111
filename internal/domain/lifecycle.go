package domain

import (
	"context"
	"fmt"
	"strings"

	"example.com/careplan/internal/observability"
)

// Actor identifies who performed a lifecycle action.
type Actor struct {
	ID   string
	Name string
}

// ExecutionInput carries the caregiver's report of how an activity went.
type ExecutionInput struct {
	DurationMin   int
	Participation string
	Mood          string
	Notes         string
}

func (in ExecutionInput) validate() error {
	if in.DurationMin <= 0 {
		return fmt.Errorf("%w: actual duration must be positive", ErrValidation)
	}
	return nil
}

// CompleteDefined transitions a pending defined-activity instance to
// completed, recording the execution block. The guarded write fails with
// ErrInvalidState if another caller got there first.
func (s *Service) CompleteDefined(ctx context.Context, id string, actor Actor, exec ExecutionInput) (*Instance, error) {
	if err := exec.validate(); err != nil {
		return nil, err
	}

	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Payload.Modality != ModalityDefined {
		return nil, fmt.Errorf("%w: instance %s is not a defined activity", ErrValidation, id)
	}
	if inst.State != StatePending {
		return nil, fmt.Errorf("%w: complete requires pending, have %s", ErrInvalidState, inst.State)
	}

	now := s.now()
	inst.State = StateCompleted
	inst.Execution = &Execution{
		ActorID:       actor.ID,
		ActorName:     actor.Name,
		CompletedAt:   now,
		DurationMin:   exec.DurationMin,
		Participation: exec.Participation,
		Mood:          exec.Mood,
		Notes:         exec.Notes,
	}
	inst.UpdatedAt = now

	if err := s.repo.UpdateInstanceGuarded(ctx, *inst, StatePending); err != nil {
		return nil, err
	}
	observability.RecordTransition("complete")
	return inst, nil
}

// CompleteOpenSlot transitions a pending open-slot instance to completed,
// recording both the runtime activity choice and the execution block. The
// choice must either reference an allow-listed option from the snapshot or be
// a free-form custom entry.
func (s *Service) CompleteOpenSlot(ctx context.Context, id string, chosen ChosenActivity, actor Actor, exec ExecutionInput) (*Instance, error) {
	if err := exec.validate(); err != nil {
		return nil, err
	}

	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Payload.Modality != ModalityOpenSlot {
		return nil, fmt.Errorf("%w: instance %s is not an open slot", ErrValidation, id)
	}
	if err := validateChoice(chosen, inst.Payload.OpenSlot); err != nil {
		return nil, err
	}
	if inst.State != StatePending {
		return nil, fmt.Errorf("%w: complete requires pending, have %s", ErrInvalidState, inst.State)
	}

	now := s.now()
	inst.State = StateCompleted
	inst.Chosen = &chosen
	inst.Execution = &Execution{
		ActorID:       actor.ID,
		ActorName:     actor.Name,
		CompletedAt:   now,
		DurationMin:   exec.DurationMin,
		Participation: exec.Participation,
		Mood:          exec.Mood,
		Notes:         exec.Notes,
	}
	inst.UpdatedAt = now

	if err := s.repo.UpdateInstanceGuarded(ctx, *inst, StatePending); err != nil {
		return nil, err
	}
	observability.RecordTransition("complete")
	return inst, nil
}

// UpdateCompleted corrects the execution record of an already completed
// instance, optionally replacing the chosen activity of an open slot. The
// original completion timestamp and actor are preserved.
func (s *Service) UpdateCompleted(ctx context.Context, id string, chosen *ChosenActivity, exec ExecutionInput) (*Instance, error) {
	if err := exec.validate(); err != nil {
		return nil, err
	}

	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.State != StateCompleted {
		return nil, fmt.Errorf("%w: update requires completed, have %s", ErrInvalidState, inst.State)
	}
	if chosen != nil {
		if inst.Payload.Modality != ModalityOpenSlot {
			return nil, fmt.Errorf("%w: cannot replace chosen activity on a defined instance", ErrValidation)
		}
		if err := validateChoice(*chosen, inst.Payload.OpenSlot); err != nil {
			return nil, err
		}
		inst.Chosen = chosen
	}

	inst.Execution.DurationMin = exec.DurationMin
	inst.Execution.Participation = exec.Participation
	inst.Execution.Mood = exec.Mood
	inst.Execution.Notes = exec.Notes
	inst.UpdatedAt = s.now()

	if err := s.repo.UpdateInstanceGuarded(ctx, *inst, StateCompleted); err != nil {
		return nil, err
	}
	observability.RecordTransition("update_completed")
	return inst, nil
}

// ClearCompleted undoes an erroneous completion: state returns to pending and
// the execution block and chosen activity are discarded.
func (s *Service) ClearCompleted(ctx context.Context, id string) (*Instance, error) {
	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.State != StateCompleted {
		return nil, fmt.Errorf("%w: clear requires completed, have %s", ErrInvalidState, inst.State)
	}

	inst.State = StatePending
	inst.Execution = nil
	inst.Chosen = nil
	inst.UpdatedAt = s.now()

	if err := s.repo.UpdateInstanceGuarded(ctx, *inst, StateCompleted); err != nil {
		return nil, err
	}
	observability.RecordTransition("clear")
	return inst, nil
}

// Omit marks a pending instance as skipped for the given reason. A blank
// reason is rejected before any write.
func (s *Service) Omit(ctx context.Context, id, reason string, actor Actor) (*Instance, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: omission reason must not be empty", ErrValidation)
	}

	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.State != StatePending {
		return nil, fmt.Errorf("%w: omit requires pending, have %s", ErrInvalidState, inst.State)
	}

	now := s.now()
	inst.State = StateOmitted
	inst.Omission = &Omission{
		Reason:    reason,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		OmittedAt: now,
	}
	inst.UpdatedAt = now

	if err := s.repo.UpdateInstanceGuarded(ctx, *inst, StatePending); err != nil {
		return nil, err
	}
	observability.RecordTransition("omit")
	return inst, nil
}

// Cancel administratively terminates a pending instance. No actor attribution
// is recorded.
func (s *Service) Cancel(ctx context.Context, id string) (*Instance, error) {
	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.State != StatePending {
		return nil, fmt.Errorf("%w: cancel requires pending, have %s", ErrInvalidState, inst.State)
	}

	inst.State = StateCancelled
	inst.UpdatedAt = s.now()

	if err := s.repo.UpdateInstanceGuarded(ctx, *inst, StatePending); err != nil {
		return nil, err
	}
	observability.RecordTransition("cancel")
	return inst, nil
}

func validateChoice(chosen ChosenActivity, slot *OpenSlot) error {
	hasOption := strings.TrimSpace(chosen.OptionID) != ""
	hasCustom := strings.TrimSpace(chosen.CustomName) != ""
	if hasOption == hasCustom {
		return fmt.Errorf("%w: chosen activity needs exactly one of option_id or custom_name", ErrValidation)
	}
	if hasOption && slot != nil && len(slot.OptionIDs) > 0 {
		for _, id := range slot.OptionIDs {
			if id == chosen.OptionID {
				return nil
			}
		}
		return fmt.Errorf("%w: option %s is not allow-listed for this slot", ErrValidation, chosen.OptionID)
	}
	return nil
}
