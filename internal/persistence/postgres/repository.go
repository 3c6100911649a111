// Package postgres provides pgx-backed persistence for schedule templates,
// activity instances, and the transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/careplan/internal/domain"
	"example.com/careplan/internal/events"
)

// Repository implements domain.Repository on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const templateColumns = `id, activity_type, payload, preferred_time, shift, weekdays, active, created_by, created_at, updated_at`

// CreateTemplate persists a new template.
func (r *Repository) CreateTemplate(ctx context.Context, t domain.ScheduleTemplate) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO schedule_templates (` + templateColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = r.pool.Exec(ctx, stmt,
		t.ID,
		t.ActivityType,
		payload,
		t.PreferredTime,
		t.Shift,
		weekdaysToInts(t.Weekdays),
		t.Active,
		t.CreatedBy,
		t.CreatedAt,
		t.UpdatedAt,
	)
	return err
}

// GetTemplate retrieves a template by id, returning nil when absent.
func (r *Repository) GetTemplate(ctx context.Context, id string) (*domain.ScheduleTemplate, error) {
	const query = `SELECT ` + templateColumns + ` FROM schedule_templates WHERE id=$1`

	row := r.pool.QueryRow(ctx, query, id)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// ListTemplates returns templates ordered by creation time.
func (r *Repository) ListTemplates(ctx context.Context, activeOnly bool) ([]domain.ScheduleTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM schedule_templates`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ScheduleTemplate, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTemplate rewrites an existing template.
func (r *Repository) UpdateTemplate(ctx context.Context, t domain.ScheduleTemplate) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return err
	}

	const stmt = `UPDATE schedule_templates
        SET activity_type=$2, payload=$3, preferred_time=$4, shift=$5, weekdays=$6, updated_at=$7
        WHERE id=$1`

	tag, err := r.pool.Exec(ctx, stmt,
		t.ID,
		t.ActivityType,
		payload,
		t.PreferredTime,
		t.Shift,
		weekdaysToInts(t.Weekdays),
		t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

// SetTemplateActive flips the soft-delete flag.
func (r *Repository) SetTemplateActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedule_templates SET active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

const instanceColumns = `id, template_id, activity_type, shift, date, preferred_time, payload, chosen, state, execution, omission, auto_generated, created_at, updated_at`

// CreateInstanceIfAbsent writes the instance with a conditional insert. The
// deterministic primary key plus ON CONFLICT DO NOTHING make this safe under
// concurrent materializers: the loser of the race simply reports created=false
// and the existing row, state included, is untouched.
func (r *Repository) CreateInstanceIfAbsent(ctx context.Context, inst domain.Instance) (bool, error) {
	cols, err := instanceValues(inst)
	if err != nil {
		return false, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO schedule_instances (` + instanceColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (id) DO NOTHING`

	tag, err := tx.Exec(ctx, stmt, cols...)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	if err := insertOutbox(ctx, tx, "instance.created", inst.TemplateID, inst.ID, events.InstanceCreated{
		InstanceID:    inst.ID,
		TemplateID:    inst.TemplateID,
		ActivityType:  string(inst.ActivityType),
		Shift:         string(inst.Shift),
		Date:          inst.Date.Format(domain.DateLayout),
		PreferredTime: inst.PreferredTime,
		AutoGenerated: inst.AutoGenerated,
		CreatedAt:     inst.CreatedAt,
	}); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// GetInstance retrieves an instance by id, returning nil when absent.
func (r *Repository) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM schedule_instances WHERE id=$1`

	row := r.pool.QueryRow(ctx, query, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inst, nil
}

// ListInstancesByDateRange returns instances dated within [from, to] ordered
// by (date, id) ascending, with keyset pagination.
func (r *Repository) ListInstancesByDateRange(ctx context.Context, from, to time.Time, cursor *domain.Cursor, limit int) ([]domain.Instance, *domain.Cursor, error) {
	fetch := limit
	if fetch <= 0 {
		fetch = 100
	}

	args := []interface{}{from, to, fetch + 1}
	query := `SELECT ` + instanceColumns + ` FROM schedule_instances WHERE date >= $1 AND date <= $2`
	if cursor != nil {
		query += ` AND (date, id) > ($4, $5)`
		args = append(args, cursor.Date, cursor.ID)
	}
	query += ` ORDER BY date, id LIMIT $3`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Instance, 0, fetch)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) > fetch {
		results = results[:fetch]
		last := results[len(results)-1]
		next = &domain.Cursor{Date: last.Date, ID: last.ID}
	}
	return results, next, nil
}

// UpdateInstanceGuarded rewrites the full instance document in one statement
// guarded by the expected prior state, and records the matching lifecycle
// event on the outbox in the same transaction.
func (r *Repository) UpdateInstanceGuarded(ctx context.Context, inst domain.Instance, expect domain.InstanceState) error {
	chosen, err := marshalNullable(inst.Chosen)
	if err != nil {
		return err
	}
	execution, err := marshalNullable(inst.Execution)
	if err != nil {
		return err
	}
	omission, err := marshalNullable(inst.Omission)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `UPDATE schedule_instances
        SET state=$3, chosen=$4, execution=$5, omission=$6, updated_at=$7
        WHERE id=$1 AND state=$2`

	tag, err := tx.Exec(ctx, stmt, inst.ID, expect, inst.State, chosen, execution, omission, inst.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schedule_instances WHERE id=$1)`, inst.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrInstanceNotFound
		}
		return domain.ErrInvalidState
	}

	event := events.InstanceStateChanged{
		InstanceID: inst.ID,
		TemplateID: inst.TemplateID,
		State:      string(inst.State),
		Action:     transitionAction(expect, inst),
		OccurredAt: inst.UpdatedAt,
	}
	if inst.Execution != nil {
		event.ActorID = inst.Execution.ActorID
	}
	if inst.Omission != nil {
		event.ActorID = inst.Omission.ActorID
		event.Reason = inst.Omission.Reason
	}
	if err := insertOutbox(ctx, tx, "instance.state_changed", inst.TemplateID, inst.ID, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeletePendingInstancesFrom removes pending instances of the template dated
// from (inclusive) onward and records one invalidation event for the batch.
func (r *Repository) DeletePendingInstancesFrom(ctx context.Context, templateID string, from time.Time) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM schedule_instances WHERE template_id=$1 AND state=$2 AND date >= $3`,
		templateID, domain.StatePending, from)
	if err != nil {
		return 0, err
	}

	removed := int(tag.RowsAffected())
	if removed > 0 {
		err := insertOutbox(ctx, tx, "schedule.invalidated", templateID, templateID, events.ScheduleInvalidated{
			TemplateID: templateID,
			Removed:    removed,
			From:       from.Format(domain.DateLayout),
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			return 0, err
		}
	}

	return removed, tx.Commit(ctx)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"instance.created": {
		Topic:         "care_instance_events",
		SchemaSubject: "care_instance_events-value",
	},
	"instance.state_changed": {
		Topic:         "care_instance_state_changed",
		SchemaSubject: "care_instance_state_changed-value",
	},
	"schedule.invalidated": {
		Topic:         "care_schedule_invalidated",
		SchemaSubject: "care_schedule_invalidated-value",
	},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, partitionKey, aggregateID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, time.Now().UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"instance",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

func transitionAction(expect domain.InstanceState, inst domain.Instance) string {
	switch {
	case expect == domain.StatePending && inst.State == domain.StateCompleted:
		return "complete"
	case expect == domain.StatePending && inst.State == domain.StateOmitted:
		return "omit"
	case expect == domain.StatePending && inst.State == domain.StateCancelled:
		return "cancel"
	case expect == domain.StateCompleted && inst.State == domain.StatePending:
		return "clear"
	case expect == domain.StateCompleted && inst.State == domain.StateCompleted:
		return "update_completed"
	default:
		return "unknown"
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*domain.ScheduleTemplate, error) {
	var (
		t        domain.ScheduleTemplate
		payload  []byte
		weekdays []int32
	)
	if err := row.Scan(
		&t.ID,
		&t.ActivityType,
		&payload,
		&t.PreferredTime,
		&t.Shift,
		&weekdays,
		&t.Active,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &t.Payload); err != nil {
		return nil, err
	}
	t.Weekdays = intsToWeekdays(weekdays)
	return &t, nil
}

func scanInstance(row rowScanner) (*domain.Instance, error) {
	var (
		inst      domain.Instance
		payload   []byte
		chosen    []byte
		execution []byte
		omission  []byte
	)
	if err := row.Scan(
		&inst.ID,
		&inst.TemplateID,
		&inst.ActivityType,
		&inst.Shift,
		&inst.Date,
		&inst.PreferredTime,
		&payload,
		&chosen,
		&inst.State,
		&execution,
		&omission,
		&inst.AutoGenerated,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &inst.Payload); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(chosen, &inst.Chosen); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(execution, &inst.Execution); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(omission, &inst.Omission); err != nil {
		return nil, err
	}
	return &inst, nil
}

func instanceValues(inst domain.Instance) ([]interface{}, error) {
	payload, err := json.Marshal(inst.Payload)
	if err != nil {
		return nil, err
	}
	chosen, err := marshalNullable(inst.Chosen)
	if err != nil {
		return nil, err
	}
	execution, err := marshalNullable(inst.Execution)
	if err != nil {
		return nil, err
	}
	omission, err := marshalNullable(inst.Omission)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		inst.ID,
		inst.TemplateID,
		inst.ActivityType,
		inst.Shift,
		inst.Date,
		inst.PreferredTime,
		payload,
		chosen,
		inst.State,
		execution,
		omission,
		inst.AutoGenerated,
		inst.CreatedAt,
		inst.UpdatedAt,
	}, nil
}

func marshalNullable[T any](v *T) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable[T any](raw []byte, dst **T) error {
	if len(raw) == 0 {
		*dst = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

func weekdaysToInts(days []time.Weekday) []int32 {
	out := make([]int32, 0, len(days))
	for _, d := range days {
		out = append(out, int32(d))
	}
	return out
}

func intsToWeekdays(raw []int32) []time.Weekday {
	out := make([]time.Weekday, 0, len(raw))
	for _, d := range raw {
		out = append(out, time.Weekday(d))
	}
	return out
}
