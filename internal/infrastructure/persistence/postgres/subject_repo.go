package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
)

// SubjectRepository implements attendance.SubjectRepository using PostgreSQL.
//
// A subject is stored across four tables: subjects (identity + aggregate),
// class_slots (timetable, flattened with a global position), attendance_records
// and audit_log. Save rewrites the timetable and appends the audit tail inside
// one transaction; records are written through RecordRepository and only read
// here.
type SubjectRepository struct {
	conn *Connection
}

// NewSubjectRepository creates a new PostgreSQL subject repository.
func NewSubjectRepository(conn *Connection) *SubjectRepository {
	return &SubjectRepository{conn: conn}
}

// Save upserts the subject row, rewrites its schedule slots and appends any
// audit entries not yet persisted.
func (r *SubjectRepository) Save(ctx context.Context, s *attendance.Subject) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		upsert := `
			INSERT INTO subjects (
				id, name, started_at, minimum_percentage,
				attended_classes, total_classes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				started_at = EXCLUDED.started_at,
				minimum_percentage = EXCLUDED.minimum_percentage,
				attended_classes = EXCLUDED.attended_classes,
				total_classes = EXCLUDED.total_classes,
				updated_at = EXCLUDED.updated_at
		`
		_, err := tx.Exec(ctx, upsert,
			s.ID, s.Name, s.StartedAt, s.Aggregate.MinimumPercentage,
			s.Aggregate.AttendedClasses, s.Aggregate.TotalClasses,
			s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert subject: %w", err)
		}

		if err := r.saveSlots(ctx, tx, s); err != nil {
			return err
		}

		return r.appendAuditTail(ctx, tx, s)
	})
}

// saveSlots replaces the stored timetable with the in-memory one. Position is
// global across schedule blocks so that blocks of the same weekday keep their
// declaration order.
func (r *SubjectRepository) saveSlots(ctx context.Context, tx pgx.Tx, s *attendance.Subject) error {
	if _, err := tx.Exec(ctx, "DELETE FROM class_slots WHERE subject_id = $1", s.ID); err != nil {
		return fmt.Errorf("failed to clear slots: %w", err)
	}

	insert := `
		INSERT INTO class_slots (id, subject_id, weekday, position, start_minutes, end_minutes, room)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	position := 0
	for _, schedule := range s.Schedules {
		for _, slot := range schedule.Slots {
			_, err := tx.Exec(ctx, insert,
				slot.ID, s.ID, string(schedule.Weekday), position,
				nullableMinutes(slot.Start), nullableMinutes(slot.End), slot.Room,
			)
			if err != nil {
				return fmt.Errorf("failed to insert slot %s: %w", slot.ID, err)
			}
			position++
		}
	}

	return nil
}

// appendAuditTail inserts the in-memory audit entries beyond the count already
// stored. The log is append-only, so the stored prefix never changes.
func (r *SubjectRepository) appendAuditTail(ctx context.Context, tx pgx.Tx, s *attendance.Subject) error {
	var stored int
	row := tx.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log WHERE subject_id = $1", s.ID)
	if err := row.Scan(&stored); err != nil {
		return fmt.Errorf("failed to count audit entries: %w", err)
	}

	if stored >= len(s.AuditLog) {
		return nil
	}

	insert := `
		INSERT INTO audit_log (subject_id, subject_name, action, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, entry := range s.AuditLog[stored:] {
		_, err := tx.Exec(ctx, insert, s.ID, entry.SubjectName, entry.Action, entry.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
	}

	return nil
}

// GetByID loads the full subject: schedules, aggregate, records and audit
// history.
func (r *SubjectRepository) GetByID(ctx context.Context, id string) (*attendance.Subject, error) {
	query := `
		SELECT id, name, started_at, minimum_percentage,
		       attended_classes, total_classes, created_at, updated_at
		FROM subjects
		WHERE id = $1
	`
	subject, err := scanSubject(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	if err := r.loadChildren(ctx, subject); err != nil {
		return nil, err
	}

	return subject, nil
}

// GetAll returns all enrolled subjects ordered by name, fully loaded.
func (r *SubjectRepository) GetAll(ctx context.Context) ([]*attendance.Subject, error) {
	query := `
		SELECT id, name, started_at, minimum_percentage,
		       attended_classes, total_classes, created_at, updated_at
		FROM subjects
		ORDER BY name, id
	`
	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []*attendance.Subject
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, subject := range subjects {
		if err := r.loadChildren(ctx, subject); err != nil {
			return nil, err
		}
	}

	return subjects, nil
}

// Delete removes the subject; slots, records and audit entries cascade.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, "DELETE FROM subjects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete subject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSubjectNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Loading helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *SubjectRepository) loadChildren(ctx context.Context, s *attendance.Subject) error {
	if err := r.loadSchedules(ctx, s); err != nil {
		return err
	}
	if err := r.loadRecords(ctx, s); err != nil {
		return err
	}
	return r.loadAuditLog(ctx, s)
}

func (r *SubjectRepository) loadSchedules(ctx context.Context, s *attendance.Subject) error {
	query := `
		SELECT id, weekday, start_minutes, end_minutes, room
		FROM class_slots
		WHERE subject_id = $1
		ORDER BY position
	`
	rows, err := r.conn.Query(ctx, query, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load slots: %w", err)
	}
	defer rows.Close()

	s.Schedules = nil
	for rows.Next() {
		var (
			slot       attendance.ClassSlot
			weekdayStr string
			start, end *int
		)
		if err := rows.Scan(&slot.ID, &weekdayStr, &start, &end, &slot.Room); err != nil {
			return fmt.Errorf("failed to scan slot: %w", err)
		}
		slot.Start = minutesOrUnset(start)
		slot.End = minutesOrUnset(end)

		weekday, ok := attendance.ParseWeekday(weekdayStr)
		if !ok {
			return fmt.Errorf("stored slot %s has invalid weekday %q", slot.ID, weekdayStr)
		}

		// Consecutive slots of one weekday form a schedule block.
		n := len(s.Schedules)
		if n > 0 && s.Schedules[n-1].Weekday == weekday {
			s.Schedules[n-1].Slots = append(s.Schedules[n-1].Slots, slot)
		} else {
			s.Schedules = append(s.Schedules, attendance.Schedule{
				Weekday: weekday,
				Slots:   []attendance.ClassSlot{slot},
			})
		}
	}

	return rows.Err()
}

func (r *SubjectRepository) loadRecords(ctx context.Context, s *attendance.Subject) error {
	query := `
		SELECT id, subject_id, slot_id, date, status, is_holiday, created_at, updated_at
		FROM attendance_records
		WHERE subject_id = $1
		ORDER BY date, created_at
	`
	rows, err := r.conn.Query(ctx, query, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	defer rows.Close()

	s.Records = nil
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		s.Records = append(s.Records, rec)
	}

	return rows.Err()
}

func (r *SubjectRepository) loadAuditLog(ctx context.Context, s *attendance.Subject) error {
	query := `
		SELECT subject_name, action, created_at
		FROM audit_log
		WHERE subject_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.conn.Query(ctx, query, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load audit log: %w", err)
	}
	defer rows.Close()

	s.AuditLog = nil
	for rows.Next() {
		var entry attendance.AuditEntry
		if err := rows.Scan(&entry.SubjectName, &entry.Action, &entry.Timestamp); err != nil {
			return fmt.Errorf("failed to scan audit entry: %w", err)
		}
		s.AuditLog = append(s.AuditLog, entry)
	}

	return rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanSubject(row pgx.Row) (*attendance.Subject, error) {
	var s attendance.Subject
	err := row.Scan(
		&s.ID, &s.Name, &s.StartedAt, &s.Aggregate.MinimumPercentage,
		&s.Aggregate.AttendedClasses, &s.Aggregate.TotalClasses,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func nullableMinutes(t attendance.TimeOfDay) *int {
	if !t.IsSet() {
		return nil
	}
	v := int(t)
	return &v
}

func minutesOrUnset(v *int) attendance.TimeOfDay {
	if v == nil {
		return attendance.TimeUnset
	}
	return attendance.TimeOfDay(*v)
}
