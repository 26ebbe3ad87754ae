package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// RecordRepository implements attendance.RecordStore using PostgreSQL.
type RecordRepository struct {
	conn *Connection
}

// NewRecordRepository creates a new PostgreSQL record repository.
func NewRecordRepository(conn *Connection) *RecordRepository {
	return &RecordRepository{conn: conn}
}

// Insert writes a freshly resolved record. The (subject, slot, date) unique
// constraint makes a concurrent duplicate resolve a no-op.
func (r *RecordRepository) Insert(ctx context.Context, rec *attendance.Record) error {
	query := `
		INSERT INTO attendance_records (
			id, subject_id, slot_id, date, status, is_holiday, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subject_id, slot_id, date) DO NOTHING
	`
	_, err := r.conn.Exec(ctx, query,
		rec.ID, rec.SubjectID, rec.SlotID, rec.Date,
		string(rec.Status), rec.IsHoliday, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Save updates status and holiday flag of an existing record.
func (r *RecordRepository) Save(ctx context.Context, rec *attendance.Record) error {
	query := `
		UPDATE attendance_records
		SET status = $2, is_holiday = $3, updated_at = $4
		WHERE id = $1
	`
	tag, err := r.conn.Exec(ctx, query,
		rec.ID, string(rec.Status), rec.IsHoliday, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrRecordNotFound
	}
	return nil
}

// ListBySubject returns every record of the subject ordered by date.
func (r *RecordRepository) ListBySubject(ctx context.Context, subjectID string) ([]*attendance.Record, error) {
	query := `
		SELECT id, subject_id, slot_id, date, status, is_holiday, created_at, updated_at
		FROM attendance_records
		WHERE subject_id = $1
		ORDER BY date, created_at
	`
	return r.queryRecords(ctx, query, subjectID)
}

// ListByDate returns the subject's records on one calendar date.
func (r *RecordRepository) ListByDate(ctx context.Context, subjectID string, date time.Time) ([]*attendance.Record, error) {
	query := `
		SELECT id, subject_id, slot_id, date, status, is_holiday, created_at, updated_at
		FROM attendance_records
		WHERE subject_id = $1 AND date = $2
		ORDER BY created_at
	`
	return r.queryRecords(ctx, query, subjectID, timeutil.DayOf(date))
}

func (r *RecordRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*attendance.Record, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func scanRecord(row pgx.Row) (*attendance.Record, error) {
	var (
		rec       attendance.Record
		statusStr string
	)
	err := row.Scan(
		&rec.ID, &rec.SubjectID, &rec.SlotID, &rec.Date,
		&statusStr, &rec.IsHoliday, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	status, ok := attendance.ParseStatus(statusStr)
	if !ok {
		return nil, fmt.Errorf("stored record %s has invalid status %q", rec.ID, statusStr)
	}
	rec.Status = status

	return &rec, nil
}
