package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// AuditLogRepository implements attendance.AuditLogRepository using PostgreSQL.
type AuditLogRepository struct {
	conn *Connection
}

// NewAuditLogRepository creates a new PostgreSQL audit log repository.
func NewAuditLogRepository(conn *Connection) *AuditLogRepository {
	return &AuditLogRepository{conn: conn}
}

// Append writes one history entry for the subject.
func (r *AuditLogRepository) Append(ctx context.Context, subjectID string, entry attendance.AuditEntry) error {
	query := `
		INSERT INTO audit_log (subject_id, subject_name, action, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.conn.Exec(ctx, query, subjectID, entry.SubjectName, entry.Action, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListBySubject returns entries newest first within [from, to]. A zero "to"
// means no upper bound.
func (r *AuditLogRepository) ListBySubject(ctx context.Context, subjectID string, from, to time.Time) ([]attendance.AuditEntry, error) {
	if to.IsZero() {
		to = timeutil.EndOfDay(time.Now().UTC())
	}

	query := `
		SELECT subject_name, action, created_at
		FROM audit_log
		WHERE subject_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.conn.Query(ctx, query, subjectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []attendance.AuditEntry
	for rows.Next() {
		var entry attendance.AuditEntry
		if err := rows.Scan(&entry.SubjectName, &entry.Action, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
