package attendance

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY CONTRACTS
// Implemented by infrastructure. The in-memory Subject is the source of truth
// during a mutation; persistence follows.
// ══════════════════════════════════════════════════════════════════════════════

// SubjectRepository persists subjects with their schedules and aggregates.
type SubjectRepository interface {
	// Save upserts the subject row, its aggregate and schedule slots.
	Save(ctx context.Context, s *Subject) error

	// GetByID loads the full subject: schedules, aggregate, records and
	// audit history.
	GetByID(ctx context.Context, id string) (*Subject, error)

	// GetAll returns all enrolled subjects ordered by name, fully loaded.
	GetAll(ctx context.Context) ([]*Subject, error)

	// Delete removes the subject and everything it owns.
	Delete(ctx context.Context, id string) error
}

// RecordStore persists attendance records.
type RecordStore interface {
	// Insert writes a freshly resolved record.
	Insert(ctx context.Context, rec *Record) error

	// Save updates status and holiday flag of an existing record.
	Save(ctx context.Context, rec *Record) error

	// ListBySubject returns every record of the subject ordered by date.
	ListBySubject(ctx context.Context, subjectID string) ([]*Record, error)

	// ListByDate returns the subject's records on one calendar date.
	ListByDate(ctx context.Context, subjectID string, date time.Time) ([]*Record, error)
}

// AuditLogRepository persists the append-only history.
type AuditLogRepository interface {
	// Append writes one history entry for the subject.
	Append(ctx context.Context, subjectID string, entry AuditEntry) error

	// ListBySubject returns entries newest first within [from, to].
	ListBySubject(ctx context.Context, subjectID string, from, to time.Time) ([]AuditEntry, error)
}

// Summary is the read-model row served by the percentage evaluator.
type Summary struct {
	SubjectID   string  `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Attended    int     `json:"attended"`
	Total       int     `json:"total"`
	Percentage  float64 `json:"percentage"`
	Requirement float64 `json:"requirement"`
	Band        Band    `json:"band"`
}

// SummaryOf evaluates the subject's current summary.
func SummaryOf(s *Subject) Summary {
	return Summary{
		SubjectID:   s.ID,
		SubjectName: s.Name,
		Attended:    s.Aggregate.AttendedClasses,
		Total:       s.Aggregate.TotalClasses,
		Percentage:  s.Aggregate.Percentage(),
		Requirement: s.Aggregate.MinimumPercentage,
		Band:        s.Aggregate.Band(),
	}
}

// SummaryCache caches evaluated summaries; invalidated on every counter change.
type SummaryCache interface {
	Get(ctx context.Context, subjectID string) (*Summary, error)
	Set(ctx context.Context, summary Summary, ttl time.Duration) error
	Invalidate(ctx context.Context, subjectID string) error
}
