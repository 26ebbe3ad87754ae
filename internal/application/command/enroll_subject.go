// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL SUBJECT COMMAND
// Creates a subject with its enrollment start date and attendance requirement.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollSubjectCommand contains the data to enroll a new subject.
type EnrollSubjectCommand struct {
	// Name is the display name of the course.
	Name string

	// StartedAt is the enrollment start date; no classes are due before it.
	StartedAt time.Time

	// MinimumPercentage is the attendance requirement (0 = default).
	MinimumPercentage float64

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EnrollSubjectCommand) Validate() error {
	if c.Name == "" {
		return errors.New("enroll_subject: name is required")
	}
	if c.StartedAt.IsZero() {
		return errors.New("enroll_subject: started_at is required")
	}
	if c.MinimumPercentage < 0 || c.MinimumPercentage > 100 {
		return errors.New("enroll_subject: minimum_percentage must be in (0, 100]")
	}
	return nil
}

// EnrollSubjectResult contains the result of an enrollment.
type EnrollSubjectResult struct {
	// SubjectID is the identity of the new subject.
	SubjectID string

	// Name is the normalized display name.
	Name string

	// StartedAt is the enrollment start date at day granularity.
	StartedAt time.Time

	// MinimumPercentage is the effective requirement.
	MinimumPercentage float64

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EnrollSubjectHandler handles the EnrollSubjectCommand.
type EnrollSubjectHandler struct {
	subjectRepo attendance.SubjectRepository
	publisher   shared.EventPublisher
	log         *logger.Logger
}

// NewEnrollSubjectHandler creates a new EnrollSubjectHandler.
func NewEnrollSubjectHandler(
	subjectRepo attendance.SubjectRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *EnrollSubjectHandler {
	if log == nil {
		log = logger.Default()
	}
	return &EnrollSubjectHandler{
		subjectRepo: subjectRepo,
		publisher:   publisher,
		log:         log,
	}
}

// Handle executes the enrollment.
func (h *EnrollSubjectHandler) Handle(ctx context.Context, cmd EnrollSubjectCommand) (*EnrollSubjectResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("enroll_subject: validation failed: %w", err)
	}

	subject, err := attendance.NewSubject(attendance.NewSubjectParams{
		ID:                uuid.NewString(),
		Name:              cmd.Name,
		StartedAt:         cmd.StartedAt,
		MinimumPercentage: cmd.MinimumPercentage,
	})
	if err != nil {
		return nil, fmt.Errorf("enroll_subject: %w", err)
	}

	// Enrollment is the one write that must not be fire-and-forget: a subject
	// that was never persisted has no identity to address later.
	if err := h.subjectRepo.Save(ctx, subject); err != nil {
		return nil, fmt.Errorf("enroll_subject: failed to save subject: %w", err)
	}

	event := shared.NewSubjectEnrolledEvent(subject.ID, subject.Name, subject.StartedAt)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if h.publisher != nil {
		_ = h.publisher.Publish(event)
	}

	h.log.Info("subject enrolled",
		logger.String("subject_id", subject.ID),
		logger.String("name", subject.Name),
		logger.Date("started_at", subject.StartedAt),
	)

	return &EnrollSubjectResult{
		SubjectID:         subject.ID,
		Name:              subject.Name,
		StartedAt:         subject.StartedAt,
		MinimumPercentage: subject.Aggregate.MinimumPercentage,
		Events:            []shared.Event{event},
	}, nil
}
