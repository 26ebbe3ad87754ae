// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the ledger.
const (
	// Subject events
	EventSubjectEnrolled EventType = "subject.enrolled"
	EventSubjectDeleted  EventType = "subject.deleted"
	EventScheduleUpdated EventType = "subject.schedule_updated"

	// Record events
	EventRecordCreated       EventType = "record.created"
	EventRecordStatusChanged EventType = "record.status_changed"

	// Holiday events
	EventHolidayToggled EventType = "subject.holiday_toggled"

	// Aggregate events
	EventAggregateRebuilt EventType = "subject.aggregate_rebuilt"
	EventLowAttendance    EventType = "subject.low_attendance"

	// Notification events
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// WithCorrelationID returns a copy of the event carrying a correlation ID
// for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Subject Events
// ═══════════════════════════════════════════════════════════════════════════

// SubjectEnrolledEvent is emitted when a new subject is enrolled.
type SubjectEnrolledEvent struct {
	BaseEvent
	SubjectID string    `json:"subject_id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// Payload implements Event interface.
func (e SubjectEnrolledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_id": e.SubjectID,
		"name":       e.Name,
		"started_at": e.StartedAt.Format("2006-01-02"),
	}
}

// NewSubjectEnrolledEvent creates a new SubjectEnrolledEvent.
func NewSubjectEnrolledEvent(subjectID, name string, startedAt time.Time) SubjectEnrolledEvent {
	return SubjectEnrolledEvent{
		BaseEvent: NewBaseEvent(EventSubjectEnrolled, subjectID),
		SubjectID: subjectID,
		Name:      name,
		StartedAt: startedAt,
	}
}

// ScheduleUpdatedEvent is emitted when a subject's weekly schedule changes.
// Consumers recompute class reminders from the full schedule list.
type ScheduleUpdatedEvent struct {
	BaseEvent
	SubjectID     string `json:"subject_id"`
	Weekday       string `json:"weekday"`
	SlotCount     int    `json:"slot_count"`
	ReplacedSlots int    `json:"replaced_slots"` // slots that got a new identity
}

// Payload implements Event interface.
func (e ScheduleUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_id":     e.SubjectID,
		"weekday":        e.Weekday,
		"slot_count":     e.SlotCount,
		"replaced_slots": e.ReplacedSlots,
	}
}

// NewScheduleUpdatedEvent creates a new ScheduleUpdatedEvent.
func NewScheduleUpdatedEvent(subjectID, weekday string, slotCount, replacedSlots int) ScheduleUpdatedEvent {
	return ScheduleUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventScheduleUpdated, subjectID),
		SubjectID:     subjectID,
		Weekday:       weekday,
		SlotCount:     slotCount,
		ReplacedSlots: replacedSlots,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Record Events
// ═══════════════════════════════════════════════════════════════════════════

// RecordStatusChangedEvent is emitted when an attendance record transitions.
type RecordStatusChangedEvent struct {
	BaseEvent
	SubjectID string    `json:"subject_id"`
	RecordID  string    `json:"record_id"`
	SlotID    string    `json:"slot_id"`
	Date      time.Time `json:"date"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Attended  int       `json:"attended"` // aggregate counter after the transition
	Total     int       `json:"total"`
}

// Payload implements Event interface.
func (e RecordStatusChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_id": e.SubjectID,
		"record_id":  e.RecordID,
		"slot_id":    e.SlotID,
		"date":       e.Date.Format("2006-01-02"),
		"old_status": e.OldStatus,
		"new_status": e.NewStatus,
		"attended":   e.Attended,
		"total":      e.Total,
	}
}

// NewRecordStatusChangedEvent creates a new RecordStatusChangedEvent.
func NewRecordStatusChangedEvent(subjectID, recordID, slotID string, date time.Time, oldStatus, newStatus string, attended, total int) RecordStatusChangedEvent {
	return RecordStatusChangedEvent{
		BaseEvent: NewBaseEvent(EventRecordStatusChanged, subjectID),
		SubjectID: subjectID,
		RecordID:  recordID,
		SlotID:    slotID,
		Date:      date,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Attended:  attended,
		Total:     total,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Holiday Events
// ═══════════════════════════════════════════════════════════════════════════

// HolidayToggledEvent is emitted after a holiday bulk-toggle completes.
type HolidayToggledEvent struct {
	BaseEvent
	SubjectID string    `json:"subject_id"`
	Date      time.Time `json:"date"`
	IsHoliday bool      `json:"is_holiday"`
	Affected  int       `json:"affected"` // records touched by the toggle
}

// Payload implements Event interface.
func (e HolidayToggledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_id": e.SubjectID,
		"date":       e.Date.Format("2006-01-02"),
		"is_holiday": e.IsHoliday,
		"affected":   e.Affected,
	}
}

// NewHolidayToggledEvent creates a new HolidayToggledEvent.
func NewHolidayToggledEvent(subjectID string, date time.Time, isHoliday bool, affected int) HolidayToggledEvent {
	return HolidayToggledEvent{
		BaseEvent: NewBaseEvent(EventHolidayToggled, subjectID),
		SubjectID: subjectID,
		Date:      date,
		IsHoliday: isHoliday,
		Affected:  affected,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Aggregate Events
// ═══════════════════════════════════════════════════════════════════════════

// AggregateRebuiltEvent is emitted when a rescan repaired counter drift.
type AggregateRebuiltEvent struct {
	BaseEvent
	SubjectID   string `json:"subject_id"`
	OldAttended int    `json:"old_attended"`
	OldTotal    int    `json:"old_total"`
	NewAttended int    `json:"new_attended"`
	NewTotal    int    `json:"new_total"`
}

// Payload implements Event interface.
func (e AggregateRebuiltEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_id":   e.SubjectID,
		"old_attended": e.OldAttended,
		"old_total":    e.OldTotal,
		"new_attended": e.NewAttended,
		"new_total":    e.NewTotal,
	}
}

// NewAggregateRebuiltEvent creates a new AggregateRebuiltEvent.
func NewAggregateRebuiltEvent(subjectID string, oldAttended, oldTotal, newAttended, newTotal int) AggregateRebuiltEvent {
	return AggregateRebuiltEvent{
		BaseEvent:   NewBaseEvent(EventAggregateRebuilt, subjectID),
		SubjectID:   subjectID,
		OldAttended: oldAttended,
		OldTotal:    oldTotal,
		NewAttended: newAttended,
		NewTotal:    newTotal,
	}
}

// LowAttendanceEvent is emitted when a subject's percentage drops out of the
// "good" band after a transition.
type LowAttendanceEvent struct {
	BaseEvent
	SubjectID   string  `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Percentage  float64 `json:"percentage"`
	Requirement float64 `json:"requirement"`
	Band        string  `json:"band"`
}

// Payload implements Event interface.
func (e LowAttendanceEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"subject_id":   e.SubjectID,
		"subject_name": e.SubjectName,
		"percentage":   e.Percentage,
		"requirement":  e.Requirement,
		"band":         e.Band,
	}
}

// NewLowAttendanceEvent creates a new LowAttendanceEvent.
func NewLowAttendanceEvent(subjectID, subjectName string, percentage, requirement float64, band string) LowAttendanceEvent {
	return LowAttendanceEvent{
		BaseEvent:   NewBaseEvent(EventLowAttendance, subjectID),
		SubjectID:   subjectID,
		SubjectName: subjectName,
		Percentage:  percentage,
		Requirement: requirement,
		Band:        band,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
