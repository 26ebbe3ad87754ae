// Package attendance contains the domain model of the ClassTrack ledger.
//
// This is the core business logic of the system. The package defines:
//
//   - Entities: Subject, Schedule, ClassSlot, Record, AuditEntry
//   - Value Objects: Weekday, TimeOfDay, Status, Aggregate, Band
//   - Domain services: Resolver, Processor, HolidayToggle
//   - Repository interfaces implemented in infrastructure
//
// # The ledger model
//
// A Subject owns a weekly recurring timetable (Schedules of ClassSlots), an
// append-only audit log, and per-slot-per-day attendance Records. Records are
// created lazily by the Resolver the first time a date is visited, start out
// Canceled, and are mutated only by the Processor (single status transitions)
// or the HolidayToggle (bulk cancellation of a whole day).
//
// The subject's Aggregate carries two running counters:
//
//	TotalClasses    = count of records decided Attended or NotAttended
//	AttendedClasses = count of records decided Attended
//
// Every transition adjusts the counters incrementally by the exact derivative
// of that definition, so at any quiescent point the counters are reproducible
// by a full rescan of the record set (see Subject.Reconcile).
//
// # Mutation discipline
//
// The Processor is the only mutation path for record status and counters.
// Mutation of one subject must be serialized by the caller; the application
// layer holds one lock per subject. Persistence is a best-effort collaborator
// invoked after each mutation and never rolls back in-memory state.
package attendance
