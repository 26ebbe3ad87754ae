package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/classtrack/attendance-ledger/internal/application/command"
	"github.com/classtrack/attendance-ledger/internal/application/query"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROOT & HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot returns API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	info := map[string]interface{}{
		"name":    "ClassTrack Attendance Ledger API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":    "/health",
			"subjects":  "/api/v1/subjects",
			"due":       "/api/v1/classes/due",
			"summaries": "/api/v1/summary",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth returns overall health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"uptime":  s.Uptime().String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())

	httpStatus := http.StatusOK
	if !status.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, status)
}

// handleReady returns readiness status.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSONError(w, http.StatusServiceUnavailable, "not_ready", "Service is not ready")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// handleLive returns liveness status. Always 200 while the process serves.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS (WRITE SIDE)
// ══════════════════════════════════════════════════════════════════════════════

type enrollSubjectRequest struct {
	Name              string  `json:"name"`
	StartedAt         string  `json:"started_at"`
	MinimumPercentage float64 `json:"minimum_percentage,omitempty"`
}

// handleEnrollSubject creates a new subject.
// POST /api/v1/subjects
func (s *Server) handleEnrollSubject(w http.ResponseWriter, r *http.Request) {
	if s.deps.EnrollSubjectHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "handler_unavailable", "Enrollment is not available")
		return
	}

	var req enrollSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	startedAt, err := parseDateField(req.StartedAt)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_date", "started_at must be YYYY-MM-DD")
		return
	}

	cmd := command.EnrollSubjectCommand{
		Name:              req.Name,
		StartedAt:         startedAt,
		MinimumPercentage: req.MinimumPercentage,
		CorrelationID:     getRequestID(r.Context()),
	}

	result, err := s.deps.EnrollSubjectHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

type upsertScheduleRequest struct {
	Slots []slotRequest `json:"slots"`
}

type slotRequest struct {
	ID    string `json:"id,omitempty"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
	Room  string `json:"room,omitempty"`
}

// handleUpsertSchedule replaces the slot list for one weekday.
// PUT /api/v1/subjects/{id}/schedule/{weekday}
func (s *Server) handleUpsertSchedule(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpsertScheduleHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "handler_unavailable", "Schedule editing is not available")
		return
	}

	var req upsertScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	slots := make([]command.SlotInput, 0, len(req.Slots))
	for _, sl := range req.Slots {
		slots = append(slots, command.SlotInput{
			ID:    sl.ID,
			Start: sl.Start,
			End:   sl.End,
			Room:  sl.Room,
		})
	}

	cmd := command.UpsertScheduleCommand{
		SubjectID:     r.PathValue("id"),
		Weekday:       r.PathValue("weekday"),
		Slots:         slots,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.UpsertScheduleHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type markAttendanceRequest struct {
	SlotID string `json:"slot_id"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

// handleMarkAttendance records a status decision for one class occurrence.
// POST /api/v1/subjects/{id}/attendance
func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	if s.deps.MarkAttendanceHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "handler_unavailable", "Attendance marking is not available")
		return
	}

	var req markAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	date, err := parseDateField(req.Date)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	cmd := command.MarkAttendanceCommand{
		SubjectID:     r.PathValue("id"),
		SlotID:        req.SlotID,
		Date:          date,
		Status:        req.Status,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.MarkAttendanceHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type toggleHolidayRequest struct {
	Date string `json:"date"`
}

// handleToggleHoliday flips the holiday flag for a calendar date.
// POST /api/v1/subjects/{id}/holiday
func (s *Server) handleToggleHoliday(w http.ResponseWriter, r *http.Request) {
	if s.deps.ToggleHolidayHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "handler_unavailable", "Holiday toggling is not available")
		return
	}

	var req toggleHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	date, err := parseDateField(req.Date)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	cmd := command.ToggleHolidayCommand{
		SubjectID:     r.PathValue("id"),
		Date:          date,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.ToggleHolidayHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY HANDLERS (READ SIDE)
// ══════════════════════════════════════════════════════════════════════════════

// handleGetDueClasses returns classes due on a date.
// GET /api/v1/classes/due?date=YYYY-MM-DD&subject_id=...
func (s *Server) handleGetDueClasses(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetDueClassesHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "handler_unavailable", "Due class listing is not available")
		return
	}

	date := time.Now().UTC()
	if raw := getQueryParam(r, "date", ""); raw != "" {
		parsed, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	q := query.GetDueClassesQuery{
		Date:      date,
		SubjectID: getQueryParam(r, "subject_id", ""),
	}

	result, err := s.deps.GetDueClassesHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetSummaries returns attendance summaries for all subjects.
// GET /api/v1/summary?skip_cache=true
func (s *Server) handleGetSummaries(w http.ResponseWriter, r *http.Request) {
	s.serveSummary(w, r, "")
}

// handleGetSubjectSummary returns the attendance summary for one subject.
// GET /api/v1/subjects/{id}/summary
func (s *Server) handleGetSubjectSummary(w http.ResponseWriter, r *http.Request) {
	s.serveSummary(w, r, r.PathValue("id"))
}

func (s *Server) serveSummary(w http.ResponseWriter, r *http.Request, subjectID string) {
	if s.deps.GetAttendanceSummaryHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "handler_unavailable", "Summaries are not available")
		return
	}

	q := query.GetAttendanceSummaryQuery{
		SubjectID: subjectID,
		SkipCache: getQueryParamBool(r, "skip_cache"),
	}

	result, err := s.deps.GetAttendanceSummaryHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{
		TotalCount: len(result.Summaries),
	})
}

// handleGetAuditLog returns the audit trail for one subject.
// GET /api/v1/subjects/{id}/audit?from=YYYY-MM-DD&to=YYYY-MM-DD&page=1&page_size=20
func (s *Server) handleGetAuditLog(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetAuditLogHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "handler_unavailable", "Audit log is not available")
		return
	}

	var from, to time.Time
	if raw := getQueryParam(r, "from", ""); raw != "" {
		parsed, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_date", "from must be YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if raw := getQueryParam(r, "to", ""); raw != "" {
		parsed, err := timeutil.ParseDate(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_date", "to must be YYYY-MM-DD")
			return
		}
		to = parsed
	}

	q := query.GetAuditLogQuery{
		SubjectID: r.PathValue("id"),
		From:      from,
		To:        to,
		Pagination: shared.NewPagination(
			getQueryParamInt(r, "page", 1),
			getQueryParamInt(r, "page_size", shared.DefaultPageSize),
		),
	}

	result, err := s.deps.GetAuditLogHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{
		TotalCount: result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsAlreadyExists(err):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// parseDateField parses a required YYYY-MM-DD body field.
func parseDateField(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, shared.ErrInvalidInput
	}
	return timeutil.ParseDate(value)
}
