package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-ledger/internal/application/command"
	"github.com/classtrack/attendance-ledger/internal/application/query"
	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/internal/interface/http/handlers"
	"github.com/classtrack/attendance-ledger/pkg/logger"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type memSubjectRepo struct {
	subjects map[string]*attendance.Subject
}

func newMemSubjectRepo() *memSubjectRepo {
	return &memSubjectRepo{subjects: make(map[string]*attendance.Subject)}
}

func (m *memSubjectRepo) Save(_ context.Context, s *attendance.Subject) error {
	m.subjects[s.ID] = s
	return nil
}

func (m *memSubjectRepo) GetByID(_ context.Context, id string) (*attendance.Subject, error) {
	s, ok := m.subjects[id]
	if !ok {
		return nil, shared.ErrSubjectNotFound
	}
	return s, nil
}

func (m *memSubjectRepo) GetAll(_ context.Context) ([]*attendance.Subject, error) {
	out := make([]*attendance.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	return out, nil
}

func (m *memSubjectRepo) Delete(_ context.Context, id string) error {
	delete(m.subjects, id)
	return nil
}

type memRecordStore struct {
	records map[string]*attendance.Record
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{records: make(map[string]*attendance.Record)}
}

func (m *memRecordStore) Insert(_ context.Context, rec *attendance.Record) error {
	m.records[rec.ID] = rec
	return nil
}

func (m *memRecordStore) Save(_ context.Context, rec *attendance.Record) error {
	m.records[rec.ID] = rec
	return nil
}

func (m *memRecordStore) ListBySubject(_ context.Context, subjectID string) ([]*attendance.Record, error) {
	var out []*attendance.Record
	for _, rec := range m.records {
		if rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memRecordStore) ListByDate(_ context.Context, subjectID string, date time.Time) ([]*attendance.Record, error) {
	var out []*attendance.Record
	for _, rec := range m.records {
		if rec.SubjectID == subjectID && rec.Date.Equal(date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(shared.Event) error { return nil }

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	log := logger.Default()

	repo := newMemSubjectRepo()
	store := newMemRecordStore()
	locks := command.NewSubjectLocks()
	processor := attendance.NewProcessor(log)

	n := 0
	resolver := attendance.NewResolver(store, func() string {
		n++
		return "rec-" + string(rune('0'+n))
	}, log)

	deps := Dependencies{
		EnrollSubjectHandler:  command.NewEnrollSubjectHandler(repo, nopPublisher{}, log),
		UpsertScheduleHandler: command.NewUpsertScheduleHandler(repo, locks, nopPublisher{}, log),
		MarkAttendanceHandler: command.NewMarkAttendanceHandler(
			repo, store, resolver, processor, locks, nopPublisher{}, log),
		ToggleHolidayHandler: command.NewToggleHolidayHandler(
			repo, store, attendance.NewHolidayToggle(resolver, processor, log),
			locks, nopPublisher{}, log),
		GetDueClassesHandler:        query.NewGetDueClassesHandler(repo, log),
		GetAttendanceSummaryHandler: query.NewGetAttendanceSummaryHandler(repo, nil, 0, log),
		GetAuditLogHandler:          query.NewGetAuditLogHandler(repo, log),
		Logger:                      log,
	}

	return NewServer(cfg, deps)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func enrollMath(t *testing.T, h http.Handler) string {
	t.Helper()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/subjects", map[string]interface{}{
		"name":       "Math",
		"started_at": "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	id, ok := data["SubjectID"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	return id
}

func addMondaySlot(t *testing.T, h http.Handler, subjectID string) string {
	t.Helper()

	rec := doJSON(t, h, http.MethodPut, "/api/v1/subjects/"+subjectID+"/schedule/Monday",
		map[string]interface{}{
			"slots": []map[string]string{{"start": "09:00", "end": "10:30", "room": "301"}},
		})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	slots := data["Slots"].([]interface{})
	require.Len(t, slots, 1)
	slot := slots[0].(map[string]interface{})
	id, ok := slot["ID"].(string)
	require.True(t, ok)
	return id
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestServer_FullLedgerFlow(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	h := s.Handler()

	subjectID := enrollMath(t, h)
	slotID := addMondaySlot(t, h, subjectID)

	// Mark attendance on the first Monday after enrollment.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/subjects/"+subjectID+"/attendance",
		map[string]string{"slot_id": slotID, "date": "2025-01-06", "status": "attended"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["Changed"])
	assert.Equal(t, "attended", data["NewStatus"])

	// One attended class out of one: 100%.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/subjects/"+subjectID+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp = decodeResponse(t, rec)
	data = resp.Data.(map[string]interface{})
	summaries := data["summaries"].([]interface{})
	require.Len(t, summaries, 1)

	// Holiday on the marked date reverts the count.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/subjects/"+subjectID+"/holiday",
		map[string]string{"date": "2025-01-06"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp = decodeResponse(t, rec)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["IsHoliday"])

	// Audit trail recorded everything.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/subjects/"+subjectID+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp = decodeResponse(t, rec)
	require.NotNil(t, resp.Meta)
	assert.Greater(t, resp.Meta.TotalCount, 0)
}

func TestServer_DueClasses(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	h := s.Handler()

	subjectID := enrollMath(t, h)
	addMondaySlot(t, h, subjectID)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/classes/due?date=2025-01-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Monday", data["weekday"])
	classes := data["classes"].([]interface{})
	require.Len(t, classes, 1)

	// Tuesday has no classes.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/classes/due?date=2025-01-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp = decodeResponse(t, rec)
	data = resp.Data.(map[string]interface{})
	assert.Empty(t, data["classes"])
}

func TestServer_ErrorMapping(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	h := s.Handler()

	// Unknown subject: 404.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/subjects/missing/attendance",
		map[string]string{"slot_id": "x", "date": "2025-01-06", "status": "attended"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed date: 400.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/subjects",
		map[string]string{"name": "Math", "started_at": "06.01.2025"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Invalid JSON body: 400.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Invalid status: 400.
	subjectID := enrollMath(t, h)
	slotID := addMondaySlot(t, h, subjectID)
	rec = doJSON(t, h, http.MethodPost, "/api/v1/subjects/"+subjectID+"/attendance",
		map[string]string{"slot_id": slotID, "date": "2025-01-06", "status": "present"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_APIKeyAuth(t *testing.T) {
	hash, err := handlers.HashKey("secret-key")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.APIKeyHashes = []string{hash}

	s := newTestServer(t, cfg)
	h := s.Handler()

	// No key: 401.
	rec := doJSON(t, h, http.MethodGet, "/api/v1/summary", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key: 401.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	req.Header.Set("X-API-Key", "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid key: 200.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	rec = doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthAndRoot(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	h := s.Handler()

	for _, path := range []string{"/health", "/healthz", "/ready", "/live", "/"} {
		rec := doJSON(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := doJSON(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RequestIDPropagation(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestServer_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 2

	s := newTestServer(t, cfg)
	h := s.Handler()

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
