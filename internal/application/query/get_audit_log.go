package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET AUDIT LOG QUERY
// История предмета (append-only), с фильтром по диапазону дат, новые первыми.
// ══════════════════════════════════════════════════════════════════════════════

// GetAuditLogQuery содержит параметры запроса истории.
type GetAuditLogQuery struct {
	// SubjectID - предмет, чья история запрашивается.
	SubjectID string

	// From, To ограничивают диапазон с точностью до дня; нулевое значение
	// оставляет границу открытой.
	From time.Time
	To   time.Time

	// Pagination задаёт окно страницы.
	Pagination shared.Pagination
}

// Validate проверяет и нормализует параметры запроса.
func (q *GetAuditLogQuery) Validate() error {
	if q.SubjectID == "" {
		return errors.New("get_audit_log: subject_id is required")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return errors.New("get_audit_log: to precedes from")
	}
	if q.Pagination.PageSize == 0 {
		q.Pagination = shared.DefaultPagination()
	}
	return nil
}

// AuditEntryDTO - одна строка истории в ответе.
type AuditEntryDTO struct {
	Timestamp   time.Time `json:"timestamp"`
	SubjectName string    `json:"subject_name"`
	Action      string    `json:"action"`
}

// AuditLogDTO - ответ с историей и пагинацией.
type AuditLogDTO struct {
	SubjectID string          `json:"subject_id"`
	Entries   []AuditEntryDTO `json:"entries"`
	Total     int             `json:"total"`
	Page      int             `json:"page"`
	PageSize  int             `json:"page_size"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetAuditLogHandler обрабатывает GetAuditLogQuery.
type GetAuditLogHandler struct {
	subjectRepo attendance.SubjectRepository
	log         *logger.Logger
}

// NewGetAuditLogHandler создаёт новый GetAuditLogHandler.
func NewGetAuditLogHandler(subjectRepo attendance.SubjectRepository, log *logger.Logger) *GetAuditLogHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetAuditLogHandler{subjectRepo: subjectRepo, log: log}
}

// Handle выполняет запрос.
func (h *GetAuditLogHandler) Handle(ctx context.Context, q GetAuditLogQuery) (*AuditLogDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_audit_log: %w", err)
	}

	subject, err := h.subjectRepo.GetByID(ctx, q.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("get_audit_log: failed to get subject: %w", err)
	}

	entries := subject.AuditBetween(q.From, q.To)

	// Хранится от старых к новым, отдаётся от новых к старым.
	dto := &AuditLogDTO{
		SubjectID: subject.ID,
		Total:     len(entries),
		Page:      q.Pagination.Page,
		PageSize:  q.Pagination.PageSize,
		Entries:   make([]AuditEntryDTO, 0, q.Pagination.Limit()),
	}

	offset := q.Pagination.Offset()
	limit := q.Pagination.Limit()
	for i := len(entries) - 1 - offset; i >= 0 && len(dto.Entries) < limit; i-- {
		e := entries[i]
		dto.Entries = append(dto.Entries, AuditEntryDTO{
			Timestamp:   e.Timestamp,
			SubjectName: e.SubjectName,
			Action:      e.Action,
		})
	}

	return dto, nil
}
