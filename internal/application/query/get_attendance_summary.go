package query

import (
	"context"
	"fmt"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ATTENDANCE SUMMARY QUERY
// Счётчики, процент и зона порога по одному предмету или по всем.
// Запрос по одному предмету идёт через кеш сводок; кеш инвалидирует
// обработчик события смены статуса.
// ══════════════════════════════════════════════════════════════════════════════

// GetAttendanceSummaryQuery содержит параметры запроса сводки.
type GetAttendanceSummaryQuery struct {
	// SubjectID - выбрать один предмет (пустая строка = сводки по всем).
	SubjectID string

	// SkipCache - обойти кеш сводок.
	SkipCache bool
}

// AttendanceSummaryDTO - ответ со сводками.
type AttendanceSummaryDTO struct {
	Summaries []attendance.Summary `json:"summaries"`

	// FromCache - признак попадания в кеш при запросе одного предмета.
	FromCache bool `json:"-"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetAttendanceSummaryHandler обрабатывает GetAttendanceSummaryQuery.
type GetAttendanceSummaryHandler struct {
	subjectRepo attendance.SubjectRepository
	cache       attendance.SummaryCache
	cacheTTL    time.Duration
	log         *logger.Logger
}

// NewGetAttendanceSummaryHandler создаёт новый GetAttendanceSummaryHandler.
// cache может быть nil - тогда каждый запрос пересчитывает сводку.
func NewGetAttendanceSummaryHandler(
	subjectRepo attendance.SubjectRepository,
	cache attendance.SummaryCache,
	cacheTTL time.Duration,
	log *logger.Logger,
) *GetAttendanceSummaryHandler {
	if log == nil {
		log = logger.Default()
	}
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}
	return &GetAttendanceSummaryHandler{
		subjectRepo: subjectRepo,
		cache:       cache,
		cacheTTL:    cacheTTL,
		log:         log,
	}
}

// Handle выполняет запрос.
func (h *GetAttendanceSummaryHandler) Handle(ctx context.Context, q GetAttendanceSummaryQuery) (*AttendanceSummaryDTO, error) {
	if q.SubjectID == "" {
		subjects, err := h.subjectRepo.GetAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("get_attendance_summary: failed to list subjects: %w", err)
		}
		dto := &AttendanceSummaryDTO{Summaries: make([]attendance.Summary, 0, len(subjects))}
		for _, subject := range subjects {
			dto.Summaries = append(dto.Summaries, attendance.SummaryOf(subject))
		}
		return dto, nil
	}

	if h.cache != nil && !q.SkipCache {
		if cached, err := h.cache.Get(ctx, q.SubjectID); err == nil && cached != nil {
			return &AttendanceSummaryDTO{
				Summaries: []attendance.Summary{*cached},
				FromCache: true,
			}, nil
		}
	}

	subject, err := h.subjectRepo.GetByID(ctx, q.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("get_attendance_summary: failed to get subject: %w", err)
	}

	summary := attendance.SummaryOf(subject)
	if h.cache != nil {
		if err := h.cache.Set(ctx, summary, h.cacheTTL); err != nil {
			h.log.Debug("summary cache set failed",
				logger.String("subject_id", q.SubjectID),
				logger.Err(err),
			)
		}
	}

	return &AttendanceSummaryDTO{Summaries: []attendance.Summary{summary}}, nil
}
