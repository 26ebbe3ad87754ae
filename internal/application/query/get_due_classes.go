// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/pkg/logger"
	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DUE CLASSES QUERY
// Дневной срез: все слоты занятий на дату с текущим статусом записи.
// Чтение никогда не создаёт записей; непросмотренный слот показывает
// нейтральный статус и не влияет на счётчики, пока его не отметят.
// ══════════════════════════════════════════════════════════════════════════════

// GetDueClassesQuery содержит параметры дневного среза.
type GetDueClassesQuery struct {
	// Date - календарная дата проекции; нулевое значение = сегодня.
	Date time.Time

	// SubjectID - ограничить срез одним предметом (пустая строка = все).
	SubjectID string
}

// Validate проверяет и нормализует параметры запроса.
func (q *GetDueClassesQuery) Validate() error {
	if q.Date.IsZero() {
		q.Date = time.Now().UTC()
	}
	q.Date = timeutil.DayOf(q.Date)
	return nil
}

// DueClassDTO - одна строка дневного среза.
type DueClassDTO struct {
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	SlotID      string `json:"slot_id"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Room        string `json:"room,omitempty"`

	// Status - текущее решение по записи; "canceled", если записи ещё нет.
	Status string `json:"status"`

	// RecordExists отличает сохранённое нейтральное решение от
	// "ещё не смотрели".
	RecordExists bool `json:"record_exists"`

	// IsHoliday - признак праздника на дату для предмета.
	IsHoliday bool `json:"is_holiday"`
}

// DueClassesDTO - полный дневной срез.
type DueClassesDTO struct {
	Date    time.Time     `json:"date"`
	Weekday string        `json:"weekday"`
	Classes []DueClassDTO `json:"classes"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetDueClassesHandler обрабатывает GetDueClassesQuery.
type GetDueClassesHandler struct {
	subjectRepo attendance.SubjectRepository
	log         *logger.Logger
}

// NewGetDueClassesHandler создаёт новый GetDueClassesHandler.
func NewGetDueClassesHandler(subjectRepo attendance.SubjectRepository, log *logger.Logger) *GetDueClassesHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetDueClassesHandler{subjectRepo: subjectRepo, log: log}
}

// Handle выполняет запрос.
func (h *GetDueClassesHandler) Handle(ctx context.Context, q GetDueClassesQuery) (*DueClassesDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_due_classes: %w", err)
	}

	var subjects []*attendance.Subject
	if q.SubjectID != "" {
		subject, err := h.subjectRepo.GetByID(ctx, q.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("get_due_classes: failed to get subject: %w", err)
		}
		subjects = []*attendance.Subject{subject}
	} else {
		all, err := h.subjectRepo.GetAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("get_due_classes: failed to list subjects: %w", err)
		}
		subjects = all
	}

	dto := &DueClassesDTO{
		Date:    q.Date,
		Weekday: attendance.WeekdayOf(q.Date).String(),
		Classes: make([]DueClassDTO, 0),
	}

	for _, subject := range subjects {
		holiday := subject.HolidayOnDate(q.Date)
		for _, slot := range subject.DueSlots(q.Date) {
			row := DueClassDTO{
				SubjectID:   subject.ID,
				SubjectName: subject.Name,
				SlotID:      slot.ID,
				Start:       slot.Start.String(),
				End:         slot.End.String(),
				Room:        slot.Room,
				Status:      attendance.StatusCanceled.String(),
				IsHoliday:   holiday,
			}
			if rec := subject.FindRecord(slot.ID, q.Date); rec != nil {
				row.Status = rec.Status.String()
				row.RecordExists = true
			}
			dto.Classes = append(dto.Classes, row)
		}
	}

	// Проекция идёт в порядке объявления; дневной срез показываем по
	// времени начала, слоты без времени - в конце.
	sort.SliceStable(dto.Classes, func(i, j int) bool {
		a, b := dto.Classes[i].Start, dto.Classes[j].Start
		if a == "" || b == "" {
			return b == "" && a != ""
		}
		return a < b
	})

	return dto, nil
}
