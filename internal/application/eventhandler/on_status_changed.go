// Package eventhandler содержит обработчики доменных событий. Это реактивная
// часть системы: инвалидация кешей и запуск уведомлений в ответ на изменения
// журнала, вне горячего пути командных обработчиков.
package eventhandler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/notification"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
	"github.com/classtrack/attendance-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON STATUS CHANGED HANDLER
// Инвалидирует кеш сводок и поднимает предупреждение о низкой посещаемости,
// когда переход роняет процент предмета в худшую зону.
// ══════════════════════════════════════════════════════════════════════════════

// StatusChangedConfig содержит пороги оповещений.
type StatusChangedConfig struct {
	// AlertCooldown - минимальный интервал между оповещениями по предмету.
	AlertCooldown time.Duration

	// HandlerTimeout ограничивает время одного вызова.
	HandlerTimeout time.Duration
}

// DefaultStatusChangedConfig возвращает конфигурацию по умолчанию.
func DefaultStatusChangedConfig() StatusChangedConfig {
	return StatusChangedConfig{
		AlertCooldown:  6 * time.Hour,
		HandlerTimeout: 10 * time.Second,
	}
}

// OnStatusChangedHandler обрабатывает события record.status_changed.
type OnStatusChangedHandler struct {
	subjectRepo attendance.SubjectRepository
	cache       attendance.SummaryCache
	sender      notification.Sender
	publisher   shared.EventPublisher
	log         *logger.Logger
	config      StatusChangedConfig

	// lastAlert трогают конкурентные воркеры шины.
	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewOnStatusChangedHandler создаёт новый OnStatusChangedHandler.
// cache и sender могут быть nil - соответствующий эффект пропускается.
func NewOnStatusChangedHandler(
	subjectRepo attendance.SubjectRepository,
	cache attendance.SummaryCache,
	sender notification.Sender,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config StatusChangedConfig,
) *OnStatusChangedHandler {
	if log == nil {
		log = logger.Default()
	}
	if config.HandlerTimeout == 0 {
		config = DefaultStatusChangedConfig()
	}
	return &OnStatusChangedHandler{
		subjectRepo: subjectRepo,
		cache:       cache,
		sender:      sender,
		publisher:   publisher,
		log:         log,
		config:      config,
		lastAlert:   make(map[string]time.Time),
	}
}

// Handle обрабатывает одно событие. Регистрируется на шине как shared.EventHandler.
func (h *OnStatusChangedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.RecordStatusChangedEvent)
	if !ok {
		return fmt.Errorf("on_status_changed: unexpected event type %s", event.EventType())
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.HandlerTimeout)
	defer cancel()

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, e.SubjectID); err != nil {
			h.log.Warn("summary cache invalidation failed",
				logger.String("subject_id", e.SubjectID),
				logger.Err(err),
			)
		}
	}

	return h.checkAttendanceBand(ctx, e)
}

// checkAttendanceBand сравнивает зону до и после перехода и оповещает,
// если она ухудшилась.
func (h *OnStatusChangedHandler) checkAttendanceBand(ctx context.Context, e shared.RecordStatusChangedEvent) error {
	if h.sender == nil {
		return nil
	}

	subject, err := h.subjectRepo.GetByID(ctx, e.SubjectID)
	if err != nil {
		return fmt.Errorf("on_status_changed: failed to get subject: %w", err)
	}
	minimum := subject.Aggregate.MinimumPercentage

	after := percentage(e.Attended, e.Total)
	bandAfter := attendance.BandFor(after, minimum)

	// Откатываем дельту перехода, восстанавливая прежние счётчики.
	old, _ := attendance.ParseStatus(e.OldStatus)
	next, _ := attendance.ParseStatus(e.NewStatus)
	d := attendance.TransitionDelta(old, next)
	before := percentage(e.Attended-d.Attended, e.Total-d.Total)
	bandBefore := attendance.BandFor(before, minimum)

	if !bandWorsened(bandBefore, bandAfter) {
		return nil
	}

	if !h.markAlerted(e.SubjectID) {
		return nil
	}

	alert := notification.Alert{
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		Percentage:  after,
		Requirement: minimum,
		Band:        string(bandAfter),
	}
	if err := h.sender.SendAlert(ctx, alert); err != nil {
		h.log.Warn("low attendance alert delivery failed",
			logger.String("subject_id", subject.ID),
			logger.Err(err),
		)
		return nil
	}

	if h.publisher != nil {
		_ = h.publisher.Publish(shared.NewLowAttendanceEvent(
			subject.ID, subject.Name, after, minimum, string(bandAfter)))
	}

	h.log.Info("low attendance alert sent",
		logger.String("subject_id", subject.ID),
		logger.Float64("percentage", after),
		logger.String("band", string(bandAfter)),
	)
	return nil
}

// markAlerted фиксирует оповещение по предмету, если в окне cooldown его ещё
// не было. Возвращает, следует ли продолжать.
func (h *OnStatusChangedHandler) markAlerted(subjectID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if last, ok := h.lastAlert[subjectID]; ok && time.Since(last) < h.config.AlertCooldown {
		return false
	}
	h.lastAlert[subjectID] = time.Now()
	return true
}

func percentage(attended, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(attended) / float64(total) * 100
}

// bandWorsened сообщает, сдвинулась ли зона в сторону critical.
func bandWorsened(before, after attendance.Band) bool {
	rank := map[attendance.Band]int{
		attendance.BandGood:     0,
		attendance.BandWarning:  1,
		attendance.BandCritical: 2,
	}
	return rank[after] > rank[before]
}
