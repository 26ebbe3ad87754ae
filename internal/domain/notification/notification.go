// Package notification содержит доменную модель уведомлений журнала посещаемости.
// Здесь живут решения о планировании напоминаний; доставка — забота инфраструктуры.
package notification

import (
	"context"
	"time"
)

// Channel представляет канал доставки уведомления.
type Channel string

const (
	// ChannelWebhook - POST на настроенный webhook URL.
	ChannelWebhook Channel = "webhook"

	// ChannelLog - только структурированная запись в лог, канал по умолчанию
	// когда webhook не настроен.
	ChannelLog Channel = "log"
)

// Reminder представляет запланированное напоминание "занятие скоро начнётся".
type Reminder struct {
	// ID - внутренний уникальный идентификатор.
	ID string

	// SubjectID, SubjectName - предмет, о котором напоминание.
	SubjectID   string
	SubjectName string

	// SlotID - слот занятия, для которого срабатывает напоминание.
	SlotID string

	// FireAt - момент, когда напоминание должно быть доставлено.
	FireAt time.Time

	// Room - аудитория занятия, показывается в сообщении.
	Room string
}

// Alert представляет предупреждение о низкой посещаемости по предмету.
type Alert struct {
	SubjectID   string  `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Percentage  float64 `json:"percentage"`
	Requirement float64 `json:"requirement"`
	Band        string  `json:"band"`
}

// DigestItem - одна строка ежедневного дайджеста занятий.
type DigestItem struct {
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	SlotID      string `json:"slot_id"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Room        string `json:"room,omitempty"`
	Status      string `json:"status"`
	IsHoliday   bool   `json:"is_holiday"`
}

// Digest представляет ежедневную сводку занятий на дату.
type Digest struct {
	Date  time.Time    `json:"date"`
	Items []DigestItem `json:"items"`
}

// Scheduler планирует и отменяет напоминания в ответ на изменения журнала.
type Scheduler interface {
	// Reschedule пересчитывает напоминания предмета по его текущему
	// недельному расписанию.
	Reschedule(ctx context.Context, subjectID string) error

	// CancelForDate снимает отложенные напоминания предмета на дату.
	// Используется, когда дата становится праздником.
	CancelForDate(ctx context.Context, subjectID string, date time.Time) error
}

// Sender доставляет уведомления пользователю.
type Sender interface {
	SendAlert(ctx context.Context, alert Alert) error
	SendDigest(ctx context.Context, digest Digest) error
}
