package model

import "time"

// PromotionPhase — фаза промоушена, зафиксированная в журнале намерений.
type PromotionPhase string

const (
	// PhaseDeleting — удаление записей целевой метки
	PhaseDeleting PromotionPhase = "deleting"
	// PhaseCreating — создание записей под целевой меткой из снимка
	PhaseCreating PromotionPhase = "creating"
)

// IntentStatus — статус записи журнала намерений.
type IntentStatus string

const (
	// IntentPending — промоушен начат и не завершён
	IntentPending IntentStatus = "pending"
	// IntentCommitted — обе фазы выполнены без ошибок
	IntentCommitted IntentStatus = "committed"
	// IntentFailed — промоушен завершён с ошибками отдельных вызовов
	IntentFailed IntentStatus = "failed"
)

// PromotionIntent — запись журнала намерений (write-ahead) промоушена.
// Пишется до первого разрушающего вызова, чтобы после сбоя промоушен
// можно было детерминированно довести до конца.
type PromotionIntent struct {
	// ID — UUID промоушена
	ID string `json:"id"`
	// Application — приложение
	Application string `json:"application"`
	// Source — исходная метка
	Source string `json:"source"`
	// Target — целевая метка
	Target string `json:"target"`
	// Phase — последняя начатая фаза
	Phase PromotionPhase `json:"phase"`
	// Status — статус записи
	Status IntentStatus `json:"status"`
	// TargetIDs — id записей целевой метки на момент снимка (удаляются)
	TargetIDs []EntryID `json:"target_ids"`
	// Snapshot — записи исходной метки на момент снимка (пересоздаются)
	Snapshot []Entry `json:"snapshot"`
	// DeleteFailures — число неудачных удалений
	DeleteFailures int `json:"delete_failures"`
	// CreateFailures — число неудачных созданий
	CreateFailures int `json:"create_failures"`
	// Subject — кто инициировал промоушен (sub из JWT)
	Subject string `json:"subject,omitempty"`
	// StartedAt — время начала (UTC)
	StartedAt time.Time `json:"started_at"`
	// UpdatedAt — время последнего изменения записи
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt — время завершения, nil для pending
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IntentOutcome — итог промоушена для закрытия записи журнала.
type IntentOutcome struct {
	Status         IntentStatus
	DeleteFailures int
	CreateFailures int
}
