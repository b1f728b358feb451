// Пакет model — доменные типы Config Console: записи конфигурации,
// метки релизных треков, статусы, параметры деплоя и справочник кластеров.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// EntryID — непрозрачный идентификатор записи, назначаемый Record Store.
// На проводе может прийти как строкой, так и числом; всегда кодируется строкой.
type EntryID string

// UnmarshalJSON принимает JSON-строку или число.
func (id *EntryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		*id = EntryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: ожидается строка или число, получено %s", string(data))
	}
	*id = EntryID(n.String())
	return nil
}

// String возвращает строковое представление идентификатора.
func (id EntryID) String() string {
	return string(id)
}

// Status — стадия жизненного цикла записи ("была ли запись выкачена").
type Status string

const (
	// StatusDraft — черновик, ещё не выкачен
	StatusDraft Status = "draft"
	// StatusPending — запланированный деплой
	StatusPending Status = "pending"
	// StatusSchedule — устаревший синоним pending
	StatusSchedule Status = "schedule"
	// StatusDeployed — выкачен немедленным деплоем
	StatusDeployed Status = "deployed"
	// StatusActive — активна (результат промоушена или создания)
	StatusActive Status = "active"
)

// Canonical приводит синонимы к одному значению (schedule → pending).
func (s Status) Canonical() Status {
	if s == StatusSchedule {
		return StatusPending
	}
	return s
}

// IsValid проверяет, что статус входит в известный набор.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusSchedule, StatusDeployed, StatusActive:
		return true
	default:
		return false
	}
}

// ParseStatus преобразует строку в Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: draft, pending, deployed, active", s)
	}
	return st.Canonical(), nil
}

// Timestamp — время в формате ISO-8601, как его пишет клиент
// (2006-01-02T15:04:05.000Z). При чтении допускает пустое значение,
// RFC3339 с любой точностью и число миллисекунд Unix.
type Timestamp struct {
	time.Time
}

// timestampLayout — формат записи времени (toISOString).
const timestampLayout = "2006-01-02T15:04:05.000Z"

// NewTimestamp создаёт Timestamp в UTC с точностью до миллисекунд.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

// MarshalJSON кодирует время строкой; нулевое время кодируется как null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(timestampLayout))
}

// UnmarshalJSON декодирует строку RFC3339, число миллисекунд или null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("некорректная метка времени: %s", string(data))
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("некорректная метка времени %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// Entry — запись конфигурации в Record Store.
type Entry struct {
	// ID — идентификатор, назначенный Record Store; неизменяем
	ID EntryID `json:"id"`
	// Application — приложение-владелец; не меняется за время жизни записи
	Application string `json:"application"`
	// Profile — окружение (development, staging, production, ...)
	Profile string `json:"profile"`
	// Label — набор релизных треков (latest, candidate, ...)
	Label LabelSet `json:"label"`
	// Key — ключ конфигурации
	Key string `json:"key"`
	// Value — содержимое (JSON, YAML, строка), не разбирается
	Value string `json:"value"`
	// Status — стадия жизненного цикла
	Status Status `json:"status"`
	// CreatedAt — время создания (часы клиента)
	CreatedAt Timestamp `json:"createdAt"`
	// UpdatedAt — время последнего изменения (часы клиента)
	UpdatedAt Timestamp `json:"updatedAt"`
}

// Draft возвращает содержимое записи без идентификатора и меток времени.
func (e Entry) Draft() Draft {
	return Draft{
		Application: e.Application,
		Profile:     e.Profile,
		Label:       slices.Clone(e.Label),
		Key:         e.Key,
		Value:       e.Value,
		Status:      e.Status,
	}
}

// HasLabel проверяет принадлежность записи релизному треку.
func (e Entry) HasLabel(label string) bool {
	return e.Label.Contains(label)
}

// Draft — запись без полей, которые назначает Record Store или писатель
// (id, createdAt, updatedAt). Используется при создании и промоушене.
type Draft struct {
	Application string   `json:"application"`
	Profile     string   `json:"profile"`
	Label       LabelSet `json:"label"`
	Key         string   `json:"key"`
	Value       string   `json:"value"`
	Status      Status   `json:"status"`
}

// Validate проверяет обязательные поля черновика.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Application) == "" {
		return fmt.Errorf("application: обязательное поле")
	}
	if strings.TrimSpace(d.Key) == "" {
		return fmt.Errorf("key: обязательное поле")
	}
	if d.Label.IsEmpty() {
		return fmt.Errorf("label: требуется хотя бы одна метка")
	}
	if d.Status != "" && !d.Status.IsValid() {
		return fmt.Errorf("status: недопустимое значение %q", d.Status)
	}
	return nil
}

// Stamp превращает черновик в запись с метками времени createdAt = updatedAt = now.
func (d Draft) Stamp(now time.Time) Entry {
	ts := NewTimestamp(now)
	return Entry{
		Application: d.Application,
		Profile:     d.Profile,
		Label:       d.Label.Normalize(),
		Key:         d.Key,
		Value:       d.Value,
		Status:      d.Status,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

// createBody — тело POST-запроса: запись без id.
type createBody struct {
	Application string    `json:"application"`
	Profile     string    `json:"profile"`
	Label       LabelSet  `json:"label"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Status      Status    `json:"status"`
	CreatedAt   Timestamp `json:"createdAt"`
	UpdatedAt   Timestamp `json:"updatedAt"`
}

// CreateBody возвращает представление записи для создания (без id),
// чтобы идентификатор назначил Record Store.
func (e Entry) CreateBody() any {
	return createBody{
		Application: e.Application,
		Profile:     e.Profile,
		Label:       e.Label,
		Key:         e.Key,
		Value:       e.Value,
		Status:      e.Status,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
