package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Релизные треки, используемые консолью.
const (
	LabelLatest    = "latest"
	LabelCandidate = "candidate"
)

// LabelSet — каноническое представление метки: множество тегов.
// Одиночная строка — вырожденный случай множества из одного элемента.
// Порядок первого появления сохраняется, дубликаты и пустые теги отбрасываются.
type LabelSet []string

// NewLabelSet создаёт нормализованное множество из тегов.
func NewLabelSet(tags ...string) LabelSet {
	return LabelSet(tags).Normalize()
}

// Normalize убирает пробелы по краям, пустые теги и дубликаты.
func (l LabelSet) Normalize() LabelSet {
	if len(l) == 0 {
		return LabelSet{}
	}
	result := make(LabelSet, 0, len(l))
	for _, tag := range l {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(result, tag) {
			continue
		}
		result = append(result, tag)
	}
	return result
}

// Contains проверяет наличие тега в множестве.
func (l LabelSet) Contains(tag string) bool {
	return slices.Contains(l, tag)
}

// IsEmpty — true, если в множестве нет ни одного тега.
func (l LabelSet) IsEmpty() bool {
	return len(l.Normalize()) == 0
}

// String возвращает теги через запятую.
func (l LabelSet) String() string {
	return strings.Join(l, ",")
}

// MarshalJSON всегда кодирует метку списком.
func (l LabelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(l.Normalize()))
}

// UnmarshalJSON принимает список строк или одиночную строку.
// Строка с запятыми разбивается на теги.
func (l *LabelSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = LabelSet{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("label: %w", err)
		}
		*l = ParseLabelSet(s)
		return nil
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return fmt.Errorf("label: ожидается строка или список строк: %w", err)
	}
	*l = LabelSet(tags).Normalize()
	return nil
}

// ParseLabelSet разбирает строку вида "latest,candidate".
func ParseLabelSet(s string) LabelSet {
	return LabelSet(strings.Split(s, ",")).Normalize()
}
