package promotion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
)

// Sentinel-ошибки промоушена.
var (
	// ErrNoSourceEntries — под исходной меткой нет записей. Не ошибка, а no-op.
	ErrNoSourceEntries = errors.New("нет записей под исходной меткой")
	// ErrDeclined — пользователь отказался от подтверждения.
	ErrDeclined = errors.New("промоушен отклонён пользователем")
	// ErrBusy — промоушен этого направления уже выполняется.
	ErrBusy = errors.New("промоушен этого направления уже выполняется")
	// ErrInvalidDirection — пустая метка или source == target.
	ErrInvalidDirection = errors.New("недопустимое направление промоушена")
	// ErrJournal — не удалось записать намерение; разрушающая фаза не начиналась.
	ErrJournal = errors.New("ошибка журнала намерений")
	// ErrDeletionFailed — часть удалений разрушающей фазы не выполнена.
	ErrDeletionFailed = errors.New("удаление записей целевой метки завершилось с ошибками")
	// ErrCreationFailed — часть созданий не выполнена.
	ErrCreationFailed = errors.New("создание записей под целевой меткой завершилось с ошибками")
)

// ItemFailure — неудачный вызов Record Store для одной записи.
type ItemFailure struct {
	Entry model.Entry
	Err   error
}

// PartialFailureError — одна или несколько операций фаз промоушена не выполнены.
// errors.Is сопоставляет её с ErrDeletionFailed и/или ErrCreationFailed.
type PartialFailureError struct {
	Deletes []ItemFailure
	Creates []ItemFailure
}

func (e *PartialFailureError) Error() string {
	var parts []string
	if len(e.Deletes) > 0 {
		parts = append(parts, fmt.Sprintf("удаление: %d ошибок (%s)", len(e.Deletes), failedKeys(e.Deletes)))
	}
	if len(e.Creates) > 0 {
		parts = append(parts, fmt.Sprintf("создание: %d ошибок (%s)", len(e.Creates), failedKeys(e.Creates)))
	}
	return "частичный сбой промоушена: " + strings.Join(parts, "; ")
}

// Is реализует сопоставление с ErrDeletionFailed / ErrCreationFailed.
func (e *PartialFailureError) Is(target error) bool {
	switch target {
	case ErrDeletionFailed:
		return len(e.Deletes) > 0
	case ErrCreationFailed:
		return len(e.Creates) > 0
	}
	return false
}

func failedKeys(items []ItemFailure) string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		if it.Entry.ID != "" {
			keys = append(keys, it.Entry.Key+"#"+it.Entry.ID.String())
		} else {
			keys = append(keys, it.Entry.Key)
		}
	}
	return strings.Join(keys, ", ")
}
