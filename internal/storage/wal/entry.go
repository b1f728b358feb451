// Пакет wal — файловый журнал намерений (Write-Ahead Log) промоушенов.
// Каждый промоушен — отдельный файл {id}.wal.json в CC_INTENT_LOG_DIR.
// Запись создаётся до первого разрушающего вызова к Record Store и
// закрывается после финальной фазы; незакрытые записи восстанавливаются при старте.
package wal

import (
	"fmt"

	"github.com/google/uuid"
)

// walSuffix — суффикс файлов журнала.
const walSuffix = ".wal.json"

// walFileName возвращает имя файла WAL для данного промоушена.
func walFileName(id string) string {
	return id + walSuffix
}

// validateID проверяет, что id — UUID. Не даёт выйти за пределы директории журнала.
func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("некорректный id записи журнала %q: %w", id, err)
	}
	return nil
}
