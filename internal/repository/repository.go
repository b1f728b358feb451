// Пакет repository — слой доступа к данным.
// Записи конфигурации живут во внешнем Record Store (entries.go),
// журнал намерений промоушена — в PostgreSQL (promotion_intent.go).
package repository

import "errors"

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — запись журнала с таким id уже существует.
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrTransport — Record Store недоступен или ответил ошибкой.
	ErrTransport = errors.New("ошибка обращения к Record Store")
	// ErrValidation — некорректные данные записи.
	ErrValidation = errors.New("некорректные данные записи")
)
