// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/config-console/internal/repository"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrRecordStoreUnavailable — Record Store недоступен или ответил ошибкой.
	ErrRecordStoreUnavailable = errors.New("Record Store недоступен")
	// ErrPlanNotFound — план промоушена не найден или истёк.
	ErrPlanNotFound = errors.New("план промоушена не найден или истёк")
)

// translate приводит ошибки репозитория к ошибкам сервисного слоя.
// Исходная ошибка остаётся в цепочке.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err) //nolint:errorlint // намеренный двойной wrap
	case errors.Is(err, repository.ErrValidation):
		return fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	case errors.Is(err, repository.ErrTransport):
		return fmt.Errorf("%w: %w", ErrRecordStoreUnavailable, err) //nolint:errorlint // намеренный двойной wrap
	default:
		return err
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
