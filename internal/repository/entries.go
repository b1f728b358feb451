package repository

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
	"github.com/bigkaa/goartstore/config-console/internal/recordstore"
)

// EntryRepository — CRUD записей конфигурации поверх Record Store.
// Не повторяет запросы: любая ошибка возвращается вызывающему.
type EntryRepository interface {
	// List возвращает записи приложения. Пустой список — не ошибка.
	List(ctx context.Context, application string) ([]model.Entry, error)
	// ListAll возвращает записи всех приложений.
	ListAll(ctx context.Context) ([]model.Entry, error)
	// Create создаёт запись; createdAt = updatedAt = now, id назначает Record Store.
	Create(ctx context.Context, draft model.Draft) (model.Entry, error)
	// Update полностью заменяет запись id; updatedAt = now.
	Update(ctx context.Context, id model.EntryID, entry model.Entry) (model.Entry, error)
	// Delete удаляет запись id. Отсутствующая запись считается удалённой.
	Delete(ctx context.Context, id model.EntryID) error
}

// entryRepo — реализация EntryRepository через recordstore.Client.
type entryRepo struct {
	client   *recordstore.Client
	resource string
	logger   *slog.Logger
	now      func() time.Time
}

// NewEntryRepository создаёт репозиторий записей.
// resource — имя коллекции в Record Store (configs).
func NewEntryRepository(client *recordstore.Client, resource string, logger *slog.Logger) EntryRepository {
	return &entryRepo{
		client:   client,
		resource: resource,
		logger:   logger.With(slog.String("component", "entry_repository")),
		now:      time.Now,
	}
}

func (r *entryRepo) List(ctx context.Context, application string) ([]model.Entry, error) {
	var entries []model.Entry
	query := url.Values{"application": {application}}
	if err := r.client.List(ctx, r.resource, query, &entries); err != nil {
		return nil, fmt.Errorf("%w: список записей %s: %w", ErrTransport, application, err) //nolint:errorlint // намеренный двойной wrap
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	return entries, nil
}

func (r *entryRepo) ListAll(ctx context.Context) ([]model.Entry, error) {
	var entries []model.Entry
	if err := r.client.List(ctx, r.resource, nil, &entries); err != nil {
		return nil, fmt.Errorf("%w: список всех записей: %w", ErrTransport, err) //nolint:errorlint // намеренный двойной wrap
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	return entries, nil
}

func (r *entryRepo) Create(ctx context.Context, draft model.Draft) (model.Entry, error) {
	if err := draft.Validate(); err != nil {
		return model.Entry{}, fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	}

	entry := draft.Stamp(r.now())

	var created model.Entry
	if err := r.client.Create(ctx, r.resource, entry.CreateBody(), &created); err != nil {
		// Неоднозначный исход (таймаут) тоже ошибка: запись не считается сохранённой.
		return model.Entry{}, fmt.Errorf("%w: создание записи %s: %w", ErrTransport, draft.Key, err) //nolint:errorlint // намеренный двойной wrap
	}
	if created.ID == "" {
		return model.Entry{}, fmt.Errorf("%w: Record Store не вернул id для записи %s", ErrTransport, draft.Key)
	}

	r.logger.Debug("Запись создана",
		slog.String("id", created.ID.String()),
		slog.String("application", created.Application),
		slog.String("key", created.Key),
	)
	return created, nil
}

func (r *entryRepo) Update(ctx context.Context, id model.EntryID, entry model.Entry) (model.Entry, error) {
	if id == "" {
		return model.Entry{}, fmt.Errorf("%w: пустой id", ErrValidation)
	}
	if err := entry.Draft().Validate(); err != nil {
		return model.Entry{}, fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	}

	entry.ID = id
	entry.Label = entry.Label.Normalize()
	// createdAt ≤ updatedAt даже при расхождении часов клиентов.
	now := model.NewTimestamp(r.now())
	if now.Before(entry.CreatedAt.Time) {
		now = entry.CreatedAt
	}
	entry.UpdatedAt = now

	var updated model.Entry
	if err := r.client.Replace(ctx, r.resource, id.String(), entry, &updated); err != nil {
		if recordstore.IsNotFound(err) {
			return model.Entry{}, fmt.Errorf("%w: запись %s: %w", ErrNotFound, id, err) //nolint:errorlint // намеренный двойной wrap
		}
		return model.Entry{}, fmt.Errorf("%w: обновление записи %s: %w", ErrTransport, id, err) //nolint:errorlint // намеренный двойной wrap
	}
	if updated.ID == "" {
		updated.ID = id
	}
	return updated, nil
}

func (r *entryRepo) Delete(ctx context.Context, id model.EntryID) error {
	if id == "" {
		return fmt.Errorf("%w: пустой id", ErrValidation)
	}
	if err := r.client.Delete(ctx, r.resource, id.String()); err != nil {
		if recordstore.IsNotFound(err) {
			r.logger.Debug("Запись уже удалена", slog.String("id", id.String()))
			return nil
		}
		return fmt.Errorf("%w: удаление записи %s: %w", ErrTransport, id, err) //nolint:errorlint // намеренный двойной wrap
	}
	return nil
}
