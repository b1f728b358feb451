// entries.go — сервис записей конфигурации: список с фильтрами, CRUD,
// деплой (смена статуса) и сводки для главной страницы.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
	"github.com/bigkaa/goartstore/config-console/internal/repository"
)

// Filter — фильтр списка записей. Пустые поля не ограничивают выборку.
type Filter struct {
	// Label — запись должна содержать метку
	Label string
	// Profile — точное совпадение профиля
	Profile string
	// Status — статус (синонимы приводятся к каноническому виду)
	Status model.Status
	// Query — подстрока ключа или значения без учёта регистра
	Query string
}

// Match проверяет запись по фильтру.
func (f Filter) Match(e model.Entry) bool {
	if f.Label != "" && !e.HasLabel(f.Label) {
		return false
	}
	if f.Profile != "" && e.Profile != f.Profile {
		return false
	}
	if f.Status != "" && e.Status.Canonical() != f.Status.Canonical() {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(e.Key), q) && !strings.Contains(strings.ToLower(e.Value), q) {
			return false
		}
	}
	return true
}

// EntryList — результат ListEntries.
type EntryList struct {
	Application string
	Entries     []model.Entry
	// Stats — по всем записям приложения, без учёта фильтра
	Stats    model.Stats
	LoadedAt time.Time
}

// EntryService — операции над записями конфигурации приложения.
type EntryService struct {
	repo     repository.EntryRepository
	cache    *WorkspaceCache
	clusters model.ClusterCatalog
	logger   *slog.Logger
	now      func() time.Time
}

// NewEntryService создаёт сервис записей.
func NewEntryService(
	repo repository.EntryRepository,
	cache *WorkspaceCache,
	clusters model.ClusterCatalog,
	logger *slog.Logger,
) *EntryService {
	return &EntryService{
		repo:     repo,
		cache:    cache,
		clusters: clusters,
		logger:   logger.With(slog.String("component", "entry_service")),
		now:      time.Now,
	}
}

// Workspace возвращает рабочую область приложения.
// refresh = true — всегда перечитать из Record Store.
func (s *EntryService) Workspace(ctx context.Context, application string, refresh bool) (*Workspace, error) {
	if err := validateApplication(application); err != nil {
		return nil, err
	}
	if !refresh {
		if ws, ok := s.cache.Get(application); ok {
			return ws, nil
		}
	}
	entries, err := s.repo.List(ctx, application)
	if err != nil {
		s.cache.Invalidate(application)
		return nil, translate(err)
	}
	return s.cache.Set(application, entries, s.now()), nil
}

// Adopt заменяет рабочую область списком, уже прочитанным из Record Store
// (например, при обновлении после промоушена).
func (s *EntryService) Adopt(application string, entries []model.Entry) {
	s.cache.Set(application, entries, s.now())
}

// Invalidate сбрасывает рабочую область приложения.
func (s *EntryService) Invalidate(application string) {
	s.cache.Invalidate(application)
}

// ListEntries возвращает записи приложения, отфильтрованные по filter.
func (s *EntryService) ListEntries(ctx context.Context, application string, filter Filter, refresh bool) (*EntryList, error) {
	ws, err := s.Workspace(ctx, application, refresh)
	if err != nil {
		return nil, err
	}

	entries := make([]model.Entry, 0, len(ws.Entries))
	for _, e := range ws.Entries {
		if filter.Match(e) {
			entries = append(entries, e)
		}
	}
	return &EntryList{
		Application: application,
		Entries:     entries,
		Stats:       model.ComputeStats(ws.Entries),
		LoadedAt:    ws.LoadedAt,
	}, nil
}

// CreateEntry создаёт запись приложения.
// Пустое application в черновике заполняется из пути, несовпадающее — ошибка.
func (s *EntryService) CreateEntry(ctx context.Context, application string, draft model.Draft) (model.Entry, Notice, error) {
	if err := validateApplication(application); err != nil {
		return model.Entry{}, Notice{}, err
	}
	if draft.Application == "" {
		draft.Application = application
	}
	if draft.Application != application {
		return model.Entry{}, Notice{}, fmt.Errorf("%w: application %q не совпадает с %q", ErrValidation, draft.Application, application)
	}
	if draft.Status == "" {
		draft.Status = model.StatusActive
	}
	draft.Status = draft.Status.Canonical()

	created, err := s.repo.Create(ctx, draft)
	if err != nil {
		return model.Entry{}, Notice{}, translate(err)
	}

	s.logger.Info("Запись создана",
		slog.String("application", application),
		slog.String("id", created.ID.String()),
		slog.String("key", created.Key),
		slog.String("label", created.Label.String()),
	)
	s.reload(ctx, application)
	return created, success("Запись создана", fmt.Sprintf("Ключ %s добавлен в %s", created.Key, application)), nil
}

// UpdateEntry полностью заменяет запись id содержимым draft.
// Приложение записи не меняется; пустой статус сохраняет текущий.
func (s *EntryService) UpdateEntry(ctx context.Context, application string, id model.EntryID, draft model.Draft) (model.Entry, Notice, error) {
	current, err := s.find(ctx, application, id)
	if err != nil {
		return model.Entry{}, Notice{}, err
	}
	if draft.Application != "" && draft.Application != current.Application {
		return model.Entry{}, Notice{}, fmt.Errorf("%w: нельзя перенести запись %s в приложение %q", ErrValidation, id, draft.Application)
	}
	if draft.Status == "" {
		draft.Status = current.Status
	}

	entry := model.Entry{
		ID:          id,
		Application: current.Application,
		Profile:     draft.Profile,
		Label:       draft.Label,
		Key:         draft.Key,
		Value:       draft.Value,
		Status:      draft.Status.Canonical(),
		CreatedAt:   current.CreatedAt,
	}
	updated, err := s.repo.Update(ctx, id, entry)
	if err != nil {
		if isNotFound(err) {
			s.cache.Invalidate(application)
		}
		return model.Entry{}, Notice{}, translate(err)
	}

	s.logger.Info("Запись обновлена",
		slog.String("application", application),
		slog.String("id", id.String()),
		slog.String("key", updated.Key),
	)
	s.reload(ctx, application)
	return updated, success("Запись обновлена", fmt.Sprintf("Ключ %s сохранён", updated.Key)), nil
}

// DeleteEntry удаляет запись. Уже удалённая запись — успех.
func (s *EntryService) DeleteEntry(ctx context.Context, application string, id model.EntryID) (Notice, error) {
	if err := validateApplication(application); err != nil {
		return Notice{}, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return Notice{}, translate(err)
	}

	s.logger.Info("Запись удалена",
		slog.String("application", application),
		slog.String("id", id.String()),
	)
	s.reload(ctx, application)
	return success("Запись удалена", fmt.Sprintf("Запись %s удалена", id)), nil
}

// Deploy меняет статус записи по параметрам деплоя:
// immediate → deployed, scheduled → pending. С кластерами консоль не взаимодействует.
func (s *EntryService) Deploy(ctx context.Context, application string, id model.EntryID, opt model.DeploymentOption) (model.Entry, Notice, error) {
	if err := opt.Validate(s.clusters, s.now()); err != nil {
		return model.Entry{}, Notice{}, fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	}

	current, err := s.find(ctx, application, id)
	if err != nil {
		return model.Entry{}, Notice{}, err
	}
	current.Status = opt.TargetStatus()

	updated, err := s.repo.Update(ctx, id, current)
	if err != nil {
		return model.Entry{}, Notice{}, translate(err)
	}

	s.logger.Info("Деплой записи",
		slog.String("application", application),
		slog.String("id", id.String()),
		slog.String("type", string(opt.Type)),
		slog.String("environment", opt.Environment),
		slog.String("clusters", strings.Join(opt.TargetClusters, ",")),
	)
	s.reload(ctx, application)

	notice := success("Деплой запущен",
		fmt.Sprintf("%s → %s (%d кластеров)", updated.Key, opt.Environment, len(opt.TargetClusters)))
	if opt.Type == model.DeployScheduled {
		notice = success("Деплой запланирован",
			fmt.Sprintf("%s → %s на %s", updated.Key, opt.Environment, opt.ScheduledTime.UTC().Format(time.RFC3339)))
	}
	return updated, notice, nil
}

// Stats возвращает сводку по статусам записей приложения.
func (s *EntryService) Stats(ctx context.Context, application string) (model.Stats, error) {
	ws, err := s.Workspace(ctx, application, false)
	if err != nil {
		return model.Stats{}, err
	}
	return model.ComputeStats(ws.Entries), nil
}

// Dashboard возвращает сводку по всем приложениям.
func (s *EntryService) Dashboard(ctx context.Context) ([]model.ApplicationSummary, error) {
	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return model.Summarize(entries), nil
}

// Clusters возвращает справочник кластеров.
func (s *EntryService) Clusters() model.ClusterCatalog {
	return s.clusters
}

// find ищет запись в рабочей области; при промахе перечитывает её один раз.
func (s *EntryService) find(ctx context.Context, application string, id model.EntryID) (model.Entry, error) {
	if id == "" {
		return model.Entry{}, fmt.Errorf("%w: пустой id", ErrValidation)
	}
	ws, err := s.Workspace(ctx, application, false)
	if err != nil {
		return model.Entry{}, err
	}
	if e, ok := ws.Find(id); ok {
		return e, nil
	}
	ws, err = s.Workspace(ctx, application, true)
	if err != nil {
		return model.Entry{}, err
	}
	if e, ok := ws.Find(id); ok {
		return e, nil
	}
	return model.Entry{}, fmt.Errorf("%w: запись %s в приложении %s", ErrNotFound, id, application)
}

// reload перечитывает рабочую область после мутации.
// Ошибка чтения не отменяет мутацию: рабочая область сбрасывается.
func (s *EntryService) reload(ctx context.Context, application string) {
	if _, err := s.Workspace(ctx, application, true); err != nil {
		s.logger.Warn("Не удалось обновить рабочую область",
			slog.String("application", application),
			slog.String("error", err.Error()),
		)
	}
}

func validateApplication(application string) error {
	if strings.TrimSpace(application) == "" {
		return fmt.Errorf("%w: application обязателен", ErrValidation)
	}
	return nil
}
