package wal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
)

// WAL — файловый журнал намерений промоушенов.
// Запись сохраняется атомарно: temp файл → fsync → rename.
type WAL struct {
	// dir — директория хранения WAL-файлов (CC_INTENT_LOG_DIR)
	dir string
	// mu — мьютекс для потокобезопасности
	mu sync.Mutex
	// logger — логгер
	logger *slog.Logger
	// now — источник времени
	now func() time.Time
}

// New создаёт новый WAL-движок. Проверяет и создаёт директорию
// если она не существует. Возвращает ошибку при проблемах с FS.
func New(dir string, logger *slog.Logger) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию WAL %s: %w", dir, err)
	}

	// Проверяем доступность на запись через temp файл
	testFile := filepath.Join(dir, ".wal_write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория WAL %s недоступна для записи: %w", dir, err)
	}
	os.Remove(testFile)

	return &WAL{
		dir:    dir,
		logger: logger.With(slog.String("component", "wal")),
		now:    time.Now,
	}, nil
}

// Begin сохраняет новую запись со статусом pending.
// Пустой ID заполняется UUID v4, пустая фаза — deleting.
func (w *WAL) Begin(_ context.Context, intent *model.PromotionIntent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	if err := validateID(intent.ID); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(w.dir, walFileName(intent.ID))); err == nil {
		return fmt.Errorf("WAL-запись %s уже существует", intent.ID)
	}

	now := w.now().UTC()
	intent.Status = model.IntentPending
	if intent.Phase == "" {
		intent.Phase = model.PhaseDeleting
	}
	if intent.StartedAt.IsZero() {
		intent.StartedAt = now
	}
	intent.UpdatedAt = now
	intent.CompletedAt = nil

	if err := w.writeEntry(intent); err != nil {
		return fmt.Errorf("не удалось создать WAL-запись: %w", err)
	}

	w.logger.Debug("WAL: промоушен начат",
		slog.String("intent_id", intent.ID),
		slog.String("application", intent.Application),
		slog.String("direction", intent.Source+"->"+intent.Target),
		slog.Int("snapshot", len(intent.Snapshot)),
		slog.Int("target_ids", len(intent.TargetIDs)),
	)

	return nil
}

// Advance фиксирует переход pending-записи в следующую фазу.
func (w *WAL) Advance(_ context.Context, id string, phase model.PromotionPhase) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	intent, err := w.readPending(id)
	if err != nil {
		return err
	}

	intent.Phase = phase
	intent.UpdatedAt = w.now().UTC()

	if err := w.writeEntry(intent); err != nil {
		return fmt.Errorf("не удалось обновить WAL-запись %s: %w", id, err)
	}

	w.logger.Debug("WAL: фаза промоушена",
		slog.String("intent_id", id),
		slog.String("phase", string(phase)),
	)
	return nil
}

// Complete закрывает pending-запись с итоговым статусом.
func (w *WAL) Complete(_ context.Context, id string, outcome model.IntentOutcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	intent, err := w.readPending(id)
	if err != nil {
		return err
	}

	now := w.now().UTC()
	intent.Status = outcome.Status
	intent.DeleteFailures = outcome.DeleteFailures
	intent.CreateFailures = outcome.CreateFailures
	intent.UpdatedAt = now
	intent.CompletedAt = &now

	if err := w.writeEntry(intent); err != nil {
		return fmt.Errorf("не удалось обновить WAL-запись %s: %w", id, err)
	}

	w.logger.Debug("WAL: промоушен завершён",
		slog.String("intent_id", id),
		slog.String("status", string(outcome.Status)),
		slog.Duration("duration", now.Sub(intent.StartedAt)),
	)
	return nil
}

// Pending возвращает все записи со статусом pending, старые первыми.
// Вызывается при старте сервера для восстановления прерванных промоушенов.
func (w *WAL) Pending(_ context.Context) ([]*model.PromotionIntent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	all, err := w.scan()
	if err != nil {
		return nil, err
	}

	var pending []*model.PromotionIntent
	for _, intent := range all {
		if intent.Status != model.IntentPending {
			continue
		}
		pending = append(pending, intent)
		w.logger.Warn("Обнаружен незавершённый промоушен",
			slog.String("intent_id", intent.ID),
			slog.String("application", intent.Application),
			slog.String("phase", string(intent.Phase)),
			slog.Time("started_at", intent.StartedAt),
		)
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].StartedAt.Before(pending[j].StartedAt)
	})
	return pending, nil
}

// Recent возвращает до limit последних записей приложения, новые первыми.
func (w *WAL) Recent(_ context.Context, application string, limit int) ([]*model.PromotionIntent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	all, err := w.scan()
	if err != nil {
		return nil, err
	}

	result := make([]*model.PromotionIntent, 0, len(all))
	for _, intent := range all {
		if intent.Application == application {
			result = append(result, intent)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Get читает запись по идентификатору.
func (w *WAL) Get(id string) (*model.PromotionIntent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := validateID(id); err != nil {
		return nil, err
	}
	return w.readEntry(id)
}

// CleanCompleted удаляет закрытые (committed/failed) записи старше retention.
// retention = 0 — удалить все закрытые.
func (w *WAL) CleanCompleted(retention time.Duration) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(w.dir, "*"+walSuffix))
	if err != nil {
		return 0, fmt.Errorf("не удалось сканировать директорию WAL: %w", err)
	}

	cutoff := w.now().UTC().Add(-retention)
	cleaned := 0
	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), walSuffix)
		intent, err := w.readEntry(id)
		if err != nil {
			continue
		}
		if intent.Status == model.IntentPending || intent.CompletedAt == nil || intent.CompletedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			w.logger.Warn("Не удалось удалить завершённую WAL-запись",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		w.logger.Info("Очистка WAL завершена",
			slog.Int("cleaned", cleaned),
		)
	}

	return cleaned, nil
}

// Dir возвращает путь к директории WAL.
func (w *WAL) Dir() string {
	return w.dir
}

// readPending читает запись и проверяет, что она ещё открыта.
func (w *WAL) readPending(id string) (*model.PromotionIntent, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	intent, err := w.readEntry(id)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать WAL-запись %s: %w", id, err)
	}
	if intent.Status != model.IntentPending {
		return nil, fmt.Errorf("WAL-запись %s имеет статус %s, ожидается %s", id, intent.Status, model.IntentPending)
	}
	return intent, nil
}

// scan читает все записи директории. Нечитаемые файлы пропускаются с предупреждением.
func (w *WAL) scan() ([]*model.PromotionIntent, error) {
	paths, err := filepath.Glob(filepath.Join(w.dir, "*"+walSuffix))
	if err != nil {
		return nil, fmt.Errorf("не удалось сканировать директорию WAL: %w", err)
	}

	result := make([]*model.PromotionIntent, 0, len(paths))
	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), walSuffix)
		intent, err := w.readEntry(id)
		if err != nil {
			w.logger.Warn("Не удалось прочитать WAL-запись",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		result = append(result, intent)
	}
	return result, nil
}

// writeEntry атомарно записывает запись на диск.
// Паттерн: temp файл → fsync → atomic rename.
func (w *WAL) writeEntry(intent *model.PromotionIntent) error {
	data, err := json.MarshalIndent(intent, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}

	targetPath := filepath.Join(w.dir, walFileName(intent.ID))
	tmpPath := targetPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// readEntry читает запись из файла.
func (w *WAL) readEntry(id string) (*model.PromotionIntent, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, walFileName(id)))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}

	var intent model.PromotionIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("ошибка десериализации: %w", err)
	}

	return &intent, nil
}
