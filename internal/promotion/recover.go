package promotion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
	"github.com/bigkaa/goartstore/config-console/internal/lock"
)

// Recover доводит до конца промоушены, прерванные падением процесса.
//
// Для каждой pending-записи журнала: повторно удаляются записи целевой метки
// из снимка (отсутствующая запись — успех), затем создаются те записи снимка,
// у которых ещё нет копии под целевой меткой, созданной после начала промоушена.
// Возвращает число закрытых записей журнала.
func (w *Workflow) Recover(ctx context.Context) (int, error) {
	if w.journal == nil {
		return 0, nil
	}

	pending, err := w.journal.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: чтение незавершённых промоушенов: %w", ErrJournal, err) //nolint:errorlint // намеренный двойной wrap
	}

	recovered := 0
	var errs []error
	for _, intent := range pending {
		if err := w.recoverOne(ctx, intent); err != nil {
			if errors.Is(err, ErrBusy) {
				w.logger.Info("Промоушен уже восстанавливается другим экземпляром",
					slog.String("promotion_id", intent.ID),
				)
				continue
			}
			errs = append(errs, fmt.Errorf("промоушен %s: %w", intent.ID, err))
			continue
		}
		recovered++
		recoveredTotal.Inc()
	}

	return recovered, errors.Join(errs...)
}

func (w *Workflow) recoverOne(ctx context.Context, intent *model.PromotionIntent) error {
	d := Direction{Source: intent.Source, Target: intent.Target}
	log := w.logger.With(
		slog.String("promotion_id", intent.ID),
		slog.String("application", intent.Application),
		slog.String("direction", d.String()),
		slog.String("phase", string(intent.Phase)),
	)

	lease, err := w.guard.Acquire(ctx, w.lockKey(intent.Application, d))
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return ErrBusy
		}
		return fmt.Errorf("захват флага занятости: %w", err)
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn("Не удалось снять флаг занятости", slog.String("error", rerr.Error()))
		}
	}()

	log.Info("Восстановление прерванного промоушена",
		slog.Int("target_ids", len(intent.TargetIDs)),
		slog.Int("snapshot", len(intent.Snapshot)),
	)

	targets := make([]model.Entry, 0, len(intent.TargetIDs))
	for _, id := range intent.TargetIDs {
		targets = append(targets, model.Entry{ID: id, Application: intent.Application})
	}
	deleteFailures := w.deleteAll(ctx, targets)

	current, err := w.repo.List(ctx, intent.Application)
	if err != nil {
		// Запись остаётся pending и будет обработана при следующем старте.
		return err
	}

	plan := Plan{
		Application: intent.Application,
		Direction:   d,
		Create:      missingCopies(intent, current),
	}
	_, createFailures := w.createAll(ctx, plan)

	outcome := model.IntentOutcome{
		Status:         model.IntentCommitted,
		DeleteFailures: len(deleteFailures),
		CreateFailures: len(createFailures),
	}
	if outcome.DeleteFailures > 0 || outcome.CreateFailures > 0 {
		outcome.Status = model.IntentFailed
	}
	if err := w.journal.Complete(ctx, intent.ID, outcome); err != nil {
		return fmt.Errorf("%w: %w", ErrJournal, err) //nolint:errorlint // намеренный двойной wrap
	}

	log.Info("Промоушен восстановлен",
		slog.String("status", string(outcome.Status)),
		slog.Int("recreated", len(plan.Create)-len(createFailures)),
		slog.Int("delete_failures", len(deleteFailures)),
		slog.Int("create_failures", len(createFailures)),
	)
	return nil
}

// missingCopies возвращает записи снимка без копии под целевой меткой.
// Копия — запись с целевой меткой, тем же профилем, ключом и значением,
// созданная не раньше начала промоушена. Совпадения считаются с кратностью.
func missingCopies(intent *model.PromotionIntent, current []model.Entry) []model.Entry {
	since := intent.StartedAt.Truncate(time.Millisecond)
	copies := make(map[string]int)
	for _, e := range current {
		if !e.HasLabel(intent.Target) || e.CreatedAt.Before(since) {
			continue
		}
		copies[copyKey(e)]++
	}

	var missing []model.Entry
	for _, e := range intent.Snapshot {
		k := copyKey(e)
		if copies[k] > 0 {
			copies[k]--
			continue
		}
		missing = append(missing, e)
	}
	return missing
}

func copyKey(e model.Entry) string {
	return e.Profile + "\x00" + e.Key + "\x00" + e.Value
}
