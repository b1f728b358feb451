package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
)

// ErrIntentClosed — запись журнала уже закрыта (committed/failed).
var ErrIntentClosed = errors.New("запись журнала намерений уже закрыта")

// PromotionIntentRepository — журнал намерений промоушена в PostgreSQL.
// Реализует promotion.Journal и promotion.HistoryReader.
type PromotionIntentRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewPromotionIntentRepository создаёт журнал намерений поверх пула подключений.
func NewPromotionIntentRepository(pool *pgxpool.Pool, logger *slog.Logger) *PromotionIntentRepository {
	return &PromotionIntentRepository{
		pool:   pool,
		logger: logger.With(slog.String("component", "intent_repository")),
		now:    time.Now,
	}
}

const intentColumns = `id::text, application, source_label, target_label, phase, status,
	target_ids, snapshot, delete_failures, create_failures, COALESCE(subject, ''),
	started_at, updated_at, completed_at`

// Begin сохраняет новую запись со статусом pending.
func (r *PromotionIntentRepository) Begin(ctx context.Context, intent *model.PromotionIntent) error {
	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	if _, err := uuid.Parse(intent.ID); err != nil {
		return fmt.Errorf("%w: некорректный id промоушена %q", ErrValidation, intent.ID)
	}

	now := r.now().UTC()
	intent.Status = model.IntentPending
	if intent.Phase == "" {
		intent.Phase = model.PhaseDeleting
	}
	if intent.StartedAt.IsZero() {
		intent.StartedAt = now
	}
	intent.UpdatedAt = now
	intent.CompletedAt = nil

	targetIDs, err := json.Marshal(nonNil(intent.TargetIDs))
	if err != nil {
		return fmt.Errorf("ошибка сериализации target_ids: %w", err)
	}
	snapshot, err := json.Marshal(nonNil(intent.Snapshot))
	if err != nil {
		return fmt.Errorf("ошибка сериализации snapshot: %w", err)
	}

	query := `
		INSERT INTO promotion_intents (
			id, application, source_label, target_label, phase, status,
			target_ids, snapshot, subject, started_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, NULLIF($9, ''), $10, $11)`

	_, err = r.pool.Exec(ctx, query,
		intent.ID, intent.Application, intent.Source, intent.Target,
		string(intent.Phase), string(intent.Status),
		string(targetIDs), string(snapshot), intent.Subject,
		intent.StartedAt, intent.UpdatedAt,
	)
	if err != nil {
		if isDuplicateIntent(err) {
			return fmt.Errorf("%w: промоушен %s", ErrConflict, intent.ID)
		}
		return fmt.Errorf("ошибка создания записи журнала: %w", err)
	}

	r.logger.Debug("Журнал: промоушен начат",
		slog.String("intent_id", intent.ID),
		slog.String("application", intent.Application),
		slog.String("direction", intent.Source+"->"+intent.Target),
	)
	return nil
}

// Advance фиксирует переход pending-записи в следующую фазу.
func (r *PromotionIntentRepository) Advance(ctx context.Context, id string, phase model.PromotionPhase) error {
	return r.updatePending(ctx, id, func(tx pgx.Tx, now time.Time) error {
		_, err := tx.Exec(ctx,
			`UPDATE promotion_intents SET phase = $2, updated_at = $3 WHERE id = $1`,
			id, string(phase), now,
		)
		if err != nil {
			return fmt.Errorf("ошибка обновления фазы промоушена %s: %w", id, err)
		}
		return nil
	})
}

// Complete закрывает pending-запись с итоговым статусом.
func (r *PromotionIntentRepository) Complete(ctx context.Context, id string, outcome model.IntentOutcome) error {
	return r.updatePending(ctx, id, func(tx pgx.Tx, now time.Time) error {
		_, err := tx.Exec(ctx, `
			UPDATE promotion_intents
			SET status = $2, delete_failures = $3, create_failures = $4,
			    updated_at = $5, completed_at = $5
			WHERE id = $1`,
			id, string(outcome.Status), outcome.DeleteFailures, outcome.CreateFailures, now,
		)
		if err != nil {
			return fmt.Errorf("ошибка закрытия промоушена %s: %w", id, err)
		}
		return nil
	})
}

// Pending возвращает незавершённые промоушены, старые первыми.
func (r *PromotionIntentRepository) Pending(ctx context.Context) ([]*model.PromotionIntent, error) {
	query := `SELECT ` + intentColumns + `
		FROM promotion_intents
		WHERE status = 'pending'
		ORDER BY started_at ASC`

	intents, err := r.query(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, intent := range intents {
		r.logger.Warn("Обнаружен незавершённый промоушен",
			slog.String("intent_id", intent.ID),
			slog.String("application", intent.Application),
			slog.String("phase", string(intent.Phase)),
			slog.Time("started_at", intent.StartedAt),
		)
	}
	return intents, nil
}

// Recent возвращает последние промоушены приложения, новые первыми.
func (r *PromotionIntentRepository) Recent(ctx context.Context, application string, limit int) ([]*model.PromotionIntent, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + intentColumns + `
		FROM promotion_intents
		WHERE application = $1
		ORDER BY started_at DESC
		LIMIT $2`
	return r.query(ctx, query, application, limit)
}

// Get возвращает запись по id.
func (r *PromotionIntentRepository) Get(ctx context.Context, id string) (*model.PromotionIntent, error) {
	intents, err := r.query(ctx, `SELECT `+intentColumns+` FROM promotion_intents WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, fmt.Errorf("%w: промоушен %s", ErrNotFound, id)
	}
	return intents[0], nil
}

// CleanCompleted удаляет закрытые записи, завершённые раньше now - retention.
func (r *PromotionIntentRepository) CleanCompleted(ctx context.Context, retention time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM promotion_intents
		WHERE status <> 'pending' AND completed_at <= $1`,
		r.now().UTC().Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки журнала намерений: %w", err)
	}
	cleaned := int(tag.RowsAffected())
	if cleaned > 0 {
		r.logger.Info("Очистка журнала намерений завершена", slog.Int("cleaned", cleaned))
	}
	return cleaned, nil
}

func (r *PromotionIntentRepository) query(ctx context.Context, query string, args ...any) ([]*model.PromotionIntent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала намерений: %w", err)
	}
	defer rows.Close()

	var result []*model.PromotionIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации журнала намерений: %w", err)
	}
	return result, nil
}

func scanIntent(row pgx.Row) (*model.PromotionIntent, error) {
	var (
		intent    model.PromotionIntent
		phase     string
		status    string
		targetIDs []byte
		snapshot  []byte
	)
	err := row.Scan(
		&intent.ID, &intent.Application, &intent.Source, &intent.Target,
		&phase, &status, &targetIDs, &snapshot,
		&intent.DeleteFailures, &intent.CreateFailures, &intent.Subject,
		&intent.StartedAt, &intent.UpdatedAt, &intent.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
	}
	intent.Phase = model.PromotionPhase(phase)
	intent.Status = model.IntentStatus(status)
	if err := json.Unmarshal(targetIDs, &intent.TargetIDs); err != nil {
		return nil, fmt.Errorf("промоушен %s: target_ids: %w", intent.ID, err)
	}
	if err := json.Unmarshal(snapshot, &intent.Snapshot); err != nil {
		return nil, fmt.Errorf("промоушен %s: snapshot: %w", intent.ID, err)
	}
	intent.StartedAt = intent.StartedAt.UTC()
	intent.UpdatedAt = intent.UpdatedAt.UTC()
	if intent.CompletedAt != nil {
		t := intent.CompletedAt.UTC()
		intent.CompletedAt = &t
	}
	return &intent, nil
}

// updatePending выполняет fn в транзакции над заблокированной pending-записью.
// Закрытая запись — ErrIntentClosed, отсутствующая — ErrNotFound.
func (r *PromotionIntentRepository) updatePending(ctx context.Context, id string, fn func(tx pgx.Tx, now time.Time) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("начало транзакции журнала: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := lockPending(ctx, tx, id); err != nil {
		return err
	}
	if err := fn(tx, r.now().UTC()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isDuplicateIntent — повторный Begin с тем же id промоушена.
func isDuplicateIntent(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// lockPending блокирует строку журнала до конца транзакции
// и проверяет, что промоушен ещё не закрыт.
func lockPending(ctx context.Context, tx pgx.Tx, id string) error {
	var status string
	err := tx.QueryRow(ctx,
		`SELECT status FROM promotion_intents WHERE id = $1 FOR UPDATE`, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: промоушен %s", ErrNotFound, id)
		}
		return fmt.Errorf("ошибка блокировки записи журнала %s: %w", id, err)
	}
	if model.IntentStatus(status) != model.IntentPending {
		return fmt.Errorf("%w: промоушен %s (%s)", ErrIntentClosed, id, status)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
