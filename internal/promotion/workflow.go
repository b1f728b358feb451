package promotion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
	"github.com/bigkaa/goartstore/config-console/internal/lock"
)

// Repository — операции Record Store, которые использует промоушен.
// Реализуется repository.EntryRepository.
type Repository interface {
	List(ctx context.Context, application string) ([]model.Entry, error)
	Create(ctx context.Context, draft model.Draft) (model.Entry, error)
	Delete(ctx context.Context, id model.EntryID) error
}

// Journal — журнал намерений (write-ahead). nil отключает журналирование.
type Journal interface {
	Begin(ctx context.Context, intent *model.PromotionIntent) error
	Advance(ctx context.Context, id string, phase model.PromotionPhase) error
	Complete(ctx context.Context, id string, outcome model.IntentOutcome) error
	Pending(ctx context.Context) ([]*model.PromotionIntent, error)
}

// HistoryReader — чтение последних промоушенов приложения.
type HistoryReader interface {
	Recent(ctx context.Context, application string, limit int) ([]*model.PromotionIntent, error)
}

// Confirmer — шлюз подтверждения. false — пользователь отказался.
type Confirmer interface {
	Confirm(ctx context.Context, plan Plan) (bool, error)
}

// ConfirmFunc — адаптер функции к Confirmer.
type ConfirmFunc func(ctx context.Context, plan Plan) (bool, error)

// Confirm вызывает f(ctx, plan).
func (f ConfirmFunc) Confirm(ctx context.Context, plan Plan) (bool, error) {
	return f(ctx, plan)
}

// Affirm подтверждает любой план. Используется, когда подтверждение
// уже получено вне процесса (HTTP confirm).
var Affirm Confirmer = ConfirmFunc(func(context.Context, Plan) (bool, error) { return true, nil })

// Direction — пара меток source → target.
type Direction struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func (d Direction) String() string {
	return d.Source + "->" + d.Target
}

// Validate проверяет, что метки непустые и различны.
func (d Direction) Validate() error {
	if strings.TrimSpace(d.Source) == "" || strings.TrimSpace(d.Target) == "" {
		return fmt.Errorf("%w: метки source и target обязательны", ErrInvalidDirection)
	}
	if d.Source == d.Target {
		return fmt.Errorf("%w: source и target совпадают (%s)", ErrInvalidDirection, d.Source)
	}
	return nil
}

// Request — входные данные промоушена.
type Request struct {
	// Application — приложение
	Application string
	// Direction — направление
	Direction Direction
	// Snapshot — текущий набор записей приложения (состояние рабочей области)
	Snapshot []model.Entry
	// Subject — инициатор (sub из JWT), пишется в журнал
	Subject string
}

// Plan — то, что будет показано для подтверждения.
type Plan struct {
	Application string
	Direction   Direction
	// Delete — записи целевой метки, которые будут удалены
	Delete []model.Entry
	// Create — записи исходной метки, которые будут пересозданы под целевой
	Create []model.Entry
}

// Report — итог выполненного промоушена.
type Report struct {
	ID             string
	Plan           Plan
	Deleted        int
	Created        []model.Entry
	DeleteFailures []ItemFailure
	CreateFailures []ItemFailure
	// Entries — список после обновления из Record Store; nil при ошибке обновления
	Entries  []model.Entry
	Duration time.Duration
}

// RunStatus — выполняющийся запуск промоушена.
type RunStatus struct {
	ID          string    `json:"id"`
	Application string    `json:"application"`
	Direction   Direction `json:"direction"`
	State       State     `json:"state"`
	StartedAt   time.Time `json:"started_at"`
}

// Options — параметры Workflow.
type Options struct {
	// Concurrency — максимум одновременных вызовов в фазе; ≤ 0 — без ограничения
	Concurrency int
	// ExclusiveLabels — противоположные направления делят один флаг занятости
	ExclusiveLabels bool
	// CreateStatus — статус пересоздаваемых записей (по умолчанию active)
	CreateStatus model.Status
}

// Workflow — промоушен записей между метками.
type Workflow struct {
	repo    Repository
	guard   lock.Guard
	journal Journal
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	runs map[string]*trackedRun
}

type trackedRun struct {
	status RunStatus
	sm     *StateMachine
}

// New создаёт Workflow. journal может быть nil.
func New(repo Repository, guard lock.Guard, journal Journal, opts Options, logger *slog.Logger) *Workflow {
	if opts.CreateStatus == "" {
		opts.CreateStatus = model.StatusActive
	}
	return &Workflow{
		repo:    repo,
		guard:   guard,
		journal: journal,
		opts:    opts,
		logger:  logger.With(slog.String("component", "promotion")),
		now:     time.Now,
		runs:    make(map[string]*trackedRun),
	}
}

// Prepare строит план по снимку. Не обращается к Record Store.
// Пустой исходный набор — ErrNoSourceEntries, занятое направление — ErrBusy.
func (w *Workflow) Prepare(ctx context.Context, req Request) (Plan, error) {
	if err := req.Direction.Validate(); err != nil {
		return Plan{}, err
	}

	plan := Plan{Application: req.Application, Direction: req.Direction}
	for _, e := range req.Snapshot {
		if e.HasLabel(req.Direction.Source) {
			plan.Create = append(plan.Create, e)
		}
		if e.HasLabel(req.Direction.Target) {
			plan.Delete = append(plan.Delete, e)
		}
	}
	if len(plan.Create) == 0 {
		return Plan{}, ErrNoSourceEntries
	}

	busy, err := w.Busy(ctx, req.Application, req.Direction)
	if err != nil {
		return Plan{}, err
	}
	if busy {
		return Plan{}, ErrBusy
	}
	return plan, nil
}

// Busy сообщает, выполняется ли промоушен направления.
func (w *Workflow) Busy(ctx context.Context, application string, d Direction) (bool, error) {
	held, err := w.guard.Held(ctx, w.lockKey(application, d))
	if err != nil {
		return false, fmt.Errorf("проверка флага занятости: %w", err)
	}
	return held, nil
}

// Run выполняет промоушен: план → подтверждение → удаление → создание → обновление.
//
// При ErrNoSourceEntries, ErrBusy и ErrDeclined Report равен nil и ни одного
// изменяющего вызова не выполнено. После начала разрушающей фазы Report
// возвращается всегда, ошибки отдельных вызовов — *PartialFailureError,
// ошибка финального обновления — repository.ErrTransport (через errors.Join).
func (w *Workflow) Run(ctx context.Context, req Request, confirmer Confirmer) (*Report, error) {
	id := uuid.New().String()
	sm := NewStateMachine()
	w.track(id, req, sm)
	defer w.untrack(id)

	log := w.logger.With(
		slog.String("promotion_id", id),
		slog.String("application", req.Application),
		slog.String("direction", req.Direction.String()),
	)

	plan, err := w.Prepare(ctx, req)
	if err != nil {
		runsTotal.WithLabelValues(outcomeOf(err)).Inc()
		log.Info("Промоушен не начат", slog.String("reason", err.Error()))
		return nil, err
	}

	w.enter(sm, StateConfirming)
	ok, err := confirmer.Confirm(ctx, plan)
	if err != nil || !ok {
		w.enter(sm, StateIdle)
		if err != nil {
			runsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("подтверждение промоушена: %w", err)
		}
		runsTotal.WithLabelValues("declined").Inc()
		log.Info("Промоушен отклонён")
		return nil, ErrDeclined
	}

	lease, err := w.guard.Acquire(ctx, w.lockKey(req.Application, req.Direction))
	if err != nil {
		w.enter(sm, StateIdle)
		if errors.Is(err, lock.ErrHeld) {
			runsTotal.WithLabelValues("busy").Inc()
			return nil, ErrBusy
		}
		runsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("захват флага занятости: %w", err)
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn("Не удалось снять флаг занятости", slog.String("error", rerr.Error()))
		}
	}()

	return w.execute(ctx, log, sm, id, plan, req.Subject)
}

// execute выполняет фазы под захваченным флагом занятости.
func (w *Workflow) execute(ctx context.Context, log *slog.Logger, sm *StateMachine, id string, plan Plan, subject string) (*Report, error) {
	start := w.now()
	// Отправленные вызовы не прерываются отменой запроса клиента.
	runCtx := context.WithoutCancel(ctx)

	intent := &model.PromotionIntent{
		ID:          id,
		Application: plan.Application,
		Source:      plan.Direction.Source,
		Target:      plan.Direction.Target,
		Phase:       model.PhaseDeleting,
		TargetIDs:   entryIDs(plan.Delete),
		Snapshot:    plan.Create,
		Subject:     subject,
		StartedAt:   start.UTC(),
	}
	if w.journal != nil {
		if err := w.journal.Begin(runCtx, intent); err != nil {
			w.enter(sm, StateIdle)
			runsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %w", ErrJournal, err) //nolint:errorlint // намеренный двойной wrap
		}
	}

	log.Info("Промоушен начат",
		slog.Int("delete", len(plan.Delete)),
		slog.Int("create", len(plan.Create)),
	)

	w.enter(sm, StateDeleting)
	deleteFailures := w.deleteAll(runCtx, plan.Delete)

	if w.journal != nil {
		if err := w.journal.Advance(runCtx, id, model.PhaseCreating); err != nil {
			log.Error("Не удалось зафиксировать фазу в журнале", slog.String("error", err.Error()))
		}
	}

	w.enter(sm, StateCreating)
	created, createFailures := w.createAll(runCtx, plan)

	outcome := model.IntentOutcome{
		Status:         model.IntentCommitted,
		DeleteFailures: len(deleteFailures),
		CreateFailures: len(createFailures),
	}
	if outcome.DeleteFailures > 0 || outcome.CreateFailures > 0 {
		outcome.Status = model.IntentFailed
	}
	if w.journal != nil {
		if err := w.journal.Complete(runCtx, id, outcome); err != nil {
			log.Error("Не удалось закрыть запись журнала", slog.String("error", err.Error()))
		}
	}

	// Обновление выполняется при любом исходе фаз.
	entries, refreshErr := w.repo.List(runCtx, plan.Application)
	w.enter(sm, StateIdle)

	report := &Report{
		ID:             id,
		Plan:           plan,
		Deleted:        len(plan.Delete) - len(deleteFailures),
		Created:        created,
		DeleteFailures: deleteFailures,
		CreateFailures: createFailures,
		Entries:        entries,
		Duration:       w.now().Sub(start),
	}
	runDuration.Observe(report.Duration.Seconds())

	var runErr error
	if len(deleteFailures) > 0 || len(createFailures) > 0 {
		runErr = &PartialFailureError{Deletes: deleteFailures, Creates: createFailures}
		runsTotal.WithLabelValues("partial").Inc()
	} else {
		runsTotal.WithLabelValues("committed").Inc()
	}
	if refreshErr != nil {
		log.Error("Не удалось обновить список после промоушена", slog.String("error", refreshErr.Error()))
		runErr = errors.Join(runErr, refreshErr)
	}

	log.Info("Промоушен завершён",
		slog.String("status", string(outcome.Status)),
		slog.Int("deleted", report.Deleted),
		slog.Int("created", len(created)),
		slog.Int("delete_failures", len(deleteFailures)),
		slog.Int("create_failures", len(createFailures)),
		slog.Duration("duration", report.Duration),
	)
	return report, runErr
}

// deleteAll удаляет записи конкурентно и ждёт все вызовы (барьер фазы).
func (w *Workflow) deleteAll(ctx context.Context, targets []model.Entry) []ItemFailure {
	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(w.limit())
	for i, e := range targets {
		g.Go(func() error {
			errs[i] = w.repo.Delete(ctx, e.ID)
			return nil
		})
	}
	_ = g.Wait()

	return w.collectFailures(model.PhaseDeleting, targets, errs)
}

// createAll создаёт копии исходных записей под целевой меткой конкурентно.
func (w *Workflow) createAll(ctx context.Context, plan Plan) ([]model.Entry, []ItemFailure) {
	sources := plan.Create
	results := make([]model.Entry, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(w.limit())
	for i, e := range sources {
		g.Go(func() error {
			results[i], errs[i] = w.repo.Create(ctx, w.promotedDraft(plan, e))
			return nil
		})
	}
	_ = g.Wait()

	created := make([]model.Entry, 0, len(sources))
	for i := range sources {
		if errs[i] == nil {
			created = append(created, results[i])
		}
	}
	return created, w.collectFailures(model.PhaseCreating, sources, errs)
}

// promotedDraft — копия исходной записи без id и меток времени,
// с label = [target] и статусом CreateStatus.
func (w *Workflow) promotedDraft(plan Plan, e model.Entry) model.Draft {
	d := e.Draft()
	if d.Application == "" {
		d.Application = plan.Application
	}
	d.Label = model.NewLabelSet(plan.Direction.Target)
	d.Status = w.opts.CreateStatus
	return d
}

func (w *Workflow) collectFailures(phase model.PromotionPhase, entries []model.Entry, errs []error) []ItemFailure {
	var failures []ItemFailure
	for i, err := range errs {
		if err == nil {
			continue
		}
		failures = append(failures, ItemFailure{Entry: entries[i], Err: err})
		w.logger.Warn("Ошибка вызова Record Store в фазе промоушена",
			slog.String("phase", string(phase)),
			slog.String("id", entries[i].ID.String()),
			slog.String("key", entries[i].Key),
			slog.String("error", err.Error()),
		)
	}
	if len(failures) > 0 {
		phaseFailuresTotal.WithLabelValues(string(phase)).Add(float64(len(failures)))
	}
	return failures
}

// Runs возвращает выполняющиеся запуски приложения.
func (w *Workflow) Runs(application string) []RunStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := make([]RunStatus, 0, len(w.runs))
	for _, r := range w.runs {
		if r.status.Application != application {
			continue
		}
		st := r.status
		st.State = r.sm.Current()
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

// History возвращает последние промоушены приложения из журнала.
// Без журнала или без поддержки чтения — пустой список.
func (w *Workflow) History(ctx context.Context, application string, limit int) ([]*model.PromotionIntent, error) {
	reader, ok := w.journal.(HistoryReader)
	if !ok {
		return []*model.PromotionIntent{}, nil
	}
	return reader.Recent(ctx, application, limit)
}

func (w *Workflow) track(id string, req Request, sm *StateMachine) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs[id] = &trackedRun{
		status: RunStatus{
			ID:          id,
			Application: req.Application,
			Direction:   req.Direction,
			StartedAt:   w.now().UTC(),
		},
		sm: sm,
	}
}

func (w *Workflow) untrack(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.runs, id)
}

// enter выполняет переход, который по построению Run всегда допустим.
func (w *Workflow) enter(sm *StateMachine, target State) {
	if err := sm.TransitionTo(target); err != nil {
		w.logger.Error("Недопустимый переход промоушена", slog.String("error", err.Error()))
	}
}

func (w *Workflow) limit() int {
	if w.opts.Concurrency <= 0 {
		return -1
	}
	return w.opts.Concurrency
}

// lockKey — ключ флага занятости. С ExclusiveLabels противоположные
// направления дают один ключ.
func (w *Workflow) lockKey(application string, d Direction) string {
	if w.opts.ExclusiveLabels {
		a, b := d.Source, d.Target
		if b < a {
			a, b = b, a
		}
		return application + ":" + a + "<->" + b
	}
	return application + ":" + d.String()
}

func entryIDs(entries []model.Entry) []model.EntryID {
	ids := make([]model.EntryID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNoSourceEntries):
		return "noop"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrDeclined):
		return "declined"
	default:
		return "error"
	}
}
