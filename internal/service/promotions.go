// promotions.go — сервис промоушена: план с подтверждением, выполнение,
// отказ, состояние направлений и история из журнала намерений.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
	"github.com/bigkaa/goartstore/config-console/internal/promotion"
)

// maxPendingPlans — ёмкость кэша ожидающих подтверждения планов.
const maxPendingPlans = 1024

// DefaultDirections — направления промоушена консоли.
var DefaultDirections = []promotion.Direction{
	{Source: model.LabelLatest, Target: model.LabelCandidate},
	{Source: model.LabelCandidate, Target: model.LabelLatest},
}

// PendingPlan — план промоушена, ожидающий подтверждения оператора.
type PendingPlan struct {
	ID          string              `json:"id"`
	Application string              `json:"application"`
	Direction   promotion.Direction `json:"direction"`
	// DeleteCount — сколько записей целевой метки будет удалено
	DeleteCount int `json:"delete_count"`
	// CreateCount — сколько записей будет создано под целевой меткой
	CreateCount int           `json:"create_count"`
	Delete      []model.Entry `json:"delete"`
	Create      []model.Entry `json:"create"`
	Subject     string        `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at"`

	snapshot []model.Entry
}

// Prompt — текст запроса подтверждения.
func (p *PendingPlan) Prompt() string {
	return fmt.Sprintf("Промоушен %s → %s: будет удалено %d записей %s и создано %d записей из %s. Продолжить?",
		p.Direction.Source, p.Direction.Target,
		p.DeleteCount, p.Direction.Target,
		p.CreateCount, p.Direction.Source)
}

// Outcome — результат выполненного промоушена.
type Outcome struct {
	ID             string              `json:"id"`
	Application    string              `json:"application"`
	Direction      promotion.Direction `json:"direction"`
	Status         string              `json:"status"`
	Deleted        int                 `json:"deleted"`
	Created        int                 `json:"created"`
	DeleteFailures []FailedItem        `json:"delete_failures"`
	CreateFailures []FailedItem        `json:"create_failures"`
	// Refreshed — список после промоушена прочитан из Record Store
	Refreshed bool          `json:"refreshed"`
	Entries   []model.Entry `json:"entries"`
	Duration  string        `json:"duration"`
	Notice    Notice        `json:"notice"`
}

// FailedItem — запись, вызов для которой не выполнен.
type FailedItem struct {
	ID    model.EntryID `json:"id,omitempty"`
	Key   string        `json:"key"`
	Error string        `json:"error"`
}

// Статусы Outcome.
const (
	OutcomeCommitted = "committed"
	OutcomePartial   = "partial"
)

// DirectionState — состояние направления промоушена.
type DirectionState struct {
	Direction promotion.Direction `json:"direction"`
	Busy      bool                `json:"busy"`
}

// PromotionState — состояние промоушенов приложения.
type PromotionState struct {
	Application string                   `json:"application"`
	Directions  []DirectionState         `json:"directions"`
	Runs        []promotion.RunStatus    `json:"runs"`
	Plans       []*PendingPlan           `json:"plans"`
	History     []*model.PromotionIntent `json:"history"`
}

// PromotionServiceOptions — параметры PromotionService.
type PromotionServiceOptions struct {
	// PlanTTL — сколько план ждёт подтверждения
	PlanTTL time.Duration
	// HistoryLimit — глубина истории в State
	HistoryLimit int
}

// PromotionService — промоушен записей между метками.
type PromotionService struct {
	workflow *promotion.Workflow
	entries  *EntryService
	plans    *expirable.LRU[string, *PendingPlan]
	opts     PromotionServiceOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewPromotionService создаёт сервис промоушена.
func NewPromotionService(
	workflow *promotion.Workflow,
	entries *EntryService,
	opts PromotionServiceOptions,
	logger *slog.Logger,
) *PromotionService {
	if opts.PlanTTL <= 0 {
		opts.PlanTTL = 10 * time.Minute
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	return &PromotionService{
		workflow: workflow,
		entries:  entries,
		plans:    expirable.NewLRU[string, *PendingPlan](maxPendingPlans, nil, opts.PlanTTL),
		opts:     opts,
		logger:   logger.With(slog.String("component", "promotion_service")),
		now:      time.Now,
	}
}

// Plan строит план промоушена по рабочей области приложения и сохраняет его
// до подтверждения. Изменяющих вызовов Record Store не выполняет.
// Пустой исходный набор — promotion.ErrNoSourceEntries, занятое направление — promotion.ErrBusy.
func (s *PromotionService) Plan(ctx context.Context, application string, d promotion.Direction, subject string) (*PendingPlan, error) {
	ws, err := s.entries.Workspace(ctx, application, false)
	if err != nil {
		return nil, err
	}

	plan, err := s.workflow.Prepare(ctx, promotion.Request{
		Application: application,
		Direction:   d,
		Snapshot:    ws.Entries,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	pending := &PendingPlan{
		ID:          uuid.New().String(),
		Application: application,
		Direction:   d,
		DeleteCount: len(plan.Delete),
		CreateCount: len(plan.Create),
		Delete:      nonNilEntries(plan.Delete),
		Create:      nonNilEntries(plan.Create),
		Subject:     subject,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.PlanTTL),
		snapshot:    append([]model.Entry{}, ws.Entries...),
	}
	s.plans.Add(pending.ID, pending)

	s.logger.Info("План промоушена ожидает подтверждения",
		slog.String("plan_id", pending.ID),
		slog.String("application", application),
		slog.String("direction", d.String()),
		slog.Int("delete", pending.DeleteCount),
		slog.Int("create", pending.CreateCount),
	)
	return pending, nil
}

// Confirm выполняет подтверждённый план. План одноразовый: после запуска
// фаз он удаляется, при занятом направлении сохраняется для повтора.
//
// Outcome возвращается всегда, когда разрушающая фаза началась; вместе с ним
// может вернуться *promotion.PartialFailureError и/или ошибка обновления списка.
func (s *PromotionService) Confirm(ctx context.Context, application, planID, subject string) (*Outcome, error) {
	plan, err := s.take(application, planID)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = plan.Subject
	}

	report, runErr := s.workflow.Run(ctx, promotion.Request{
		Application: application,
		Direction:   plan.Direction,
		Snapshot:    plan.snapshot,
		Subject:     subject,
	}, promotion.Affirm)
	if report == nil {
		if errors.Is(runErr, promotion.ErrBusy) {
			// Направление занято: план остаётся в ожидании подтверждения.
			s.plans.Add(plan.ID, plan)
		}
		return nil, translate(runErr)
	}

	if report.Entries != nil {
		s.entries.Adopt(application, report.Entries)
	} else {
		s.entries.Invalidate(application)
	}

	return s.outcome(report, runErr), translate(runErr)
}

// Decline отклоняет план: состояние Record Store не меняется.
func (s *PromotionService) Decline(ctx context.Context, application, planID string) (Notice, error) {
	plan, err := s.take(application, planID)
	if err != nil {
		return Notice{}, err
	}

	_, err = s.workflow.Run(ctx, promotion.Request{
		Application: application,
		Direction:   plan.Direction,
		Snapshot:    plan.snapshot,
		Subject:     plan.Subject,
	}, promotion.ConfirmFunc(func(context.Context, promotion.Plan) (bool, error) {
		return false, nil
	}))
	if err != nil && !errors.Is(err, promotion.ErrDeclined) && !errors.Is(err, promotion.ErrBusy) {
		return Notice{}, translate(err)
	}

	return info("Промоушен отменён",
		fmt.Sprintf("Промоушен %s → %s не выполнялся", plan.Direction.Source, plan.Direction.Target)), nil
}

// State возвращает состояние промоушенов приложения.
func (s *PromotionService) State(ctx context.Context, application string) (*PromotionState, error) {
	if err := validateApplication(application); err != nil {
		return nil, err
	}

	state := &PromotionState{
		Application: application,
		Runs:        s.workflow.Runs(application),
		Plans:       []*PendingPlan{},
	}
	for _, d := range DefaultDirections {
		busy, err := s.workflow.Busy(ctx, application, d)
		if err != nil {
			return nil, err
		}
		state.Directions = append(state.Directions, DirectionState{Direction: d, Busy: busy})
	}
	for _, p := range s.plans.Values() {
		if p.Application == application {
			state.Plans = append(state.Plans, p)
		}
	}
	sort.Slice(state.Plans, func(i, j int) bool {
		return state.Plans[i].CreatedAt.Before(state.Plans[j].CreatedAt)
	})

	history, err := s.workflow.History(ctx, application, s.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("чтение истории промоушенов: %w", err)
	}
	state.History = history
	if state.History == nil {
		state.History = []*model.PromotionIntent{}
	}
	return state, nil
}

// NoticeFor формирует уведомление для ошибки промоушена.
func NoticeFor(err error) Notice {
	switch {
	case errors.Is(err, promotion.ErrNoSourceEntries):
		return info("Нечего продвигать", "Под исходной меткой нет записей")
	case errors.Is(err, promotion.ErrBusy):
		return warning("Промоушен выполняется", "Дождитесь завершения текущего промоушена этого направления")
	case errors.Is(err, promotion.ErrDeclined):
		return info("Промоушен отменён", "Изменения не вносились")
	case errors.Is(err, ErrPlanNotFound):
		return warning("План не найден", "План истёк или уже выполнен, постройте новый")
	case errors.Is(err, ErrRecordStoreUnavailable):
		return Notice{Level: NoticeError, Title: "Record Store недоступен", Message: err.Error()}
	default:
		return Notice{Level: NoticeError, Title: "Ошибка промоушена", Message: err.Error()}
	}
}

// take извлекает и удаляет план приложения.
func (s *PromotionService) take(application, planID string) (*PendingPlan, error) {
	plan, ok := s.plans.Get(planID)
	if !ok || plan.Application != application {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	s.plans.Remove(planID)
	return plan, nil
}

func (s *PromotionService) outcome(report *promotion.Report, runErr error) *Outcome {
	out := &Outcome{
		ID:             report.ID,
		Application:    report.Plan.Application,
		Direction:      report.Plan.Direction,
		Status:         OutcomeCommitted,
		Deleted:        report.Deleted,
		Created:        len(report.Created),
		DeleteFailures: failedItems(report.DeleteFailures),
		CreateFailures: failedItems(report.CreateFailures),
		Refreshed:      report.Entries != nil,
		Entries:        nonNilEntries(report.Entries),
		Duration:       report.Duration.String(),
	}

	d := report.Plan.Direction
	switch {
	case errors.Is(runErr, promotion.ErrDeletionFailed) || errors.Is(runErr, promotion.ErrCreationFailed):
		out.Status = OutcomePartial
		out.Notice = Notice{
			Level: NoticeError,
			Title: "Промоушен завершён с ошибками",
			Message: fmt.Sprintf("%s → %s: удалено %d, создано %d, ошибок удаления %d, ошибок создания %d",
				d.Source, d.Target, out.Deleted, out.Created, len(out.DeleteFailures), len(out.CreateFailures)),
		}
	default:
		out.Notice = success("Промоушен выполнен",
			fmt.Sprintf("%d записей скопировано из %s в %s", out.Created, d.Source, d.Target))
	}
	if !out.Refreshed {
		out.Notice.Message += ". Список не обновлён: Record Store недоступен"
		if out.Notice.Level == NoticeSuccess {
			out.Notice.Level = NoticeWarning
		}
	}
	return out
}

func failedItems(items []promotion.ItemFailure) []FailedItem {
	result := make([]FailedItem, 0, len(items))
	for _, it := range items {
		result = append(result, FailedItem{ID: it.Entry.ID, Key: it.Entry.Key, Error: it.Err.Error()})
	}
	return result
}

func nonNilEntries(entries []model.Entry) []model.Entry {
	if entries == nil {
		return []model.Entry{}
	}
	return entries
}
