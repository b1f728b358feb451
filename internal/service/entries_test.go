package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
	"github.com/bigkaa/goartstore/config-console/internal/lock"
	"github.com/bigkaa/goartstore/config-console/internal/promotion"
	"github.com/bigkaa/goartstore/config-console/internal/recordstore"
	"github.com/bigkaa/goartstore/config-console/internal/recordstore/recordstoretest"
	"github.com/bigkaa/goartstore/config-console/internal/repository"
	"github.com/bigkaa/goartstore/config-console/internal/storage/wal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixture — сервисы поверх фейкового Record Store.
type fixture struct {
	store      *recordstoretest.Server
	cache      *WorkspaceCache
	entries    *EntryService
	promotions *PromotionService
	workflow   *promotion.Workflow
	guard      *lock.Local
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := recordstoretest.New(t)
	client, err := recordstore.New(recordstore.Options{BaseURL: store.URL}, testLogger())
	if err != nil {
		t.Fatalf("recordstore.New: %v", err)
	}
	journal, err := wal.New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("wal.New: %v", err)
	}
	repo := repository.NewEntryRepository(client, recordstoretest.Resource, testLogger())
	cache := NewWorkspaceCache(16, time.Minute)
	entries := NewEntryService(repo, cache, model.DefaultClusters(), testLogger())
	guard := lock.NewLocal()
	wf := promotion.New(repo, guard, journal, promotion.Options{}, testLogger())
	return &fixture{
		store:      store,
		cache:      cache,
		entries:    entries,
		workflow:   wf,
		guard:      guard,
		promotions: NewPromotionService(wf, entries, PromotionServiceOptions{PlanTTL: time.Minute}, testLogger()),
	}
}

func entry(app, profile, key, value string, status model.Status, labels ...string) model.Entry {
	ts := model.NewTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return model.Entry{
		Application: app,
		Profile:     profile,
		Label:       model.NewLabelSet(labels...),
		Key:         key,
		Value:       value,
		Status:      status,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func TestFilter_Match(t *testing.T) {
	e := entry("billing", "production", "db.host", "PG.internal", model.StatusSchedule, "latest", "candidate")

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"пустой фильтр", Filter{}, true},
		{"метка есть", Filter{Label: "candidate"}, true},
		{"метки нет", Filter{Label: "stable"}, false},
		{"профиль", Filter{Profile: "production"}, true},
		{"другой профиль", Filter{Profile: "dev"}, false},
		{"синоним статуса", Filter{Status: model.StatusPending}, true},
		{"другой статус", Filter{Status: model.StatusActive}, false},
		{"подстрока ключа", Filter{Query: "DB."}, true},
		{"подстрока значения", Filter{Query: "internal"}, true},
		{"нет совпадения", Filter{Query: "redis"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(e); got != tt.want {
				t.Errorf("Match() = %v, ожидается %v", got, tt.want)
			}
		})
	}
}

func TestListEntries_FilterAndStats(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(
		entry("billing", "dev", "a", "1", model.StatusDraft, "latest"),
		entry("billing", "dev", "b", "2", model.StatusDeployed, "latest"),
		entry("billing", "dev", "c", "3", model.StatusActive, "candidate"),
		entry("orders", "dev", "d", "4", model.StatusActive, "latest"),
	)

	list, err := f.entries.ListEntries(context.Background(), "billing", Filter{Label: "latest"}, false)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(list.Entries) != 2 {
		t.Errorf("записей = %d, ожидается 2", len(list.Entries))
	}
	if list.Stats.Total != 3 || list.Stats.Draft != 1 || list.Stats.Deployed != 1 || list.Stats.Active != 1 {
		t.Errorf("Stats = %+v", list.Stats)
	}
}

func TestListEntries_UsesWorkspaceCache(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(entry("billing", "dev", "a", "1", model.StatusDraft, "latest"))
	ctx := context.Background()

	if _, err := f.entries.ListEntries(ctx, "billing", Filter{}, false); err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if _, err := f.entries.ListEntries(ctx, "billing", Filter{}, false); err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if n := f.store.Calls(http.MethodGet); n != 1 {
		t.Errorf("GET-вызовов = %d, ожидается 1 (второй из кэша)", n)
	}

	if _, err := f.entries.ListEntries(ctx, "billing", Filter{}, true); err != nil {
		t.Fatalf("ListEntries(refresh): %v", err)
	}
	if n := f.store.Calls(http.MethodGet); n != 2 {
		t.Errorf("GET-вызовов = %d, ожидается 2 после refresh", n)
	}
}

func TestListEntries_TransportError(t *testing.T) {
	f := newFixture(t)
	f.store.FailList(http.StatusInternalServerError)

	_, err := f.entries.ListEntries(context.Background(), "billing", Filter{}, false)
	if !errors.Is(err, ErrRecordStoreUnavailable) {
		t.Fatalf("ошибка = %v, ожидается ErrRecordStoreUnavailable", err)
	}
	if !errors.Is(err, repository.ErrTransport) {
		t.Error("исходная repository.ErrTransport потеряна в цепочке")
	}
	if f.cache.Len() != 0 {
		t.Error("при ошибке рабочая область не должна кэшироваться")
	}
}

func TestCreateEntry_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, notice, err := f.entries.CreateEntry(ctx, "billing", model.Draft{
		Profile: "dev",
		Label:   model.NewLabelSet("latest"),
		Key:     "db.host",
		Value:   "pg",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if notice.Level != NoticeSuccess {
		t.Errorf("Notice.Level = %s, ожидается success", notice.Level)
	}
	if created.ID == "" || created.Application != "billing" || created.Status != model.StatusActive {
		t.Errorf("created = %+v", created)
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt.Time) {
		t.Errorf("createdAt = %v, updatedAt = %v; ожидаются равные", created.CreatedAt, created.UpdatedAt)
	}

	list, err := f.entries.ListEntries(ctx, "billing", Filter{}, false)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(list.Entries) != 1 || list.Entries[0].ID != created.ID || list.Entries[0].Key != "db.host" {
		t.Errorf("после создания список = %+v", list.Entries)
	}
}

func TestCreateEntry_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		app   string
		draft model.Draft
	}{
		{"чужое приложение", "billing", model.Draft{Application: "orders", Label: model.NewLabelSet("latest"), Key: "k"}},
		{"без ключа", "billing", model.Draft{Label: model.NewLabelSet("latest")}},
		{"без метки", "billing", model.Draft{Key: "k"}},
		{"пустое приложение", " ", model.Draft{Label: model.NewLabelSet("latest"), Key: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := f.entries.CreateEntry(ctx, tt.app, tt.draft); !errors.Is(err, ErrValidation) {
				t.Errorf("ошибка = %v, ожидается ErrValidation", err)
			}
		})
	}
	if n := f.store.Calls(http.MethodPost); n != 0 {
		t.Errorf("POST-вызовов = %d, ожидается 0", n)
	}
}

func TestUpdateEntry(t *testing.T) {
	f := newFixture(t)
	seeded := f.store.Seed(entry("billing", "dev", "db.host", "old", model.StatusDraft, "latest"))
	ctx := context.Background()
	id := seeded[0].ID

	updated, _, err := f.entries.UpdateEntry(ctx, "billing", id, model.Draft{
		Profile: "production",
		Label:   model.NewLabelSet("latest", "candidate"),
		Key:     "db.host",
		Value:   "new",
	})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if updated.ID != id || updated.Value != "new" || updated.Status != model.StatusDraft {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.CreatedAt.Equal(seeded[0].CreatedAt.Time) {
		t.Errorf("createdAt изменён: %v", updated.CreatedAt)
	}
	if updated.UpdatedAt.Before(updated.CreatedAt.Time) {
		t.Errorf("updatedAt %v раньше createdAt %v", updated.UpdatedAt, updated.CreatedAt)
	}

	_, _, err = f.entries.UpdateEntry(ctx, "billing", id, model.Draft{
		Application: "orders",
		Label:       model.NewLabelSet("latest"),
		Key:         "db.host",
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("смена приложения: %v, ожидается ErrValidation", err)
	}

	_, _, err = f.entries.UpdateEntry(ctx, "billing", "missing", model.Draft{Label: model.NewLabelSet("latest"), Key: "k"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный id: %v, ожидается ErrNotFound", err)
	}
}

func TestDeleteEntry_AlreadyGone(t *testing.T) {
	f := newFixture(t)
	seeded := f.store.Seed(entry("billing", "dev", "a", "1", model.StatusDraft, "latest"))
	ctx := context.Background()

	if _, err := f.entries.DeleteEntry(ctx, "billing", seeded[0].ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := f.entries.DeleteEntry(ctx, "billing", seeded[0].ID); err != nil {
		t.Errorf("повторное удаление: %v, ожидается успех", err)
	}
	if len(f.store.Entries()) != 0 {
		t.Error("запись не удалена из Record Store")
	}
}

func TestDeploy(t *testing.T) {
	f := newFixture(t)
	seeded := f.store.Seed(entry("billing", "dev", "a", "1", model.StatusDraft, "latest"))
	ctx := context.Background()
	id := seeded[0].ID

	later := time.Now().Add(time.Hour)
	tests := []struct {
		name    string
		opt     model.DeploymentOption
		want    model.Status
		wantErr error
	}{
		{
			name: "немедленный",
			opt:  model.DeploymentOption{Type: model.DeployImmediate, Environment: "dev", TargetClusters: []string{"k8s-dev-1"}},
			want: model.StatusDeployed,
		},
		{
			name: "отложенный",
			opt:  model.DeploymentOption{Type: model.DeployScheduled, ScheduledTime: &later, Environment: "dev", TargetClusters: []string{"k8s-dev-1"}},
			want: model.StatusPending,
		},
		{
			name:    "offline-кластер",
			opt:     model.DeploymentOption{Type: model.DeployImmediate, Environment: "production", TargetClusters: []string{"k8s-prod-2"}},
			wantErr: ErrValidation,
		},
		{
			name:    "без кластеров",
			opt:     model.DeploymentOption{Type: model.DeployImmediate, Environment: "dev"},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, notice, err := f.entries.Deploy(ctx, "billing", id, tt.opt)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ошибка = %v, ожидается %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Deploy: %v", err)
			}
			if updated.Status != tt.want {
				t.Errorf("Status = %s, ожидается %s", updated.Status, tt.want)
			}
			if notice.Level != NoticeSuccess {
				t.Errorf("Notice.Level = %s", notice.Level)
			}
		})
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(
		entry("orders", "dev", "a", "1", model.StatusActive, "latest"),
		entry("billing", "dev", "b", "2", model.StatusDraft, "latest"),
		entry("billing", "production", "c", "3", model.StatusDeployed, "candidate"),
	)

	summary, err := f.entries.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(summary) != 2 || summary[0].Application != "billing" || summary[1].Application != "orders" {
		t.Fatalf("summary = %+v", summary)
	}
	if summary[0].Stats.Total != 2 || len(summary[0].Profiles) != 2 {
		t.Errorf("billing = %+v", summary[0])
	}
}
