package repository

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
	"github.com/bigkaa/goartstore/config-console/internal/recordstore"
	"github.com/bigkaa/goartstore/config-console/internal/recordstore/recordstoretest"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newEntryRepo создаёт репозиторий поверх фейкового Record Store с фиксированными часами.
func newEntryRepo(t *testing.T, now time.Time) (*entryRepo, *recordstoretest.Server) {
	t.Helper()
	store := recordstoretest.New(t)
	client, err := recordstore.New(recordstore.Options{BaseURL: store.URL}, testLogger())
	if err != nil {
		t.Fatalf("recordstore.New: %v", err)
	}
	repo := NewEntryRepository(client, recordstoretest.Resource, testLogger()).(*entryRepo)
	repo.now = func() time.Time { return now }
	return repo, store
}

// TestEntryRepository_CreateThenList — созданная запись видна в списке,
// все поля совпадают, кроме назначенных сервером id и меток времени.
func TestEntryRepository_CreateThenList(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	repo, _ := newEntryRepo(t, now)
	ctx := context.Background()

	draft := model.Draft{
		Application: "user-service",
		Profile:     "production",
		Label:       model.NewLabelSet(model.LabelLatest),
		Key:         "db.host",
		Value:       `{"host":"pg.local"}`,
		Status:      model.StatusActive,
	}

	created, err := repo.Create(ctx, draft)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create: пустой id")
	}
	if !created.CreatedAt.Equal(now) || !created.UpdatedAt.Equal(now) {
		t.Errorf("метки времени = %v / %v, ожидается %v", created.CreatedAt, created.UpdatedAt, now)
	}

	list, err := repo.List(ctx, "user-service")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(List) = %d, ожидается 1", len(list))
	}
	got := list[0]
	if got.ID != created.ID {
		t.Errorf("ID = %q, ожидается %q", got.ID, created.ID)
	}
	if got.Key != draft.Key || got.Value != draft.Value || got.Profile != draft.Profile ||
		got.Application != draft.Application || got.Status != draft.Status {
		t.Errorf("запись не совпадает с черновиком: %+v", got)
	}
	if !got.HasLabel(model.LabelLatest) || len(got.Label) != 1 {
		t.Errorf("Label = %v", got.Label)
	}
}

// TestEntryRepository_ListEmpty — отсутствие записей не ошибка.
func TestEntryRepository_ListEmpty(t *testing.T) {
	repo, _ := newEntryRepo(t, time.Now())

	list, err := repo.List(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("ожидался пустой (не nil) список, получено %v", list)
	}
}

// TestEntryRepository_ListTransportError — не-2xx статус даёт ErrTransport.
func TestEntryRepository_ListTransportError(t *testing.T) {
	repo, store := newEntryRepo(t, time.Now())
	store.FailList(http.StatusServiceUnavailable)

	_, err := repo.List(context.Background(), "app")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("ожидался ErrTransport, получено %v", err)
	}

	_, err = repo.ListAll(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("ListAll: ожидался ErrTransport, получено %v", err)
	}
}

// TestEntryRepository_Update — полная замена, updatedAt = now, 404 → ErrNotFound.
func TestEntryRepository_Update(t *testing.T) {
	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	repo, store := newEntryRepo(t, later)
	ctx := context.Background()

	seeded := store.Seed(model.Entry{
		Application: "app",
		Label:       model.NewLabelSet("latest"),
		Key:         "k",
		Value:       "v1",
		Status:      model.StatusDraft,
		CreatedAt:   model.NewTimestamp(created),
		UpdatedAt:   model.NewTimestamp(created),
	})[0]

	seeded.Value = "v2"
	updated, err := repo.Update(ctx, seeded.ID, seeded)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Value != "v2" {
		t.Errorf("Value = %q, ожидается v2", updated.Value)
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, ожидается %v", updated.UpdatedAt, later)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt изменился: %v", updated.CreatedAt)
	}

	_, err = repo.Update(ctx, "missing", seeded)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидался ErrNotFound, получено %v", err)
	}
}

// TestEntryRepository_UpdateKeepsOrdering — updatedAt не может быть раньше createdAt.
func TestEntryRepository_UpdateKeepsOrdering(t *testing.T) {
	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	skewed := created.Add(-time.Minute)
	repo, store := newEntryRepo(t, skewed)

	e := store.Seed(model.Entry{
		Application: "app",
		Label:       model.NewLabelSet("latest"),
		Key:         "k",
		CreatedAt:   model.NewTimestamp(created),
	})[0]

	updated, err := repo.Update(context.Background(), e.ID, e)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.UpdatedAt.Before(updated.CreatedAt.Time) {
		t.Errorf("updatedAt %v < createdAt %v", updated.UpdatedAt, updated.CreatedAt)
	}
}

// TestEntryRepository_DeleteNotFoundIsSuccess — «уже удалена» считается успехом.
func TestEntryRepository_DeleteNotFoundIsSuccess(t *testing.T) {
	repo, store := newEntryRepo(t, time.Now())
	ctx := context.Background()

	e := store.Seed(model.Entry{Application: "app", Label: model.NewLabelSet("latest"), Key: "k"})[0]

	if err := repo.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, e.ID); err != nil {
		t.Fatalf("повторный Delete должен быть успешным, получено %v", err)
	}
	if n := len(store.Entries()); n != 0 {
		t.Errorf("в хранилище осталось %d записей", n)
	}

	store.FailDelete("boom", http.StatusInternalServerError)
	if err := repo.Delete(ctx, "boom"); !errors.Is(err, ErrTransport) {
		t.Errorf("ожидался ErrTransport, получено %v", err)
	}
}

// TestEntryRepository_CreateFailures — валидация и ошибки Record Store.
func TestEntryRepository_CreateFailures(t *testing.T) {
	repo, store := newEntryRepo(t, time.Now())
	ctx := context.Background()

	if _, err := repo.Create(ctx, model.Draft{Application: "app"}); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидался ErrValidation, получено %v", err)
	}
	if store.TotalCalls() != 0 {
		t.Errorf("невалидный черновик не должен уходить в Record Store")
	}

	store.FailCreate(func(model.Entry) int { return http.StatusBadGateway })
	_, err := repo.Create(ctx, model.Draft{Application: "app", Key: "k", Label: model.NewLabelSet("latest")})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("ожидался ErrTransport, получено %v", err)
	}
}
