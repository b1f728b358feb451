package lock

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// exerciseGuard — общие проверки для любой реализации Guard.
func exerciseGuard(t *testing.T, g Guard) {
	t.Helper()
	ctx := context.Background()

	held, err := g.Held(ctx, "app:latest->candidate")
	if err != nil {
		t.Fatalf("Held: %v", err)
	}
	if held {
		t.Fatal("свободный флаг отмечен как занятый")
	}

	lease, err := g.Acquire(ctx, "app:latest->candidate")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := g.Acquire(ctx, "app:latest->candidate"); !errors.Is(err, ErrHeld) {
		t.Errorf("повторный Acquire: ожидался ErrHeld, получено %v", err)
	}

	// Противоположное направление — независимый флаг
	other, err := g.Acquire(ctx, "app:candidate->latest")
	if err != nil {
		t.Fatalf("Acquire противоположного направления: %v", err)
	}
	defer other.Release(ctx)

	if held, _ := g.Held(ctx, "app:latest->candidate"); !held {
		t.Error("захваченный флаг должен быть занят")
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Errorf("повторный Release: %v", err)
	}
	if held, _ := g.Held(ctx, "app:latest->candidate"); held {
		t.Error("флаг должен быть свободен после Release")
	}

	again, err := g.Acquire(ctx, "app:latest->candidate")
	if err != nil {
		t.Fatalf("Acquire после Release: %v", err)
	}
	again.Release(ctx)
}

func TestLocal(t *testing.T) {
	exerciseGuard(t, NewLocal())
}

// TestLocal_StaleLeaseDoesNotReleaseNewOwner — старый захват не снимает чужой флаг.
func TestLocal_StaleLeaseDoesNotReleaseNewOwner(t *testing.T) {
	ctx := context.Background()
	g := NewLocal()

	first, _ := g.Acquire(ctx, "k")
	first.Release(ctx)
	second, err := g.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer second.Release(ctx)

	first.Release(ctx)
	if held, _ := g.Held(ctx, "k"); !held {
		t.Error("повторный Release старого захвата снял флаг нового владельца")
	}
}

// TestLocal_Concurrent — из N одновременных захватов успешен ровно один.
func TestLocal_Concurrent(t *testing.T) {
	ctx := context.Background()
	g := NewLocal()

	const n = 50
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := g.Acquire(ctx, "k"); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("успешных захватов = %d, ожидается 1", won)
	}
}

// setupRedis запускает Redis в Docker-контейнере через testcontainers.
func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить Redis контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Не удалось получить адрес контейнера: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedis(t *testing.T) {
	rdb := setupRedis(t)
	g := NewRedis(rdb, "cc:promotion:", 2*time.Second, testLogger())

	if status, msg := g.CheckReady(); status != "ok" {
		t.Fatalf("CheckReady = %s (%s)", status, msg)
	}
	exerciseGuard(t, g)
}

// TestRedis_KeepAlive — флаг живёт дольше ttl, пока не снят.
func TestRedis_KeepAlive(t *testing.T) {
	rdb := setupRedis(t)
	g := NewRedis(rdb, "cc:promotion:", time.Second, testLogger())
	ctx := context.Background()

	lease, err := g.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	time.Sleep(2500 * time.Millisecond)

	if held, _ := g.Held(ctx, "k"); !held {
		t.Error("флаг истёк, хотя захват не снят")
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if held, _ := g.Held(ctx, "k"); held {
		t.Error("флаг должен быть свободен после Release")
	}
}
