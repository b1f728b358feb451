// workspace.go — рабочая область приложения: записи, загруженные из Record Store.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
)

// Prometheus-метрики кэша рабочих областей.
var (
	workspaceHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cc_workspace_cache_hits_total",
		Help: "Общее количество попаданий в кэш рабочих областей.",
	})
	workspaceMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cc_workspace_cache_misses_total",
		Help: "Общее количество промахов кэша рабочих областей.",
	})
)

// Workspace — снимок записей приложения, с которым работает оператор.
// Источник истины — Record Store: после каждой мутации снимок перечитывается.
type Workspace struct {
	Application string
	Entries     []model.Entry
	LoadedAt    time.Time
}

// Find ищет запись по id.
func (w *Workspace) Find(id model.EntryID) (model.Entry, bool) {
	for _, e := range w.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return model.Entry{}, false
}

// WorkspaceCache — LRU-кэш рабочих областей с автоматическим TTL.
// Каждый экземпляр консоли имеет собственный in-memory кэш.
type WorkspaceCache struct {
	cache *expirable.LRU[string, *Workspace]
}

// NewWorkspaceCache создаёт кэш с указанным максимальным размером и TTL.
func NewWorkspaceCache(maxSize int, ttl time.Duration) *WorkspaceCache {
	return &WorkspaceCache{
		cache: expirable.NewLRU[string, *Workspace](maxSize, nil, ttl),
	}
}

// Get возвращает рабочую область приложения.
// Обновляет Prometheus-метрики hit/miss.
func (c *WorkspaceCache) Get(application string) (*Workspace, bool) {
	ws, ok := c.cache.Get(application)
	if ok {
		workspaceHitsTotal.Inc()
		return ws, true
	}
	workspaceMissesTotal.Inc()
	return nil, false
}

// Set сохраняет свежий список записей приложения.
func (c *WorkspaceCache) Set(application string, entries []model.Entry, loadedAt time.Time) *Workspace {
	ws := &Workspace{
		Application: application,
		Entries:     append([]model.Entry{}, entries...),
		LoadedAt:    loadedAt.UTC(),
	}
	c.cache.Add(application, ws)
	return ws
}

// Invalidate удаляет рабочую область (следующее чтение пойдёт в Record Store).
func (c *WorkspaceCache) Invalidate(application string) {
	c.cache.Remove(application)
}

// Len — количество рабочих областей в кэше.
func (c *WorkspaceCache) Len() int {
	return c.cache.Len()
}
