package model

import (
	"fmt"
	"strings"
	"time"
)

// DeploymentType — способ деплоя записи.
type DeploymentType string

const (
	// DeployImmediate — немедленный деплой (статус deployed)
	DeployImmediate DeploymentType = "immediate"
	// DeployScheduled — отложенный деплой (статус pending)
	DeployScheduled DeploymentType = "scheduled"
)

// DeploymentOption — параметры деплоя записи.
// Деплой — только смена статуса, реального взаимодействия с кластерами нет.
type DeploymentOption struct {
	Type           DeploymentType `json:"type"`
	ScheduledTime  *time.Time     `json:"scheduledTime,omitempty"`
	TargetClusters []string       `json:"targetClusters"`
	Environment    string         `json:"environment"`
}

// TargetStatus возвращает статус, который получит запись после деплоя.
func (o DeploymentOption) TargetStatus() Status {
	if o.Type == DeployScheduled {
		return StatusPending
	}
	return StatusDeployed
}

// Validate проверяет параметры деплоя по справочнику кластеров.
// now — текущее время для проверки отложенного деплоя.
func (o DeploymentOption) Validate(catalog ClusterCatalog, now time.Time) error {
	switch o.Type {
	case DeployImmediate:
	case DeployScheduled:
		if o.ScheduledTime == nil || o.ScheduledTime.IsZero() {
			return fmt.Errorf("scheduledTime: обязателен для отложенного деплоя")
		}
		if !o.ScheduledTime.After(now) {
			return fmt.Errorf("scheduledTime: время %s уже прошло", o.ScheduledTime.UTC().Format(time.RFC3339))
		}
	default:
		return fmt.Errorf("type: недопустимое значение %q, допустимые: immediate, scheduled", o.Type)
	}

	if strings.TrimSpace(o.Environment) == "" {
		return fmt.Errorf("environment: обязательное поле")
	}
	if len(o.TargetClusters) == 0 {
		return fmt.Errorf("targetClusters: требуется хотя бы один кластер")
	}
	for _, id := range o.TargetClusters {
		cluster, ok := catalog.Get(id)
		if !ok {
			return fmt.Errorf("targetClusters: неизвестный кластер %q", id)
		}
		if cluster.Status != ClusterOnline {
			return fmt.Errorf("targetClusters: кластер %q недоступен (%s)", id, cluster.Status)
		}
	}
	return nil
}

// ClusterStatus — состояние кластера в справочнике.
type ClusterStatus string

const (
	ClusterOnline  ClusterStatus = "online"
	ClusterOffline ClusterStatus = "offline"
)

// Cluster — K8s-кластер из статического справочника.
type Cluster struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Environment string        `json:"environment"`
	Status      ClusterStatus `json:"status"`
}

// ClusterCatalog — статический справочник кластеров.
type ClusterCatalog []Cluster

// DefaultClusters — справочник по умолчанию. Данные иллюстративные,
// с реальной control plane консоль не взаимодействует.
func DefaultClusters() ClusterCatalog {
	return ClusterCatalog{
		{ID: "k8s-dev-1", Name: "Development Cluster 1", Environment: "dev", Status: ClusterOnline},
		{ID: "k8s-dev-2", Name: "Development Cluster 2", Environment: "dev", Status: ClusterOnline},
		{ID: "k8s-staging-1", Name: "Staging Cluster", Environment: "staging", Status: ClusterOnline},
		{ID: "k8s-prod-1", Name: "Production Cluster 1", Environment: "production", Status: ClusterOnline},
		{ID: "k8s-prod-2", Name: "Production Cluster 2", Environment: "production", Status: ClusterOffline},
	}
}

// Get ищет кластер по идентификатору.
func (c ClusterCatalog) Get(id string) (Cluster, bool) {
	for _, cl := range c {
		if cl.ID == id {
			return cl, true
		}
	}
	return Cluster{}, false
}
