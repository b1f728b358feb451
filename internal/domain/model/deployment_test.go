package model

import (
	"testing"
	"time"
)

func TestDeploymentOption_Validate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	catalog := DefaultClusters()

	tests := []struct {
		name    string
		opt     DeploymentOption
		wantErr bool
	}{
		{
			name: "немедленный деплой",
			opt:  DeploymentOption{Type: DeployImmediate, Environment: "production", TargetClusters: []string{"k8s-prod-1"}},
		},
		{
			name: "отложенный деплой",
			opt:  DeploymentOption{Type: DeployScheduled, ScheduledTime: &future, Environment: "dev", TargetClusters: []string{"k8s-dev-1", "k8s-dev-2"}},
		},
		{
			name:    "отложенный без времени",
			opt:     DeploymentOption{Type: DeployScheduled, Environment: "dev", TargetClusters: []string{"k8s-dev-1"}},
			wantErr: true,
		},
		{
			name:    "отложенный в прошлом",
			opt:     DeploymentOption{Type: DeployScheduled, ScheduledTime: &past, Environment: "dev", TargetClusters: []string{"k8s-dev-1"}},
			wantErr: true,
		},
		{
			name:    "offline кластер",
			opt:     DeploymentOption{Type: DeployImmediate, Environment: "production", TargetClusters: []string{"k8s-prod-2"}},
			wantErr: true,
		},
		{
			name:    "неизвестный кластер",
			opt:     DeploymentOption{Type: DeployImmediate, Environment: "production", TargetClusters: []string{"k8s-unknown"}},
			wantErr: true,
		},
		{
			name:    "без кластеров",
			opt:     DeploymentOption{Type: DeployImmediate, Environment: "production"},
			wantErr: true,
		},
		{
			name:    "без окружения",
			opt:     DeploymentOption{Type: DeployImmediate, TargetClusters: []string{"k8s-dev-1"}},
			wantErr: true,
		},
		{
			name:    "неизвестный тип",
			opt:     DeploymentOption{Type: "canary", Environment: "dev", TargetClusters: []string{"k8s-dev-1"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opt.Validate(catalog, now)
			if tt.wantErr && err == nil {
				t.Error("ожидалась ошибка")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("неожиданная ошибка: %v", err)
			}
		})
	}
}

func TestDeploymentOption_TargetStatus(t *testing.T) {
	if s := (DeploymentOption{Type: DeployImmediate}).TargetStatus(); s != StatusDeployed {
		t.Errorf("immediate → %q, ожидается deployed", s)
	}
	if s := (DeploymentOption{Type: DeployScheduled}).TargetStatus(); s != StatusPending {
		t.Errorf("scheduled → %q, ожидается pending", s)
	}
}

func TestSummarize(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	entries := []Entry{
		{Application: "payments", Profile: "production", Label: NewLabelSet("latest"), Status: StatusDeployed, UpdatedAt: ts},
		{Application: "Auth", Profile: "dev", Label: NewLabelSet("candidate"), Status: StatusSchedule},
		{Application: "payments", Profile: "dev", Label: NewLabelSet("latest", "candidate"), Status: StatusActive},
	}

	got := Summarize(entries)
	if len(got) != 2 {
		t.Fatalf("len = %d, ожидается 2", len(got))
	}
	if got[0].Application != "Auth" || got[1].Application != "payments" {
		t.Errorf("порядок = %s, %s; ожидается Auth, payments", got[0].Application, got[1].Application)
	}
	if got[0].Stats.Pending != 1 {
		t.Errorf("Auth.Pending = %d, ожидается 1", got[0].Stats.Pending)
	}
	p := got[1]
	if p.Stats.Total != 2 || p.Stats.Deployed != 1 || p.Stats.Active != 1 {
		t.Errorf("payments.Stats = %+v", p.Stats)
	}
	if len(p.Labels) != 2 || p.Labels[0] != "candidate" {
		t.Errorf("payments.Labels = %v, ожидается [candidate latest]", p.Labels)
	}
	if p.LastUpdated != "2024-06-01T00:00:00.000Z" {
		t.Errorf("LastUpdated = %q", p.LastUpdated)
	}
}
