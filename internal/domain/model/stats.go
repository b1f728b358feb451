package model

import (
	"sort"
	"strings"
)

// Stats — сводка по записям приложения (карточки статистики).
type Stats struct {
	Total    int `json:"total"`
	Draft    int `json:"draft"`
	Pending  int `json:"pending"`
	Deployed int `json:"deployed"`
	Active   int `json:"active"`
}

// ComputeStats считает записи по каноническим статусам.
func ComputeStats(entries []Entry) Stats {
	var s Stats
	for _, e := range entries {
		s.Total++
		switch e.Status.Canonical() {
		case StatusDraft:
			s.Draft++
		case StatusPending:
			s.Pending++
		case StatusDeployed:
			s.Deployed++
		case StatusActive:
			s.Active++
		}
	}
	return s
}

// ApplicationSummary — строка сводной таблицы на главной странице.
type ApplicationSummary struct {
	Application string   `json:"application"`
	Profiles    []string `json:"profiles"`
	Labels      []string `json:"labels"`
	Stats       Stats    `json:"stats"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
}

// Summarize группирует записи по приложениям. Результат отсортирован по имени.
func Summarize(entries []Entry) []ApplicationSummary {
	groups := make(map[string][]Entry)
	for _, e := range entries {
		groups[e.Application] = append(groups[e.Application], e)
	}

	result := make([]ApplicationSummary, 0, len(groups))
	for app, items := range groups {
		profiles := make(map[string]struct{})
		labels := make(map[string]struct{})
		var last Timestamp
		for _, e := range items {
			if e.Profile != "" {
				profiles[e.Profile] = struct{}{}
			}
			for _, l := range e.Label {
				labels[l] = struct{}{}
			}
			if e.UpdatedAt.After(last.Time) {
				last = e.UpdatedAt
			}
		}
		summary := ApplicationSummary{
			Application: app,
			Profiles:    sortedKeys(profiles),
			Labels:      sortedKeys(labels),
			Stats:       ComputeStats(items),
		}
		if !last.IsZero() {
			summary.LastUpdated = last.UTC().Format(timestampLayout)
		}
		result = append(result, summary)
	}

	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Application) < strings.ToLower(result[j].Application)
	})
	return result
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
