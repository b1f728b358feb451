// entries.go — обработчики /api/v1/applications и записей приложения.
// Список с фильтрами, CRUD, деплой, статистика, сводка и справочник кластеров.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/config-console/internal/api/errors"
	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
	"github.com/bigkaa/goartstore/config-console/internal/service"
)

// entryListResponse — ответ GET /entries.
type entryListResponse struct {
	Application string        `json:"application"`
	Entries     []model.Entry `json:"entries"`
	Total       int           `json:"total"`
	Stats       model.Stats   `json:"stats"`
	LoadedAt    time.Time     `json:"loadedAt"`
}

// entryResponse — ответ на изменение записи.
type entryResponse struct {
	Entry  model.Entry    `json:"entry"`
	Notice service.Notice `json:"notice"`
}

// GetDashboard — GET /api/v1/applications.
// Доступ: readonly.
func (h *APIHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.entries.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": summaries})
}

// ListClusters — GET /api/v1/clusters.
// Доступ: readonly.
func (h *APIHandler) ListClusters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"clusters": h.entries.Clusters()})
}

// ListEntries — GET /api/v1/applications/{app}/entries.
// Параметры: label, profile, status, q, refresh.
// Доступ: readonly.
func (h *APIHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	q := r.URL.Query()

	filter := service.Filter{
		Label:   q.Get("label"),
		Profile: q.Get("profile"),
		Query:   q.Get("q"),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		filter.Status = status
	}

	refresh := false
	if raw := q.Get("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.ValidationError(w, "refresh: ожидается true или false")
			return
		}
		refresh = v
	}

	list, err := h.entries.ListEntries(r.Context(), app, filter, refresh)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryListResponse{
		Application: list.Application,
		Entries:     list.Entries,
		Total:       len(list.Entries),
		Stats:       list.Stats,
		LoadedAt:    list.LoadedAt,
	})
}

// CreateEntry — POST /api/v1/applications/{app}/entries.
// Доступ: editor.
func (h *APIHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var draft model.Draft
	if !decodeJSON(w, r, &draft) {
		return
	}

	entry, notice, err := h.entries.CreateEntry(r.Context(), chi.URLParam(r, "app"), draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse{Entry: entry, Notice: notice})
}

// UpdateEntry — PUT /api/v1/applications/{app}/entries/{id}.
// Доступ: editor.
func (h *APIHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var draft model.Draft
	if !decodeJSON(w, r, &draft) {
		return
	}

	entry, notice, err := h.entries.UpdateEntry(r.Context(),
		chi.URLParam(r, "app"), model.EntryID(chi.URLParam(r, "id")), draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: entry, Notice: notice})
}

// DeleteEntry — DELETE /api/v1/applications/{app}/entries/{id}.
// Уже удалённая запись — тоже 200.
// Доступ: editor.
func (h *APIHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	notice, err := h.entries.DeleteEntry(r.Context(),
		chi.URLParam(r, "app"), model.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice})
}

// DeployEntry — POST /api/v1/applications/{app}/entries/{id}/deploy.
// Доступ: editor.
func (h *APIHandler) DeployEntry(w http.ResponseWriter, r *http.Request) {
	var opt model.DeploymentOption
	if !decodeJSON(w, r, &opt) {
		return
	}

	entry, notice, err := h.entries.Deploy(r.Context(),
		chi.URLParam(r, "app"), model.EntryID(chi.URLParam(r, "id")), opt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: entry, Notice: notice})
}

// GetStats — GET /api/v1/applications/{app}/stats.
// Доступ: readonly.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.entries.Stats(r.Context(), chi.URLParam(r, "app"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
