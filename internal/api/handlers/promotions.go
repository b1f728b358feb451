// promotions.go — обработчики промоушена записей между метками.
// План → подтверждение или отказ; состояние направлений и история.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/config-console/internal/api/middleware"
	"github.com/bigkaa/goartstore/config-console/internal/promotion"
	"github.com/bigkaa/goartstore/config-console/internal/service"
)

// planResponse — ответ на построение плана.
type planResponse struct {
	Plan   *service.PendingPlan `json:"plan"`
	Prompt string               `json:"prompt"`
}

// GetPromotionState — GET /api/v1/applications/{app}/promotions.
// Доступ: readonly.
func (h *APIHandler) GetPromotionState(w http.ResponseWriter, r *http.Request) {
	state, err := h.promotions.State(r.Context(), chi.URLParam(r, "app"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// PlanPromotion — POST /api/v1/applications/{app}/promotions.
// Строит план и возвращает запрос подтверждения (201).
// Пустой исходный набор — 200 с информационным уведомлением, без плана.
// Доступ: admin.
func (h *APIHandler) PlanPromotion(w http.ResponseWriter, r *http.Request) {
	var d promotion.Direction
	if !decodeJSON(w, r, &d) {
		return
	}

	plan, err := h.promotions.Plan(r.Context(), chi.URLParam(r, "app"), d, middleware.SubjectFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, promotion.ErrNoSourceEntries) {
			writeJSON(w, http.StatusOK, noticeResponse{Notice: service.NoticeFor(err)})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, planResponse{Plan: plan, Prompt: plan.Prompt()})
}

// ConfirmPromotion — POST /api/v1/applications/{app}/promotions/{planId}/confirm.
// После начала удаления ответ всегда 200 с итогом: status=partial при ошибках
// отдельных вызовов, refreshed=false, если список не удалось перечитать.
// Доступ: admin.
func (h *APIHandler) ConfirmPromotion(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	outcome, err := h.promotions.Confirm(r.Context(), app, chi.URLParam(r, "planId"),
		middleware.SubjectFromContext(r.Context()))
	if outcome == nil {
		if errors.Is(err, promotion.ErrNoSourceEntries) || errors.Is(err, promotion.ErrDeclined) {
			writeJSON(w, http.StatusOK, noticeResponse{Notice: service.NoticeFor(err)})
			return
		}
		h.writeError(w, r, err)
		return
	}

	if err != nil {
		h.logger.Warn("Промоушен завершён с ошибками",
			slog.String("application", app),
			slog.String("promotion_id", outcome.ID),
			slog.String("status", outcome.Status),
			slog.Bool("refreshed", outcome.Refreshed),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, http.StatusOK, outcome)
}

// DeclinePromotion — POST /api/v1/applications/{app}/promotions/{planId}/decline.
// Доступ: admin.
func (h *APIHandler) DeclinePromotion(w http.ResponseWriter, r *http.Request) {
	notice, err := h.promotions.Decline(r.Context(), chi.URLParam(r, "app"), chi.URLParam(r, "planId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice})
}
