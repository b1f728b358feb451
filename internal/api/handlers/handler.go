// Пакет handlers — HTTP-обработчики Config Console.
// handler.go — общий обработчик API: делегирует запросы в сервисный слой
// и переводит ошибки сервисов в коды ответа.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/config-console/internal/api/errors"
	"github.com/bigkaa/goartstore/config-console/internal/promotion"
	"github.com/bigkaa/goartstore/config-console/internal/service"
)

// APIHandler — обработчик API записей и промоушенов.
type APIHandler struct {
	entries    *service.EntryService
	promotions *service.PromotionService
	logger     *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(
	entries *service.EntryService,
	promotions *service.PromotionService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		entries:    entries,
		promotions: promotions,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// noticeResponse — ответ, состоящий только из уведомления.
type noticeResponse struct {
	Notice service.Notice `json:"notice"`
}

// writeError переводит ошибку сервиса в ответ API.
// Неизвестные ошибки логируются и отдаются как 500 без деталей.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, promotion.ErrInvalidDirection):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrPlanNotFound):
		apierrors.PlanNotFound(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, promotion.ErrBusy):
		apierrors.PromotionBusy(w, err.Error())
	case errors.Is(err, promotion.ErrJournal):
		h.logger.Error("Журнал намерений недоступен",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.IntentJournalUnavailable(w, "Журнал намерений недоступен, промоушен не начат")
	case errors.Is(err, service.ErrRecordStoreUnavailable):
		apierrors.RecordStoreUnavailable(w, err.Error())
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// decodeJSON разбирает тело запроса; при ошибке отвечает 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
