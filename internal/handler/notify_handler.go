package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"blacxupload/internal/domain"
	"blacxupload/internal/notify"
)

// NotifyBatchRequest представляет запрос на уведомление о батче загрузок
type NotifyBatchRequest struct {
	Objects []domain.UploadedObject `json:"objects"`
}

// NotifyBatchResponse представляет ответ на уведомление.
// Сбой доставки не считается ошибкой загрузки и отражается только в warning.
type NotifyBatchResponse struct {
	Status  string `json:"status"`
	BatchID string `json:"batch_id"`
	Warning string `json:"warning,omitempty"`
}

type NotifyHandler struct {
	dispatcher notify.Dispatcher
}

func NewNotifyHandler(dispatcher notify.Dispatcher) *NotifyHandler {
	return &NotifyHandler{
		dispatcher: dispatcher,
	}
}

// NotifyBatch обрабатывает уведомление о завершенном батче загрузок
func (h *NotifyHandler) NotifyBatch(w http.ResponseWriter, r *http.Request) {
	var req NotifyBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Objects) == 0 {
		http.Error(w, "objects list is empty", http.StatusBadRequest)
		return
	}

	batch := &domain.UploadBatch{
		BatchID: uuid.NewString(),
		Objects: req.Objects,
	}

	resp := NotifyBatchResponse{
		Status:  "ok",
		BatchID: batch.BatchID,
	}

	// Доставка best-effort: клиент всегда получает 200
	if err := h.dispatcher.DispatchBatch(r.Context(), batch); err != nil {
		log.Printf("Failed to dispatch notification for batch %s: %v", batch.BatchID, err)
		resp.Warning = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
