package handler

import (
	"encoding/json"
	"net/http"

	"blacxupload/internal/service"
)

// HealthResponse представляет ответ проверки здоровья сервиса
type HealthResponse struct {
	Status           string `json:"status"`
	BackendReachable bool   `json:"backend_reachable"`
}

type HealthHandler struct {
	sessionService *service.SessionService
}

func NewHealthHandler(sessionService *service.SessionService) *HealthHandler {
	return &HealthHandler{
		sessionService: sessionService,
	}
}

// Health проверяет доступность бэкенда хранилища
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", BackendReachable: true}
	status := http.StatusOK

	if err := h.sessionService.Health(r.Context()); err != nil {
		resp = HealthResponse{Status: "unhealthy", BackendReachable: false}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
