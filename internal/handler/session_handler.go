package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"blacxupload/internal/domain"
	"blacxupload/internal/service"
)

// CreateSessionRequest представляет запрос на создание сессии загрузки
type CreateSessionRequest struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
}

// CreateSessionResponse представляет ответ с выданными presigned-ссылками
type CreateSessionResponse struct {
	SessionID string           `json:"session_id"`
	ObjectKey string           `json:"object_key"`
	ExpiresAt time.Time        `json:"expires_at"`
	PartURLs  []domain.PartURL `json:"part_urls"`
}

// CompleteSessionRequest представляет запрос на завершение загрузки
type CompleteSessionRequest struct {
	Parts []domain.CompletedPart `json:"parts"`
}

// StatusResponse представляет ответ со статусом операции
type StatusResponse struct {
	Status string `json:"status"`
}

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

// CreateSession обрабатывает создание сессии загрузки
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Filename == "" {
		http.Error(w, "filename is required", http.StatusBadRequest)
		return
	}

	session, err := h.sessionService.CreateSession(r.Context(), req.Filename, req.Size)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateSessionResponse{
		SessionID: session.SessionID,
		ObjectKey: session.ObjectKey,
		ExpiresAt: session.ExpiresAt,
		PartURLs:  session.PartURLs,
	})
}

// CompleteSession обрабатывает завершение загрузки
func (h *SessionHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req CompleteSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.sessionService.CompleteSession(r.Context(), sessionID, req.Parts); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{Status: "completed"})
}

// AbortSession обрабатывает отмену загрузки
func (h *SessionHandler) AbortSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if err := h.sessionService.AbortSession(r.Context(), sessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{Status: "aborted"})
}

// writeServiceError переводит ошибки оркестратора в HTTP-статусы
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnsupportedFileType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidStateTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidPartList):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrStorageUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, service.ErrFinalizationFailed):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
