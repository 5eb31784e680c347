package repository

import (
	"context"
	"fmt"
	"sync"

	"blacxupload/internal/domain"
)

// MemorySessionRegistry хранит сессии в памяти процесса.
// Используется при Registry.Backend = memory и в тестах.
type MemorySessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.UploadSession
}

func NewMemorySessionRegistry() *MemorySessionRegistry {
	return &MemorySessionRegistry{
		sessions: make(map[string]*domain.UploadSession),
	}
}

func (r *MemorySessionRegistry) Create(ctx context.Context, session *domain.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.SessionID]; ok {
		return fmt.Errorf("session %s already registered", session.SessionID)
	}

	stored := *session
	r.sessions[session.SessionID] = &stored
	return nil
}

func (r *MemorySessionRegistry) Get(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	// Возвращаем копию, чтобы вызывающий не менял состояние мимо Transition
	copied := *session
	return &copied, nil
}

func (r *MemorySessionRegistry) Transition(ctx context.Context, sessionID string, from, to domain.SessionState, parts domain.CompletedPartList) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	if session.State != from {
		return ErrStateMismatch
	}

	session.State = to
	if parts != nil {
		session.CompletedParts = parts
	}
	if to == domain.SessionCompleted {
		// Ссылки больше не нужны после финализации
		session.PartURLs = nil
	}

	return nil
}

// Len возвращает количество зарегистрированных сессий
func (r *MemorySessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

var _ SessionRegistry = (*MemorySessionRegistry)(nil)
