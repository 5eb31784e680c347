package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blacxupload/internal/domain"
)

func newSession(id string) *domain.UploadSession {
	now := time.Now().UTC()
	return &domain.UploadSession{
		SessionID:    id,
		ObjectKey:    "uploads/20250101_120000.000001_report.pdf",
		OriginalName: "report.pdf",
		ContentType:  "application/pdf",
		TotalParts:   1,
		PartURLs: domain.PartURLList{
			{PartNumber: 1, URL: "https://example.com/part1", ExpiresAt: now.Add(24 * time.Hour)},
		},
		State:     domain.SessionCreated,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

func TestMemoryRegistryCreateAndGet(t *testing.T) {
	registry := NewMemorySessionRegistry()
	ctx := context.Background()

	session := newSession("upload-1")
	require.NoError(t, registry.Create(ctx, session))

	stored, err := registry.Get(ctx, "upload-1")
	require.NoError(t, err)
	assert.Equal(t, session.ObjectKey, stored.ObjectKey)
	assert.Equal(t, domain.SessionCreated, stored.State)

	// Повторная регистрация того же идентификатора запрещена
	assert.Error(t, registry.Create(ctx, newSession("upload-1")))

	_, err = registry.Get(ctx, "upload-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryRegistryGetReturnsCopy(t *testing.T) {
	registry := NewMemorySessionRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Create(ctx, newSession("upload-1")))

	first, err := registry.Get(ctx, "upload-1")
	require.NoError(t, err)

	// Мутация копии не должна менять хранимое состояние
	first.State = domain.SessionAborted

	second, err := registry.Get(ctx, "upload-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCreated, second.State)
}

func TestMemoryRegistryTransition(t *testing.T) {
	registry := NewMemorySessionRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Create(ctx, newSession("upload-1")))

	parts := domain.CompletedPartList{{PartNumber: 1, ETag: "abc123"}}
	require.NoError(t, registry.Transition(ctx, "upload-1", domain.SessionCreated, domain.SessionCompleted, parts))

	stored, err := registry.Get(ctx, "upload-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, stored.State)
	assert.Equal(t, parts, stored.CompletedParts)
	// Ссылки на части освобождаются при завершении
	assert.Empty(t, stored.PartURLs)

	// Повторный переход из created проигрывает CAS
	err = registry.Transition(ctx, "upload-1", domain.SessionCreated, domain.SessionAborted, nil)
	assert.ErrorIs(t, err, ErrStateMismatch)

	// Неизвестная сессия
	err = registry.Transition(ctx, "upload-2", domain.SessionCreated, domain.SessionAborted, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryRegistryConcurrentTransitions(t *testing.T) {
	registry := NewMemorySessionRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Create(ctx, newSession("upload-1")))

	// Из множества конкурентных CAS-переходов побеждает ровно один
	const numWorkers = 32

	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := 0; i < numWorkers; i++ {
		target := domain.SessionCompleted
		if i%2 == 1 {
			target = domain.SessionAborted
		}
		go func(to domain.SessionState) {
			defer wg.Done()
			if err := registry.Transition(ctx, "upload-1", domain.SessionCreated, to, nil); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(target)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)

	stored, err := registry.Get(ctx, "upload-1")
	require.NoError(t, err)
	assert.True(t, stored.State.Terminal())
}

func TestMemoryRegistryBurstCreate(t *testing.T) {
	registry := NewMemorySessionRegistry()
	ctx := context.Background()

	const numSessions = 1000

	var wg sync.WaitGroup
	wg.Add(numSessions)
	for i := 0; i < numSessions; i++ {
		go func(n int) {
			defer wg.Done()
			_ = registry.Create(ctx, newSession(fmt.Sprintf("upload-%d", n)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, numSessions, registry.Len())
}
