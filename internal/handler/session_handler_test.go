package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blacxupload/internal/domain"
	"blacxupload/internal/notify"
	"blacxupload/internal/repository"
	"blacxupload/internal/service"
	"blacxupload/internal/service/s3"
)

// stubStorage реализует s3.Storage без сети
type stubStorage struct {
	mu          sync.Mutex
	nextID      int
	completeErr error
	pingErr     error
}

func (f *stubStorage) CreateMultipartUpload(ctx context.Context, key string, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("upload-%d", f.nextID), nil
}

func (f *stubStorage) PresignUploadPart(ctx context.Context, key string, uploadID string, partNumber int, expires time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.example.com/bucket/%s?partNumber=%d", key, partNumber), nil
}

func (f *stubStorage) CompleteMultipartUpload(ctx context.Context, uploadID string, key string, parts []s3.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeErr
}

func (f *stubStorage) AbortMultipartUpload(ctx context.Context, uploadID string, key string) error {
	return nil
}

func (f *stubStorage) Ping(ctx context.Context) error {
	return f.pingErr
}

// stubDispatcher реализует notify.Dispatcher
type stubDispatcher struct {
	err     error
	batches []*domain.UploadBatch
}

func (d *stubDispatcher) DispatchBatch(ctx context.Context, batch *domain.UploadBatch) error {
	d.batches = append(d.batches, batch)
	return d.err
}

var _ notify.Dispatcher = (*stubDispatcher)(nil)

func newTestRouter(storage *stubStorage, dispatcher notify.Dispatcher) (*chi.Mux, *service.SessionService) {
	registry := repository.NewMemorySessionRegistry()
	svc := service.NewSessionService(registry, storage, service.UploadOptions{})

	sessionHandler := NewSessionHandler(svc)
	notifyHandler := NewNotifyHandler(dispatcher)
	healthHandler := NewHealthHandler(svc)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", sessionHandler.CreateSession)
		r.Post("/sessions/{id}/complete", sessionHandler.CompleteSession)
		r.Post("/sessions/{id}/abort", sessionHandler.AbortSession)
		r.Post("/notify", notifyHandler.NotifyBatch)
	})
	r.Get("/health", healthHandler.Health)

	return r, svc
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSessionEndpoint(t *testing.T) {
	router, _ := newTestRouter(&stubStorage{}, &stubDispatcher{})

	rec := doJSON(t, router, http.MethodPost, "/v1/sessions", CreateSessionRequest{
		Filename: "book.epub",
		Size:     25 * 1024 * 1024,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, resp.ObjectKey, "_book.epub")
	require.Len(t, resp.PartURLs, 3)
	assert.Equal(t, 1, resp.PartURLs[0].PartNumber)
}

func TestCreateSessionEndpointRejectsExtension(t *testing.T) {
	router, _ := newTestRouter(&stubStorage{}, &stubDispatcher{})

	rec := doJSON(t, router, http.MethodPost, "/v1/sessions", CreateSessionRequest{Filename: "virus.exe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionEndpointBadBody(t *testing.T) {
	router, _ := newTestRouter(&stubStorage{}, &stubDispatcher{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/sessions", CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteSessionEndpoint(t *testing.T) {
	router, svc := newTestRouter(&stubStorage{}, &stubDispatcher{})

	session, err := svc.CreateSession(context.Background(), "report.pdf", 0)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/v1/sessions/"+session.SessionID+"/complete", CompleteSessionRequest{
		Parts: []domain.CompletedPart{{PartNumber: 1, ETag: "abc123"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)

	// Повторное завершение — 409
	rec = doJSON(t, router, http.MethodPost, "/v1/sessions/"+session.SessionID+"/complete", CompleteSessionRequest{
		Parts: []domain.CompletedPart{{PartNumber: 1, ETag: "abc123"}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCompleteSessionEndpointStatusCodes(t *testing.T) {
	storage := &stubStorage{}
	router, svc := newTestRouter(storage, &stubDispatcher{})

	// Неизвестная сессия — 404
	rec := doJSON(t, router, http.MethodPost, "/v1/sessions/unknown/complete", CompleteSessionRequest{
		Parts: []domain.CompletedPart{{PartNumber: 1, ETag: "abc"}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	session, err := svc.CreateSession(context.Background(), "report.pdf", 0)
	require.NoError(t, err)

	// Некорректный список частей — 422
	rec = doJSON(t, router, http.MethodPost, "/v1/sessions/"+session.SessionID+"/complete", CompleteSessionRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Отказ хранилища при финализации — 502, сессию можно завершить повторно
	storage.mu.Lock()
	storage.completeErr = errors.New("backend rejected")
	storage.mu.Unlock()

	rec = doJSON(t, router, http.MethodPost, "/v1/sessions/"+session.SessionID+"/complete", CompleteSessionRequest{
		Parts: []domain.CompletedPart{{PartNumber: 1, ETag: "abc"}},
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAbortSessionEndpoint(t *testing.T) {
	router, svc := newTestRouter(&stubStorage{}, &stubDispatcher{})

	session, err := svc.CreateSession(context.Background(), "report.pdf", 0)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/v1/sessions/"+session.SessionID+"/abort", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Повторный abort идемпотентен
	rec = doJSON(t, router, http.MethodPost, "/v1/sessions/"+session.SessionID+"/abort", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Abort завершенной сессии — 409
	completed, err := svc.CreateSession(context.Background(), "book.zip", 0)
	require.NoError(t, err)
	require.NoError(t, svc.CompleteSession(context.Background(), completed.SessionID, []domain.CompletedPart{
		{PartNumber: 1, ETag: "abc"},
	}))

	rec = doJSON(t, router, http.MethodPost, "/v1/sessions/"+completed.SessionID+"/abort", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Неизвестная сессия — 404
	rec = doJSON(t, router, http.MethodPost, "/v1/sessions/unknown/abort", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifyBatchEndpoint(t *testing.T) {
	dispatcher := &stubDispatcher{}
	router, _ := newTestRouter(&stubStorage{}, dispatcher)

	rec := doJSON(t, router, http.MethodPost, "/v1/notify", NotifyBatchRequest{
		Objects: []domain.UploadedObject{
			{StoredKey: "uploads/20250101_120000.000001_report.pdf", OriginalName: "report.pdf", Size: 2048},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp NotifyBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.BatchID)
	assert.Empty(t, resp.Warning)
	require.Len(t, dispatcher.batches, 1)
}

func TestNotifyBatchEndpointBestEffort(t *testing.T) {
	// Сбой доставки не превращается в ошибку HTTP
	dispatcher := &stubDispatcher{err: notify.ErrNotificationFailed}
	router, _ := newTestRouter(&stubStorage{}, dispatcher)

	rec := doJSON(t, router, http.MethodPost, "/v1/notify", NotifyBatchRequest{
		Objects: []domain.UploadedObject{
			{StoredKey: "uploads/x_report.pdf", OriginalName: "report.pdf", Size: 2048},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp NotifyBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Warning)
}

func TestNotifyBatchEndpointEmptyList(t *testing.T) {
	router, _ := newTestRouter(&stubStorage{}, &stubDispatcher{})

	rec := doJSON(t, router, http.MethodPost, "/v1/notify", NotifyBatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	storage := &stubStorage{}
	router, _ := newTestRouter(storage, &stubDispatcher{})

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.BackendReachable)

	storage.pingErr = errors.New("bucket unreachable")

	rec = doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.False(t, resp.BackendReachable)
}
