package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"blacxupload/internal/domain"
	"blacxupload/internal/repository"
	"blacxupload/internal/service/s3"
)

// Определение констант для выдачи ссылок
const (
	defaultPartSize = 10 * 1024 * 1024 // 10MB на часть
	defaultMaxParts = 10000            // Ограничение S3 на количество частей
	defaultURLTTL   = 24 * time.Hour   // Запас на загрузку больших файлов по медленным каналам

	keyPrefix     = "uploads/"
	keyTimeLayout = "20060102_150405.000000" // Микросекунды — единственная защита от коллизий имен
)

// Определение пользовательских ошибок
var (
	ErrUnsupportedFileType    = errors.New("unsupported file type")
	ErrSessionNotFound        = errors.New("session not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidPartList        = errors.New("invalid part list")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrFinalizationFailed     = errors.New("finalization failed")
)

// Разрешенные расширения файлов (документы, книги, архивы)
var allowedExtensions = map[string]bool{
	".epub": true,
	".pdf":  true,
	".mobi": true,
	".azw":  true,
	".azw3": true,
	".doc":  true,
	".docx": true,
	".zip":  true,
}

// Таблица расширение → MIME-тип
var mimeTypes = map[string]string{
	".epub": "application/epub+zip",
	".pdf":  "application/pdf",
	".mobi": "application/x-mobipocket-ebook",
	".azw":  "application/vnd.amazon.ebook",
	".azw3": "application/vnd.amazon.ebook",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".zip":  "application/zip",
}

// UploadOptions задает параметры выдачи presigned-ссылок
type UploadOptions struct {
	PartSize int64
	MaxParts int
	URLTTL   time.Duration
}

// SessionService управляет жизненным циклом сессий загрузки:
// created → {completed | aborted}, терминальные состояния не покидаются.
type SessionService struct {
	registry repository.SessionRegistry
	s3Client s3.Storage
	opts     UploadOptions
}

func NewSessionService(registry repository.SessionRegistry, s3Client s3.Storage, opts UploadOptions) *SessionService {
	if opts.PartSize <= 0 {
		opts.PartSize = defaultPartSize
	}
	if opts.MaxParts <= 0 {
		opts.MaxParts = defaultMaxParts
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = defaultURLTTL
	}
	return &SessionService{
		registry: registry,
		s3Client: s3Client,
		opts:     opts,
	}
}

// CreateSession открывает multipart-загрузку и выдает presigned-ссылки на все части.
// Локальное состояние не изменяется, пока вызовы к хранилищу не завершились успешно.
func (s *SessionService) CreateSession(ctx context.Context, filename string, declaredSize int64) (*domain.UploadSession, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: empty filename", ErrUnsupportedFileType)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}

	totalParts := s.partsFor(declaredSize)
	contentType := resolveContentType(name)

	now := keyTimestamp()
	objectKey := keyPrefix + now.Format(keyTimeLayout) + "_" + name

	uploadID, err := s.s3Client.CreateMultipartUpload(ctx, objectKey, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	expiresAt := now.Add(s.opts.URLTTL)
	partURLs := make(domain.PartURLList, 0, totalParts)
	for partNumber := 1; partNumber <= totalParts; partNumber++ {
		url, err := s.s3Client.PresignUploadPart(ctx, objectKey, uploadID, partNumber, s.opts.URLTTL)
		if err != nil {
			s.abortBackend(ctx, uploadID, objectKey)
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		partURLs = append(partURLs, domain.PartURL{
			PartNumber: partNumber,
			URL:        url,
			ExpiresAt:  expiresAt,
		})
	}

	session := &domain.UploadSession{
		SessionID:    uploadID,
		ObjectKey:    objectKey,
		OriginalName: name,
		ContentType:  contentType,
		TotalParts:   totalParts,
		PartURLs:     partURLs,
		State:        domain.SessionCreated,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
	}

	if err := s.registry.Create(ctx, session); err != nil {
		s.abortBackend(ctx, uploadID, objectKey)
		return nil, fmt.Errorf("failed to register session: %w", err)
	}

	log.Printf("Created upload session %s for %s (%d parts)", uploadID, objectKey, totalParts)
	return session, nil
}

// CompleteSession финализирует объект из загруженных частей.
// При отказе хранилища сессия остается в created — клиент может повторить
// завершение или отменить загрузку.
func (s *SessionService) CompleteSession(ctx context.Context, sessionID string, parts []domain.CompletedPart) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.State != domain.SessionCreated {
		return fmt.Errorf("%w: session is %s", ErrInvalidStateTransition, session.State)
	}

	if err := validatePartList(parts, session.TotalParts); err != nil {
		return err
	}

	s3Parts := make([]s3.CompletedPart, 0, len(parts))
	for _, part := range parts {
		s3Parts = append(s3Parts, s3.CompletedPart{
			PartNumber: part.PartNumber,
			ETag:       part.ETag,
		})
	}

	if err := s.s3Client.CompleteMultipartUpload(ctx, session.SessionID, session.ObjectKey, s3Parts); err != nil {
		return fmt.Errorf("%w: %v", ErrFinalizationFailed, err)
	}

	err = s.registry.Transition(ctx, sessionID, domain.SessionCreated, domain.SessionCompleted, domain.CompletedPartList(parts))
	if err != nil {
		if errors.Is(err, repository.ErrStateMismatch) {
			return fmt.Errorf("%w: concurrent transition won", ErrInvalidStateTransition)
		}
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to record completion: %w", err)
	}

	log.Printf("Completed upload session %s (%s)", sessionID, session.ObjectKey)
	return nil
}

// AbortSession отменяет загрузку и освобождает зарезервированные части.
// Повторный abort идемпотентен и не дергает хранилище.
func (s *SessionService) AbortSession(ctx context.Context, sessionID string) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}

	switch session.State {
	case domain.SessionCompleted:
		return fmt.Errorf("%w: session already completed", ErrInvalidStateTransition)
	case domain.SessionAborted:
		return nil
	}

	if err := s.s3Client.AbortMultipartUpload(ctx, session.SessionID, session.ObjectKey); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	err = s.registry.Transition(ctx, sessionID, domain.SessionCreated, domain.SessionAborted, nil)
	if err != nil {
		if errors.Is(err, repository.ErrStateMismatch) {
			// Перечитываем состояние: параллельный abort — успех, complete — конфликт
			current, getErr := s.getSession(ctx, sessionID)
			if getErr == nil && current.State == domain.SessionAborted {
				return nil
			}
			return fmt.Errorf("%w: concurrent transition won", ErrInvalidStateTransition)
		}
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to record abort: %w", err)
	}

	log.Printf("Aborted upload session %s (%s)", sessionID, session.ObjectKey)
	return nil
}

// GetSession возвращает текущее состояние сессии
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	return s.getSession(ctx, sessionID)
}

// Health проверяет доступность бэкенда хранилища
func (s *SessionService) Health(ctx context.Context) error {
	return s.s3Client.Ping(ctx)
}

func (s *SessionService) getSession(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	session, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	return session, nil
}

// partsFor вычисляет количество частей по заявленному размеру файла
func (s *SessionService) partsFor(declaredSize int64) int {
	if declaredSize <= 0 {
		return 1
	}
	parts := int((declaredSize + s.opts.PartSize - 1) / s.opts.PartSize)
	if parts < 1 {
		parts = 1
	}
	if parts > s.opts.MaxParts {
		parts = s.opts.MaxParts
	}
	return parts
}

// abortBackend освобождает multipart-загрузку на стороне S3 после локального отказа
func (s *SessionService) abortBackend(ctx context.Context, uploadID, objectKey string) {
	if err := s.s3Client.AbortMultipartUpload(ctx, uploadID, objectKey); err != nil {
		log.Printf("Failed to abort orphaned upload %s: %v", uploadID, err)
	}
}

var (
	keyStampMu   sync.Mutex
	lastKeyStamp time.Time
)

// keyTimestamp возвращает строго возрастающие метки времени с точностью до
// микросекунды. Два запроса в одну и ту же микросекунду получают разные ключи.
func keyTimestamp() time.Time {
	keyStampMu.Lock()
	defer keyStampMu.Unlock()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(lastKeyStamp) {
		now = lastKeyStamp.Add(time.Microsecond)
	}
	lastKeyStamp = now
	return now
}

// resolveContentType возвращает MIME-тип по расширению файла.
// Неизвестные расширения получают generic binary тип.
func resolveContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// validatePartList проверяет структурную целостность списка частей:
// непустой, строго возрастающие номера в пределах 1..totalParts, непустые ETag.
// Минимальные размеры частей и корректность ETag проверяет сам бэкенд.
func validatePartList(parts []domain.CompletedPart, totalParts int) error {
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty part list", ErrInvalidPartList)
	}

	prev := 0
	for _, part := range parts {
		if part.PartNumber < 1 || part.PartNumber > totalParts {
			return fmt.Errorf("%w: part number %d out of range 1..%d", ErrInvalidPartList, part.PartNumber, totalParts)
		}
		if part.PartNumber <= prev {
			return fmt.Errorf("%w: part numbers must be strictly increasing", ErrInvalidPartList)
		}
		if part.ETag == "" {
			return fmt.Errorf("%w: part %d has empty etag", ErrInvalidPartList, part.PartNumber)
		}
		prev = part.PartNumber
	}

	return nil
}
