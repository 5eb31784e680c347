// storage.go
package s3

import (
	"context"
	"time"
)

// Storage определяет интерфейс для работы с S3-совместимым хранилищем.
// Оркестратор получает его при создании и никогда не обращается к SDK напрямую.
type Storage interface {
	// CreateMultipartUpload открывает multipart-загрузку и возвращает uploadID бэкенда
	CreateMultipartUpload(ctx context.Context, key string, contentType string) (string, error)
	// PresignUploadPart выдает presigned-ссылку для загрузки одной части
	PresignUploadPart(ctx context.Context, key string, uploadID string, partNumber int, expires time.Duration) (string, error)
	// CompleteMultipartUpload собирает объект из загруженных частей
	CompleteMultipartUpload(ctx context.Context, uploadID string, key string, parts []CompletedPart) error
	// AbortMultipartUpload освобождает незакоммиченные части; повторный abort не считается ошибкой
	AbortMultipartUpload(ctx context.Context, uploadID string, key string) error
	// Ping проверяет доступность бакета
	Ping(ctx context.Context) error
}

// CompletedPart представляет загруженную часть файла
type CompletedPart struct {
	PartNumber int
	ETag       string
}
