package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SessionState описывает состояние сессии загрузки
type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionCompleted SessionState = "completed"
	SessionAborted   SessionState = "aborted"
)

// Terminal сообщает, является ли состояние конечным
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// PartURL представляет presigned-ссылку для загрузки одной части объекта
type PartURL struct {
	PartNumber int       `json:"part_number"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CompletedPart представляет подтверждение загрузки части (номер + ETag из S3)
type CompletedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"e_tag"`
}

// PartURLList хранится в JSONB колонке
type PartURLList []PartURL

func (l PartURLList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *PartURLList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// CompletedPartList хранится в JSONB колонке
type CompletedPartList []CompletedPart

func (l CompletedPartList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *CompletedPartList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported type for JSON column: %T", src)
	}
}

// UploadSession представляет одну multipart-загрузку в хранилище.
// SessionID совпадает с идентификатором multipart-загрузки на стороне S3.
type UploadSession struct {
	SessionID      string            `json:"session_id" db:"session_id"`
	ObjectKey      string            `json:"object_key" db:"object_key"`
	OriginalName   string            `json:"original_name" db:"original_name"`
	ContentType    string            `json:"content_type" db:"content_type"`
	TotalParts     int               `json:"total_parts" db:"total_parts"`
	PartURLs       PartURLList       `json:"part_urls" db:"part_urls"`
	CompletedParts CompletedPartList `json:"completed_parts,omitempty" db:"completed_parts"`
	State          SessionState      `json:"state" db:"state"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time         `json:"expires_at" db:"expires_at"`
}

// UploadedObject описывает один завершенный объект в составе батча
type UploadedObject struct {
	StoredKey    string `json:"stored_key"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
}

// UploadBatch — эфемерный набор завершенных загрузок для одного уведомления
type UploadBatch struct {
	BatchID string           `json:"batch_id"`
	Objects []UploadedObject `json:"objects"`
}
