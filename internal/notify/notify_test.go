package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blacxupload/internal/domain"
)

func TestBatchBody(t *testing.T) {
	batch := &domain.UploadBatch{
		BatchID: "batch-42",
		Objects: []domain.UploadedObject{
			{StoredKey: "uploads/20250101_120000.000001_report.pdf", OriginalName: "report.pdf", Size: 2048},
			{StoredKey: "uploads/20250101_120000.000002_book.epub", OriginalName: "book.epub", Size: 5 * 1024 * 1024},
		},
	}

	body := batchBody(batch)

	assert.Contains(t, body, "batch-42")
	assert.Contains(t, body, "report.pdf")
	assert.Contains(t, body, "uploads/20250101_120000.000001_report.pdf")
	assert.Contains(t, body, "book.epub")
	// Размеры выводятся в человекочитаемом виде
	assert.Contains(t, body, "kB")
	assert.Contains(t, body, "MB")
}

func TestDispatchBatchDisabled(t *testing.T) {
	d := NewEmailDispatcher(&Config{Enabled: false})

	err := d.DispatchBatch(context.Background(), &domain.UploadBatch{
		BatchID: "batch-1",
		Objects: []domain.UploadedObject{
			{StoredKey: "uploads/x_report.pdf", OriginalName: "report.pdf", Size: 1024},
		},
	})
	require.NoError(t, err)
}

func TestDispatchBatchEmpty(t *testing.T) {
	d := NewEmailDispatcher(&Config{Enabled: true, SendgridAPIKey: "key", FromEmail: "noreply@example.com", AdminEmail: "admin@example.com"})

	// Пустой батч не требует отправки
	err := d.DispatchBatch(context.Background(), &domain.UploadBatch{BatchID: "batch-2"})
	require.NoError(t, err)
}
