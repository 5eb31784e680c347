package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"blacxupload/internal/domain"
)

// ErrNotificationFailed — мягкая ошибка доставки уведомления.
// Никогда не влияет на корректность завершенных загрузок.
var ErrNotificationFailed = errors.New("notification failed")

// Dispatcher отправляет уведомление об одном батче завершенных загрузок
type Dispatcher interface {
	DispatchBatch(ctx context.Context, batch *domain.UploadBatch) error
}

// EmailDispatcher отправляет уведомления администратору через SendGrid
type EmailDispatcher struct {
	cfg *Config
}

func NewEmailDispatcher(cfg *Config) *EmailDispatcher {
	return &EmailDispatcher{cfg: cfg}
}

func (d *EmailDispatcher) DispatchBatch(ctx context.Context, batch *domain.UploadBatch) error {
	if len(batch.Objects) == 0 {
		return nil
	}

	if !d.cfg.Enabled {
		log.Printf("Notifications disabled, skipping batch %s (%d objects)", batch.BatchID, len(batch.Objects))
		return nil
	}

	subject := fmt.Sprintf("Blacx: %d new file(s) uploaded", len(batch.Objects))
	body := batchBody(batch)

	from := mail.NewEmail(d.cfg.FromName, d.cfg.FromEmail)
	to := mail.NewEmail("", d.cfg.AdminEmail)
	message := mail.NewSingleEmail(from, subject, to, body, "<pre>"+body+"</pre>")

	client := sendgrid.NewSendClient(d.cfg.SendgridAPIKey)
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: sendgrid returned status %d", ErrNotificationFailed, resp.StatusCode)
	}

	log.Printf("Dispatched notification for batch %s (%d objects)", batch.BatchID, len(batch.Objects))
	return nil
}

// batchBody собирает текст письма со списком загруженных объектов
func batchBody(batch *domain.UploadBatch) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Hello,\n\nNew files have been uploaded (batch %s):\n\n", batch.BatchID)
	for _, obj := range batch.Objects {
		fmt.Fprintf(&b, "  %s (%s)\n    stored as: %s\n", obj.OriginalName, humanize.Bytes(uint64(obj.Size)), obj.StoredKey)
	}
	fmt.Fprintf(&b, "\nTimestamp: %s\n\nBest regards,\nBlacx Upload System\n", time.Now().UTC().Format("2006-01-02 15:04:05"))

	return b.String()
}

var _ Dispatcher = (*EmailDispatcher)(nil)
