package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"blacxupload/internal/domain"
)

var (
	// ErrSessionNotFound возвращается, когда сессия с таким идентификатором не зарегистрирована
	ErrSessionNotFound = errors.New("session not found")
	// ErrStateMismatch возвращается, когда наблюдаемое состояние не совпадает с ожидаемым (CAS проиграл)
	ErrStateMismatch = errors.New("session state mismatch")
)

// SessionRegistry — хранилище сессий загрузки.
// Переходы состояний выполняются только через Transition: это единственная
// точка синхронизации между конкурентными complete/abort.
type SessionRegistry interface {
	Create(ctx context.Context, session *domain.UploadSession) error
	Get(ctx context.Context, sessionID string) (*domain.UploadSession, error)
	// Transition атомарно переводит сессию из состояния from в to.
	// parts записываются только при непустом списке (завершение загрузки).
	Transition(ctx context.Context, sessionID string, from, to domain.SessionState, parts domain.CompletedPartList) error
}

// SessionRepository хранит сессии в Postgres
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.UploadSession) error {
	query := `
        INSERT INTO upload_sessions (session_id, object_key, original_name, content_type, total_parts, part_urls, completed_parts, state, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(
		ctx,
		query,
		session.SessionID,
		session.ObjectKey,
		session.OriginalName,
		session.ContentType,
		session.TotalParts,
		session.PartURLs,
		session.CompletedParts,
		session.State,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	var session domain.UploadSession
	query := `SELECT * FROM upload_sessions WHERE session_id = $1`

	err := r.db.GetContext(ctx, &session, query, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// Transition выполняет CAS-переход через условный UPDATE.
// Терминальные сессии не удаляются — остаются для последующего аудита.
func (r *SessionRepository) Transition(ctx context.Context, sessionID string, from, to domain.SessionState, parts domain.CompletedPartList) error {
	query := `
        UPDATE upload_sessions
        SET state = $1,
            completed_parts = CASE WHEN $2::jsonb IS NOT NULL THEN $2::jsonb ELSE completed_parts END,
            part_urls = CASE WHEN $1 = 'completed' THEN '[]'::jsonb ELSE part_urls END
        WHERE session_id = $3 AND state = $4`

	var partsArg interface{}
	if parts != nil {
		partsArg = parts
	}

	result, err := r.db.ExecContext(ctx, query, to, partsArg, sessionID, from)
	if err != nil {
		return fmt.Errorf("failed to transition session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// UPDATE не затронул строк: либо сессии нет, либо состояние уже другое
	var exists bool
	err = r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM upload_sessions WHERE session_id = $1)`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to check session existence: %w", err)
	}
	if !exists {
		return ErrSessionNotFound
	}

	return ErrStateMismatch
}

var _ SessionRegistry = (*SessionRepository)(nil)
