package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

// UserRepository отвечает за работу с таблицами users, profiles и sessions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		user.Email, user.Username, user.PasswordHash, user.Role,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, email, username, password_hash, role, is_active, last_login_at, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by email %w", err)
	}

	return &user, nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, email, username, password_hash, role, is_active, last_login_at, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}

	return &user, nil
}

// UpsertProfile создаёт или обновляет профиль пользователя.
// Поля репутации при апсерте не трогаются: их ведёт сервис репутации.
func (r *UserRepository) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, display_name, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			updated_at = NOW()
		RETURNING user_id, display_name, success_rate, total_trades, successful_trades, is_verified, updated_at
	`

	if err := r.db.QueryRowxContext(ctx, query, profile.UserID, profile.DisplayName).
		StructScan(profile); err != nil {
		return fmt.Errorf("user repository: upsert profile %w", err)
	}

	return nil
}

// GetProfile возвращает профиль пользователя.
func (r *UserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, `SELECT * FROM profiles WHERE user_id = $1`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get profile %w", err)
	}

	return &profile, nil
}

// ApplyTradeOutcome увеличивает счётчики репутации участника по итогу
// сделки. Процент успеха пересчитывается от новых счётчиков в том же
// запросе, поэтому агрегаты никогда не расходятся между собой.
func (r *UserRepository) ApplyTradeOutcome(ctx context.Context, userID uuid.UUID, successful bool) error {
	query := `
		UPDATE profiles
		SET total_trades = total_trades + 1,
			successful_trades = successful_trades + CASE WHEN $2 THEN 1 ELSE 0 END,
			success_rate = ROUND(100.0 * (successful_trades + CASE WHEN $2 THEN 1 ELSE 0 END) / (total_trades + 1)),
			updated_at = NOW()
		WHERE user_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, userID, successful)
	if err != nil {
		return fmt.Errorf("user repository: apply trade outcome %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: apply trade outcome rows affected %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SetVerified выставляет флаг верификации профиля.
func (r *UserRepository) SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET is_verified = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, verified)
	if err != nil {
		return fmt.Errorf("user repository: set verified %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: set verified rows affected %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// CreateSession сохраняет refresh-сессию пользователя.
func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (user_id, refresh_token, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		session.UserID, session.RefreshToken, session.UserAgent, session.IPAddress, session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt); err != nil {
		return fmt.Errorf("user repository: create session %w", err)
	}

	return nil
}

// GetSessionByToken возвращает сессию по refresh токену.
func (r *UserRepository) GetSessionByToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	var session models.Session
	if err := r.db.GetContext(ctx, &session, `SELECT * FROM sessions WHERE refresh_token = $1`, refreshToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get session %w", err)
	}

	return &session, nil
}

// DeleteSession удаляет сессию по refresh токену.
func (r *UserRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, refreshToken); err != nil {
		return fmt.Errorf("user repository: delete session %w", err)
	}
	return nil
}

// UpdateLastLoginAt обновляет время последнего входа.
func (r *UserRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("user repository: update last login %w", err)
	}
	return nil
}
