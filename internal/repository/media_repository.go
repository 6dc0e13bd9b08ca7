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

// ErrMediaNotFound возвращается, когда файл не найден.
var ErrMediaNotFound = errors.New("media file not found")

// MediaRepository отвечает за таблицу media_files.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository создаёт экземпляр репозитория.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create сохраняет метаданные загруженного файла.
func (r *MediaRepository) Create(ctx context.Context, media *models.MediaFile) error {
	query := `
		INSERT INTO media_files (user_id, file_path, file_type, file_size)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		media.UserID, media.FilePath, media.FileType, media.FileSize,
	).Scan(&media.ID, &media.CreatedAt); err != nil {
		return fmt.Errorf("media repository: create %w", err)
	}

	return nil
}

// GetByID возвращает метаданные файла.
func (r *MediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MediaFile, error) {
	var media models.MediaFile
	if err := r.db.GetContext(ctx, &media, `SELECT * FROM media_files WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		return nil, fmt.Errorf("media repository: get by id %w", err)
	}
	return &media, nil
}
