package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
	"github.com/ignatzorin/p2p-exchange-backend/internal/storage"
)

// Разрешённые типы файлов: квитанции принимаются изображениями или PDF
var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Разрешённые расширения файлов
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".pdf":  true,
}

// MediaHandler управляет загрузкой и отдачей файлов квитанций и вложений.
type MediaHandler struct {
	repo    *repository.MediaRepository
	storage *storage.FileStorage
}

// NewMediaHandler создаёт хэндлер.
func NewMediaHandler(repo *repository.MediaRepository, storage *storage.FileStorage) *MediaHandler {
	return &MediaHandler{repo: repo, storage: storage}
}

// Upload обрабатывает POST /media - загрузка квитанции или вложения чата.
func (h *MediaHandler) Upload(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "поле file обязательно"})
		return
	}

	// Валидация размера файла
	if file.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "файл не может быть пустым"})
		return
	}

	// Валидация расширения файла
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("неподдерживаемый формат файла. Разрешены: %s", strings.Join(getAllowedExtensions(), ", ")),
		})
		return
	}

	// Открываем файл для проверки магических байтов
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	// Читаем первые 512 байт для проверки магических байтов
	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не удалось прочитать файл"})
		return
	}

	// Проверяем магические байты (реальный тип файла)
	kind, err := filetype.Match(buffer[:n])
	if err != nil || kind == filetype.Unknown {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "не удалось определить тип файла. Разрешены изображения и PDF",
		})
		return
	}

	contentType := kind.MIME.Value
	if !allowedMimeTypes[contentType] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("неподдерживаемый тип файла (%s). Разрешены: %s", contentType, strings.Join(getAllowedMimeTypes(), ", ")),
		})
		return
	}

	// Проверяем, что расширение соответствует реальному типу файла
	expectedExt := "." + kind.Extension
	// .jpg и .jpeg - это одно и то же
	if ext != expectedExt && !(ext == ".jpg" && expectedExt == ".jpeg") && !(ext == ".jpeg" && expectedExt == ".jpg") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("расширение файла (%s) не соответствует реальному типу (%s)", ext, expectedExt),
		})
		return
	}

	// Сбрасываем позицию файла для сохранения
	if seeker, ok := src.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "не удалось сбросить позицию файла"})
			return
		}
	}

	relativePath, size, err := h.storage.Save(c.Request.Context(), userID, file.Filename, src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	media := &models.MediaFile{
		UserID:   &userID,
		FilePath: filepath.ToSlash(relativePath),
		FileType: contentType,
		FileSize: size,
	}

	if err := h.repo.Create(c.Request.Context(), media); err != nil {
		// Файл без строки в БД недостижим, подчищаем сразу.
		_ = h.storage.Delete(c.Request.Context(), relativePath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, media)
}

// Download обрабатывает GET /media/:id - отдача файла владельцу
// или участнику сделки через ссылку из чата.
func (h *MediaHandler) Download(c *gin.Context) {
	if _, err := common.CurrentUserID(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	mediaID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный идентификатор"})
		return
	}

	media, err := h.repo.GetByID(c.Request.Context(), mediaID)
	if err != nil {
		if errors.Is(err, repository.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "файл не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f, err := h.storage.Open(c.Request.Context(), filepath.FromSlash(media.FilePath))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "файл не найден в хранилище"})
		return
	}
	defer f.Close()

	c.Header("Content-Type", media.FileType)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(media.FilePath)))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, f)
}

// getAllowedExtensions возвращает список разрешённых расширений.
func getAllowedExtensions() []string {
	exts := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		exts = append(exts, ext)
	}
	return exts
}

// getAllowedMimeTypes возвращает список разрешённых MIME типов.
func getAllowedMimeTypes() []string {
	types := make([]string, 0, len(allowedMimeTypes))
	for mimeType := range allowedMimeTypes {
		types = append(types, mimeType)
	}
	return types
}
