package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-exchange-backend/internal/logger"
	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
	"github.com/ignatzorin/p2p-exchange-backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByToken(ctx context.Context, refreshToken string) (*models.Session, error)
	DeleteSession(ctx context.Context, refreshToken string) error
	UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error
}

// AuthService инкапсулирует бизнес-логику регистрации и аутентификации.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
}

// RegisterInput содержит данные пользователя при регистрации.
type RegisterInput struct {
	Email       string
	Password    string
	Username    string
	DisplayName string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	Profile   *models.Profile
	TokenPair *TokenPair
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
	}
}

// Register создаёт нового пользователя и профиль. Роль всегда обычная:
// арбитров назначают вручную, через регистрацию эту роль получить нельзя.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta map[string]string) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, fmt.Errorf("auth service: email уже зарегистрирован")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	username := in.Username
	if username == "" {
		username = deriveUsername(in.Email)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth service: не удалось захешировать пароль: %w", err)
	}

	user := &models.User{
		Email:        strings.ToLower(in.Email),
		Username:     username,
		PasswordHash: string(passHash),
		Role:         models.RoleUser,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	displayName := in.DisplayName
	if displayName == "" {
		displayName = username
	}

	profile := &models.Profile{
		UserID:      user.ID,
		DisplayName: displayName,
	}

	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}

	tokenPair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}
	applySessionMeta(session, meta)

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &AuthResult{
		User:      user,
		Profile:   profile,
		TokenPair: tokenPair,
	}, nil
}

// Login проверяет учётные данные и возвращает токены.
func (s *AuthService) Login(ctx context.Context, in LoginInput, meta map[string]string) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	user, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("auth service: неверный email или пароль")
	}

	if !user.IsActive {
		return nil, fmt.Errorf("auth service: аккаунт заблокирован")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, fmt.Errorf("auth service: неверный email или пароль")
	}

	if err := s.repo.UpdateLastLoginAt(ctx, user.ID); err != nil {
		// Логируем ошибку, но не прерываем процесс логина
		if logger.Log != nil {
			logger.Log.WithFields(map[string]interface{}{
				"user_id": user.ID,
				"error":   err.Error(),
			}).Warn("auth service: не удалось обновить last_login_at")
		}
	}

	tokenPair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}
	applySessionMeta(session, meta)

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	profile, err := s.repo.GetProfile(ctx, user.ID)
	if err != nil {
		// Если профиль не существует, создаём дефолтный
		profile = &models.Profile{
			UserID:      user.ID,
			DisplayName: user.Username,
		}
		if err := s.repo.UpsertProfile(ctx, profile); err != nil {
			profile = nil
		}
	}

	return &AuthResult{
		User:      user,
		Profile:   profile,
		TokenPair: tokenPair,
	}, nil
}

// Refresh выпускает новую пару токенов.
func (s *AuthService) Refresh(ctx context.Context, oldToken string, meta map[string]string) (*TokenPair, error) {
	claims, err := s.tokenManager.ParseRefresh(oldToken)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh токен невалиден: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("auth service: некорректный subject: %w", err)
	}

	// Подпись токена недостаточна: после logout сессии в хранилище нет.
	session, err := s.repo.GetSessionByToken(ctx, oldToken)
	if err != nil {
		return nil, fmt.Errorf("auth service: сессия не найдена или отозвана")
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("auth service: сессия истекла")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	tokenPair, _, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteSession(ctx, oldToken); err != nil {
		return nil, err
	}

	session = &models.Session{
		UserID:       userID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}
	applySessionMeta(session, meta)

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return tokenPair, nil
}

// GetProfile возвращает публичный профиль пользователя с репутацией.
func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// UpdateProfile обновляет отображаемое имя. Поля репутации через
// профиль не редактируются, их ведёт сервис репутации.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string) (*models.Profile, error) {
	if err := validation.ValidateLength("отображаемое имя", displayName,
		validation.MinDisplayNameLength, validation.MaxDisplayNameLength); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	profile := &models.Profile{
		UserID:      userID,
		DisplayName: displayName,
	}
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}

	return profile, nil
}

// Logout удаляет сессию по refresh токену.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.repo.DeleteSession(ctx, refreshToken)
}

func applySessionMeta(session *models.Session, meta map[string]string) {
	if meta == nil {
		return
	}
	if ua, ok := meta["user_agent"]; ok {
		session.UserAgent = &ua
	}
	if ip, ok := meta["ip"]; ok {
		session.IPAddress = &ip
	}
}

// deriveUsername формирует красивый username из email.
func deriveUsername(email string) string {
	name := strings.Split(email, "@")[0]
	name = strings.NewReplacer(".", "_", "+", "_").Replace(name)
	name = strings.ToLower(name)
	if validation.ValidateUsername(name) != nil {
		name = "user_" + uuid.NewString()[:6]
	}
	return name
}
