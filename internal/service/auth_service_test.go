package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
)

// mockAuthRepository реализует AuthRepository для тестов.
type mockAuthRepository struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
	profiles     map[uuid.UUID]*models.Profile
	sessions     map[string]*models.Session
}

func newMockAuthRepository() *mockAuthRepository {
	return &mockAuthRepository{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
		profiles:     make(map[uuid.UUID]*models.Profile),
		sessions:     make(map[string]*models.Session),
	}
}

func (m *mockAuthRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New()
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockAuthRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.usersByEmail[email]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := m.usersByID[id]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if profile, ok := m.profiles[userID]; ok {
		return profile, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	m.profiles[profile.UserID] = profile
	return nil
}

func (m *mockAuthRepository) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	m.sessions[session.RefreshToken] = session
	return nil
}

func (m *mockAuthRepository) GetSessionByToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	if session, ok := m.sessions[refreshToken]; ok {
		return session, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockAuthRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	delete(m.sessions, refreshToken)
	return nil
}

func (m *mockAuthRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if user, ok := m.usersByID[userID]; ok {
		now := time.Now()
		user.LastLoginAt = &now
	}
	return nil
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	res, err := service.Register(ctx, RegisterInput{
		Email:    "test@example.com",
		Password: "Password123",
	}, map[string]string{"ip": "127.0.0.1"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if res.User.ID == uuid.Nil {
		t.Fatalf("user ID должен быть установлен")
	}

	if res.Profile == nil || res.Profile.DisplayName == "" {
		t.Fatalf("профиль должен быть создан")
	}

	if len(repo.sessions) != 1 {
		t.Fatalf("ожидалась одна сессия, получили %d", len(repo.sessions))
	}

	loginRes, err := service.Login(ctx, LoginInput{
		Email:    "test@example.com",
		Password: "Password123",
	}, nil)
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}

	if loginRes.TokenPair.AccessToken == "" {
		t.Fatalf("ожидался access токен")
	}
}

func TestAuthService_RegisterAlwaysRegularRole(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	res, err := service.Register(context.Background(), RegisterInput{
		Email:    "arbiter-wannabe@example.com",
		Password: "Password123",
	}, nil)
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if res.User.Role != models.RoleUser {
		t.Fatalf("регистрация должна выдавать роль %q, получили %q", models.RoleUser, res.User.Role)
	}
}

func TestAuthService_Refresh(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	tokenPair, accessExp, refreshExp, err := tokenManager.GeneratePair(user)
	if err != nil {
		t.Fatalf("не удалось сгенерировать токены: %v", err)
	}
	if accessExp.After(refreshExp) {
		t.Fatalf("access должен истекать раньше refresh")
	}

	repo.sessions[tokenPair.RefreshToken] = &models.Session{
		ID:           uuid.New(),
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}

	newPair, err := service.Refresh(ctx, tokenPair.RefreshToken, nil)
	if err != nil {
		t.Fatalf("refresh вернул ошибку: %v", err)
	}

	if newPair.RefreshToken == tokenPair.RefreshToken {
		t.Fatalf("ожидался новый refresh токен")
	}
}

func TestAuthService_RefreshRevokedSession(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	user := &models.User{ID: uuid.New(), Email: "user@example.com", Role: models.RoleUser}
	repo.usersByID[user.ID] = user

	tokenPair, _, refreshExp, err := tokenManager.GeneratePair(user)
	if err != nil {
		t.Fatalf("не удалось сгенерировать токены: %v", err)
	}

	repo.sessions[tokenPair.RefreshToken] = &models.Session{
		ID:           uuid.New(),
		UserID:       user.ID,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    refreshExp,
	}

	if err := service.Logout(ctx, tokenPair.RefreshToken); err != nil {
		t.Fatalf("logout вернул ошибку: %v", err)
	}

	// Подпись токена ещё валидна, но сессия отозвана.
	if _, err := service.Refresh(ctx, tokenPair.RefreshToken, nil); err == nil {
		t.Fatalf("refresh по отозванной сессии должен вернуть ошибку")
	}
}

func TestAuthService_LoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	hash, _ := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.DefaultCost)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "blocked@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     false,
	}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	_, err := service.Login(context.Background(), LoginInput{
		Email:    "blocked@example.com",
		Password: "Password123",
	}, nil)
	if err == nil {
		t.Fatalf("вход в заблокированный аккаунт должен быть отклонён")
	}
}

func TestAuthService_UpdateProfile(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager)

	ctx := context.Background()
	userID := uuid.New()

	profile, err := service.UpdateProfile(ctx, userID, "Честный Продавец")
	if err != nil {
		t.Fatalf("update profile вернул ошибку: %v", err)
	}
	if profile.DisplayName != "Честный Продавец" {
		t.Fatalf("имя не сохранилось")
	}

	if _, err := service.UpdateProfile(ctx, userID, "x"); err == nil {
		t.Fatalf("слишком короткое имя должно быть отклонено")
	}
}
