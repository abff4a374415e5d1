package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-backend/internal/repository"
)

// mockAuthRepository реализует AuthRepository для тестов.
type mockAuthRepository struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
}

func newMockAuthRepository() *mockAuthRepository {
	return &mockAuthRepository{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
	}
}

func (m *mockAuthRepository) Create(ctx context.Context, user *models.User) error {
	if _, ok := m.usersByEmail[user.Email]; ok {
		return repository.ErrEmailTaken
	}
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

func TestAuthService_RegisterAndLogin(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access", "refresh", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager, nil)

	ctx := context.Background()
	res, err := service.Register(ctx, RegisterInput{
		Email:    "Test.User@Example.com",
		Password: "Password123",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if res.User.ID == uuid.Nil {
		t.Fatalf("user ID должен быть установлен")
	}
	if res.User.Email != "test.user@example.com" {
		t.Fatalf("email должен быть нормализован, получили %q", res.User.Email)
	}
	if res.User.Username != "test_user" {
		t.Fatalf("ожидалось имя test_user, получили %q", res.User.Username)
	}
	if res.User.Role != models.RoleUser {
		t.Fatalf("ожидалась роль %q, получили %q", models.RoleUser, res.User.Role)
	}

	loginRes, err := service.Login(ctx, LoginInput{
		Email:    "test.user@example.com",
		Password: "Password123",
	})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}
	if loginRes.TokenPair.AccessToken == "" {
		t.Fatalf("ожидался access токен")
	}

	userID, role, err := tokenManager.ParseAccess(loginRes.TokenPair.AccessToken)
	if err != nil {
		t.Fatalf("access токен не разобран: %v", err)
	}
	if userID != res.User.ID || role != models.RoleUser {
		t.Fatalf("неверные клеймы: %s %s", userID, role)
	}
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepository()
	service := NewAuthService(repo, NewTokenManager("a", "r", time.Minute, time.Hour), nil)

	ctx := context.Background()
	in := RegisterInput{Email: "dup@example.com", Password: "Password123", Username: "dup_user"}
	if _, err := service.Register(ctx, in); err != nil {
		t.Fatalf("первая регистрация: %v", err)
	}

	_, err := service.Register(ctx, in)
	if apperror.CodeOf(err) != apperror.ErrCodeConflict {
		t.Fatalf("ожидался конфликт, получили %v", err)
	}
}

func TestAuthService_RegisterWeakPassword(t *testing.T) {
	service := NewAuthService(newMockAuthRepository(), NewTokenManager("a", "r", time.Minute, time.Hour), nil)

	_, err := service.Register(context.Background(), RegisterInput{Email: "weak@example.com", Password: "short"})
	if !apperror.IsValidation(err) {
		t.Fatalf("ожидалась ошибка валидации, получили %v", err)
	}
}

func TestAuthService_RegisterPasswordWithLogin(t *testing.T) {
	repo := newMockAuthRepository()
	service := NewAuthService(repo, NewTokenManager("a", "r", time.Minute, time.Hour), nil)

	_, err := service.Register(context.Background(), RegisterInput{Email: "Kovalenko@example.com", Password: "kovalenkO2024"})
	if !apperror.IsValidation(err) {
		t.Fatalf("ожидалась ошибка валидации, получили %v", err)
	}
	if len(repo.usersByEmail) != 0 {
		t.Fatalf("пользователь не должен создаваться")
	}
}

func TestAuthService_LoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepository()
	service := NewAuthService(repo, NewTokenManager("a", "r", time.Minute, time.Hour), nil)

	hash, _ := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.MinCost)
	user := &models.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: string(hash), IsActive: true}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	if _, err := service.Login(context.Background(), LoginInput{Email: user.Email, Password: "Wrong1234"}); err != apperror.ErrInvalidCredentials {
		t.Fatalf("ожидалась ErrInvalidCredentials, получили %v", err)
	}
	if _, err := service.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "Password123"}); err != apperror.ErrInvalidCredentials {
		t.Fatalf("ожидалась ErrInvalidCredentials для неизвестного email, получили %v", err)
	}
}

func TestAuthService_Refresh(t *testing.T) {
	repo := newMockAuthRepository()
	tokenManager := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	service := NewAuthService(repo, tokenManager, nil)

	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     true,
	}
	repo.usersByEmail[user.Email] = user
	repo.usersByID[user.ID] = user

	tokenPair, err := tokenManager.GeneratePair(user)
	if err != nil {
		t.Fatalf("не удалось сгенерировать токены: %v", err)
	}

	res, err := service.Refresh(ctx, tokenPair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh вернул ошибку: %v", err)
	}
	if res.TokenPair.RefreshToken == tokenPair.RefreshToken {
		t.Fatalf("ожидался новый refresh токен")
	}

	// access токен не принимается как refresh
	if _, err := service.Refresh(ctx, tokenPair.AccessToken); apperror.CodeOf(err) != apperror.ErrCodeUnauthorized {
		t.Fatalf("ожидался отказ для access токена, получили %v", err)
	}
}

func TestTokenManager_Expired(t *testing.T) {
	tm := NewTokenManager("a", "r", time.Minute, time.Hour)
	user := &models.User{ID: uuid.New(), Role: models.RoleUser}

	pair, err := tm.GeneratePair(user)
	if err != nil {
		t.Fatalf("генерация: %v", err)
	}

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, _, err := tm.ParseAccess(pair.AccessToken); err == nil {
		t.Fatalf("просроченный access токен должен отклоняться")
	}
	if _, err := tm.ParseRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("refresh токен ещё действителен: %v", err)
	}
}
