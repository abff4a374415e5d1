package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/models"
	"github.com/ignatzorin/bounty-backend/internal/pkg/apperror"
	"github.com/ignatzorin/bounty-backend/internal/repository"
	"github.com/ignatzorin/bounty-backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthService инкапсулирует регистрацию и аутентификацию.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
	activity     ActivityPublisher
	log          *logrus.Entry
}

// RegisterInput содержит данные пользователя при регистрации.
type RegisterInput struct {
	Email    string
	Password string
	Username string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	TokenPair *TokenPair
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager, activity ActivityPublisher) *AuthService {
	if activity == nil {
		activity = noopPublisher{}
	}
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
		activity:     activity,
		log:          logger.WithComponent("auth"),
	}
}

// Register создаёт пользователя с пустым кошельком.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if err := validation.ValidatePassword(in.Password, email); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = deriveUsername(email)
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось обработать пароль")
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, translateError(err)
	}

	pair, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выпустить токены")
	}

	s.log.WithField("user_id", user.ID).Info("пользователь зарегистрирован")
	s.activity.Publish(ctx, user.ID, models.ActivityUserRegistered, map[string]string{"username": user.Username})

	return &AuthResult{User: user, TokenPair: pair}, nil
}

// Login проверяет учетные данные и выдаёт токены.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, translateError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperror.New(apperror.ErrCodeForbidden, "аккаунт деактивирован")
	}

	pair, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выпустить токены")
	}

	return &AuthResult{User: user, TokenPair: pair}, nil
}

// Refresh выпускает новую пару токенов по refresh токену.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	userID, err := s.tokenManager.ParseRefresh(refreshToken)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "недействительный refresh токен")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUnauthorized
		}
		return nil, translateError(err)
	}
	if !user.IsActive {
		return nil, apperror.New(apperror.ErrCodeForbidden, "аккаунт деактивирован")
	}

	pair, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выпустить токены")
	}
	return &AuthResult{User: user, TokenPair: pair}, nil
}

// Me возвращает текущего пользователя.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

// deriveUsername строит имя пользователя из локальной части email.
func deriveUsername(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}

	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '.' || r == '-':
			b.WriteRune('_')
		}
	}

	name := b.String()
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "u" + name
	}
	if len(name) < validation.MinUsernameLength {
		name += "_" + uuid.NewString()[:6]
	}
	if len(name) > validation.MaxUsernameLength {
		name = name[:validation.MaxUsernameLength]
	}
	return name
}
