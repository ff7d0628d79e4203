package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Ограничения для валидации регистрации
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72 // предел bcrypt
	MaxFullNameLength = 100
	tokenTypeBearer   = "bearer"
)

// RegisterRequest - данные регистрации родителя.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
}

// LoginRequest - учетные данные для входа.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse - пользователь вместе с выданным токеном.
type AuthResponse struct {
	User  *models.User         `json:"user"`
	Token *models.TokenDetails `json:"token"`
}

// AuthService регистрирует родителей и выдает JWT токены.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
	// ValidateToken проверяет подпись и срок действия access токена.
	ValidateToken(ctx context.Context, tokenString string) (*models.Claims, error)
}

type authServiceImpl struct {
	db        interfaces.DBTX
	userRepo  interfaces.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewAuthService(db interfaces.DBTX, userRepo interfaces.UserRepository, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) AuthService {
	return &authServiceImpl{
		db:        db,
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
		logger:    logger.Named("AuthService"),
	}
}

func (s *authServiceImpl) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < MinPasswordLength || len(req.Password) > MaxPasswordLength {
		return nil, fmt.Errorf("%w: password must be %d-%d characters", models.ErrBadRequest, MinPasswordLength, MaxPasswordLength)
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" || len(fullName) > MaxFullNameLength {
		return nil, fmt.Errorf("%w: full name must be 1-%d characters", models.ErrBadRequest, MaxFullNameLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hashed),
		FullName:     fullName,
		IsActive:     true,
	}
	if err := s.userRepo.Create(ctx, s.db, user); err != nil {
		if errors.Is(err, models.ErrUserAlreadyExists) {
			return nil, models.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Parent registered", zap.Stringer("userID", user.ID))
	return &AuthResponse{User: user, Token: token}, nil
}

func (s *authServiceImpl) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.userRepo.GetByEmail(ctx, s.db, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Debug("Password mismatch", zap.Stringer("userID", user.ID))
		return nil, models.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, models.ErrForbidden
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{User: user, Token: token}, nil
}

func (s *authServiceImpl) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, s.db, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

func (s *authServiceImpl) ValidateToken(ctx context.Context, tokenString string) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrTokenInvalid
	}
	if !token.Valid || claims.UserID == uuid.Nil {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}

func (s *authServiceImpl) issueToken(user *models.User) (*models.TokenDetails, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.tokenTTL)
	claims := models.Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &models.TokenDetails{AccessToken: signed, TokenType: tokenTypeBearer, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", models.ErrBadRequest)
	}
	return email, nil
}
