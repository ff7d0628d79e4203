package service

import (
	"context"
	"testing"
	"time"

	"reading-platform/internal/interfaces/mocks"
	"reading-platform/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "test-secret"

func newTestAuthService(repo *mocks.UserRepository) *authServiceImpl {
	return NewAuthService(mocks.DBTX{}, repo, testJWTSecret, time.Hour, zap.NewNop()).(*authServiceImpl)
}

func TestRegister_HashesPasswordAndIssuesToken(t *testing.T) {
	repo := new(mocks.UserRepository)
	svc := newTestAuthService(repo)
	var saved *models.User
	repo.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*models.User")).
		Run(func(args mock.Arguments) { saved = args.Get(2).(*models.User) }).
		Return(nil).Once()

	resp, err := svc.Register(context.Background(), RegisterRequest{Email: " Dana@Example.com ", Password: "s3cret-pass", FullName: "Dana Levi"})
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "dana@example.com", saved.Email)
	assert.NotEqual(t, "s3cret-pass", saved.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved.PasswordHash), []byte("s3cret-pass")))
	assert.Equal(t, "bearer", resp.Token.TokenType)

	claims, err := svc.ValidateToken(context.Background(), resp.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, claims.UserID)
	assert.Equal(t, "dana@example.com", claims.Email)
}

func TestRegister_Validation(t *testing.T) {
	repo := new(mocks.UserRepository)
	svc := newTestAuthService(repo)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "not-an-email", Password: "long-enough", FullName: "A"})
	assert.ErrorIs(t, err, models.ErrBadRequest)
	_, err = svc.Register(ctx, RegisterRequest{Email: "a@b.co", Password: "short", FullName: "A"})
	assert.ErrorIs(t, err, models.ErrBadRequest)
	_, err = svc.Register(ctx, RegisterRequest{Email: "a@b.co", Password: "long-enough", FullName: "  "})
	assert.ErrorIs(t, err, models.ErrBadRequest)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)

	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(models.ErrUserAlreadyExists).Once()
	_, err = svc.Register(ctx, RegisterRequest{Email: "a@b.co", Password: "long-enough", FullName: "A"})
	assert.ErrorIs(t, err, models.ErrUserAlreadyExists)
}

func TestLogin(t *testing.T) {
	repo := new(mocks.UserRepository)
	svc := newTestAuthService(repo)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), Email: "dana@example.com", PasswordHash: string(hash), IsActive: true}
	repo.On("GetByEmail", mock.Anything, mock.Anything, "dana@example.com").Return(user, nil)
	repo.On("GetByEmail", mock.Anything, mock.Anything, "ghost@example.com").Return(nil, models.ErrNotFound)

	resp, err := svc.Login(ctx, LoginRequest{Email: "DANA@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.NotEmpty(t, resp.Token.AccessToken)

	_, err = svc.Login(ctx, LoginRequest{Email: "dana@example.com", Password: "wrong-horse"})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginRequest{Email: "ghost@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestValidateToken_RejectsExpiredAndForeignTokens(t *testing.T) {
	svc := newTestAuthService(new(mocks.UserRepository))
	ctx := context.Background()
	user := &models.User{ID: uuid.New(), Email: "dana@example.com"}

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := svc.issueToken(user)
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.ValidateToken(ctx, old.AccessToken)
	assert.ErrorIs(t, err, models.ErrTokenExpired)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.Claims{UserID: user.ID}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, foreign)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	_, err = svc.ValidateToken(ctx, "garbage")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestMe(t *testing.T) {
	repo := new(mocks.UserRepository)
	svc := newTestAuthService(repo)
	id := uuid.New()
	repo.On("GetByID", mock.Anything, mock.Anything, id).Return(nil, models.ErrNotFound).Once()

	_, err := svc.Me(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}
