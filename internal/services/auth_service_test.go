package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"inventory/internal/apperror"
	"inventory/internal/models"
	"inventory/internal/repositories"
	"inventory/internal/services"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "test_jwt_secret"

var errNoUser = fmt.Errorf("user: %w", repositories.ErrNotFound)

func TestAuthService_RegisterUser(t *testing.T) {
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour)

	user := &models.User{Username: "testuser", Email: "Test@Example.com", Password: "password123"}
	mockRepo.On("GetByUsername", mock.Anything, "testuser").Return(nil, errNoUser).Once()
	mockRepo.On("GetByEmail", mock.Anything, "test@example.com").Return(nil, errNoUser).Once()
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.User")).Return(nil).Once()

	err := authService.RegisterUser(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "test@example.com", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password123")))
	mockRepo.AssertExpectations(t)

	// Test username already taken
	again := &models.User{Username: "testuser", Email: "other@example.com", Password: "password123"}
	mockRepo.On("GetByUsername", mock.Anything, "testuser").Return(&models.User{ID: "1"}, nil).Once()
	err = authService.RegisterUser(context.Background(), again)
	assert.True(t, apperror.Is(err, apperror.KindDuplicate))
	assert.Equal(t, "Username already taken", apperror.MessageOf(err, ""))

	// Test email already registered
	again = &models.User{Username: "other", Email: "test@example.com", Password: "password123"}
	mockRepo.On("GetByUsername", mock.Anything, "other").Return(nil, errNoUser).Once()
	mockRepo.On("GetByEmail", mock.Anything, "test@example.com").Return(&models.User{ID: "1"}, nil).Once()
	err = authService.RegisterUser(context.Background(), again)
	assert.True(t, apperror.Is(err, apperror.KindDuplicate))
	assert.Equal(t, "Email already registered", apperror.MessageOf(err, ""))
	mockRepo.AssertExpectations(t)
}

func TestAuthService_RegisterUserValidation(t *testing.T) {
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour)

	for name, user := range map[string]*models.User{
		"short username": {Username: "ab", Email: "a@example.com", Password: "password123"},
		"bad email":      {Username: "abc", Email: "not-an-email", Password: "password123"},
		"short password": {Username: "abc", Email: "a@example.com", Password: "123"},
	} {
		t.Run(name, func(t *testing.T) {
			err := authService.RegisterUser(context.Background(), user)
			assert.True(t, apperror.Is(err, apperror.KindValidation))
		})
	}
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func newLoginFixture(t *testing.T) (*MockUserRepository, *services.AuthService, *models.User) {
	t.Helper()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:       "user-123",
		Username: "testuser",
		Email:    "test@example.com",
		Password: string(hashedPassword),
	}
	mockRepo := new(MockUserRepository)
	return mockRepo, services.NewAuthService(mockRepo, testJWTSecret, time.Hour), user
}

func TestAuthService_LoginUser(t *testing.T) {
	mockRepo, authService, user := newLoginFixture(t)

	mockRepo.On("GetByUsername", mock.Anything, "testuser").Return(user, nil).Once()
	token, loggedIn, err := authService.LoginUser(context.Background(), "testuser", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user, loggedIn)

	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, user.ID, claims["user_id"])
	assert.Equal(t, user.Username, claims["username"])
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), claims["exp"], 5)
	mockRepo.AssertExpectations(t)
}

func TestAuthService_LoginUserByEmail(t *testing.T) {
	mockRepo, authService, user := newLoginFixture(t)

	mockRepo.On("GetByEmail", mock.Anything, "test@example.com").Return(user, nil).Once()
	_, loggedIn, err := authService.LoginUser(context.Background(), "Test@Example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	mockRepo.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
}

func TestAuthService_LoginUserInvalidCredentials(t *testing.T) {
	mockRepo, authService, user := newLoginFixture(t)

	// Wrong password
	mockRepo.On("GetByUsername", mock.Anything, "testuser").Return(user, nil).Once()
	_, _, err := authService.LoginUser(context.Background(), "testuser", "wrongpassword")
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	assert.Equal(t, "Invalid credentials", apperror.MessageOf(err, ""))

	// Unknown user gets the same message
	mockRepo.On("GetByUsername", mock.Anything, "nonexistentuser").Return(nil, errNoUser).Once()
	_, _, err = authService.LoginUser(context.Background(), "nonexistentuser", "password123")
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	assert.Equal(t, "Invalid credentials", apperror.MessageOf(err, ""))

	_, _, err = authService.LoginUser(context.Background(), " ", "password123")
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	mockRepo.On("GetByUsername", mock.Anything, "flaky").Return(nil, errors.New("connection reset")).Once()
	_, _, err = authService.LoginUser(context.Background(), "flaky", "password123")
	assert.True(t, apperror.Is(err, apperror.KindStorage))
	mockRepo.AssertExpectations(t)
}

func TestAuthService_ValidateToken(t *testing.T) {
	authService := services.NewAuthService(new(MockUserRepository), testJWTSecret, time.Hour)

	sign := func(claims jwt.MapClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	claims, err := authService.ValidateToken(sign(jwt.MapClaims{
		"user_id":  "user-123",
		"username": "testuser",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}, testJWTSecret))
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims["user_id"])

	for name, token := range map[string]string{
		"garbage":      "invalid.token.string",
		"wrong secret": sign(jwt.MapClaims{"user_id": "u", "exp": time.Now().Add(time.Hour).Unix()}, "other"),
		"expired":      sign(jwt.MapClaims{"user_id": "u", "exp": time.Now().Add(-time.Hour).Unix()}, testJWTSecret),
		"no subject":   sign(jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, testJWTSecret),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := authService.ValidateToken(token)
			assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
		})
	}
}

func TestAuthService_GetUser(t *testing.T) {
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, 0)

	mockRepo.On("GetByID", mock.Anything, "user-123").Return(&models.User{ID: "user-123"}, nil).Once()
	user, err := authService.GetUser(context.Background(), "user-123")
	require.NoError(t, err)
	assert.Equal(t, "user-123", user.ID)

	mockRepo.On("GetByID", mock.Anything, "gone").Return(nil, errNoUser).Once()
	_, err = authService.GetUser(context.Background(), "gone")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	mockRepo.AssertExpectations(t)
}
