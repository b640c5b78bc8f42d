package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventory/internal/apperror"
	"inventory/internal/models"
	"inventory/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is used when NewAuthService receives a non-positive TTL.
const DefaultTokenTTL = 24 * time.Hour

const msgInvalidCredentials = "Invalid credentials"

// AuthService handles business logic for authentication and authorization.
type AuthService struct {
	userRepo  repositories.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	validate  *validator.Validate
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		validate:  models.NewValidator(),
	}
}

// RegisterUser validates the user, hashes their password, and saves them.
func (s *AuthService) RegisterUser(ctx context.Context, user *models.User) error {
	user.Username = strings.TrimSpace(user.Username)
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := s.validate.Struct(user); err != nil {
		return apperror.Validation(models.DescribeValidation(err))
	}

	if err := s.ensureFree(ctx, s.userRepo.GetByUsername, user.Username, "Username already taken"); err != nil {
		return err
	}
	if err := s.ensureFree(ctx, s.userRepo.GetByEmail, user.Email, "Email already registered"); err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return apperror.Storage("Server error while registering user", fmt.Errorf("failed to hash password: %w", err))
	}
	user.Password = string(hashedPassword)

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return apperror.Duplicate("Username or email already registered")
		}
		return apperror.Storage("Server error while registering user", err)
	}
	return nil
}

func (s *AuthService) ensureFree(ctx context.Context, lookup func(context.Context, string) (*models.User, error), value, message string) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return apperror.Duplicate(message)
	case errors.Is(err, repositories.ErrNotFound):
		return nil
	default:
		return apperror.Storage("Server error while registering user", err)
	}
}

// LoginUser authenticates by username or email and returns a signed JWT with the user.
func (s *AuthService) LoginUser(ctx context.Context, identifier, password string) (string, *models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return "", nil, apperror.Validation("Please provide username and password")
	}

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return "", nil, apperror.Storage("Server error while logging in", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, apperror.Unauthorized(msgInvalidCredentials)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      now.Add(s.tokenTTL).Unix(),
		"iat":      now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, apperror.Storage("Server error while logging in", fmt.Errorf("failed to generate token: %w", err))
	}
	return tokenString, user, nil
}

// lookup tries the email index first for identifiers that look like an address.
func (s *AuthService) lookup(ctx context.Context, identifier string) (*models.User, error) {
	if strings.Contains(identifier, "@") {
		user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(identifier))
		if !errors.Is(err, repositories.ErrNotFound) {
			return user, err
		}
	}
	return s.userRepo.GetByUsername(ctx, identifier)
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, apperror.New(apperror.KindUnauthorized, "Token is not valid", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if id, _ := claims["user_id"].(string); id == "" {
			return nil, apperror.Unauthorized("Token is not valid")
		}
		return claims, nil
	}
	return nil, apperror.Unauthorized("Token is not valid")
}

// GetUser returns the account behind an authenticated request.
func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, apperror.Storage("Server error while fetching user", err)
	}
	return user, nil
}
