package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"sensor_gateway/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

// AuthOptions configures token issuing.
type AuthOptions struct {
	SigningKey string
	TokenTTL   time.Duration
}

// Domain errors for auth flows.
var (
	ErrInvalidPassword  = errors.New("invalid password")
	ErrOperatorNotFound = errors.New("operator not found")
	ErrInvalidToken     = errors.New("invalid token")
)

// AuthService signs operators up and in.
type AuthService struct {
	operators repository.Operators
	key       []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewAuthService(repo repository.Operators, opts AuthOptions) *AuthService {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	return &AuthService{
		operators: repo,
		key:       []byte(opts.SigningKey),
		ttl:       opts.TokenTTL,
		now:       time.Now,
	}
}

var _ Authorization = (*AuthService)(nil)

// SignUp hashes password and creates a new operator
func (s *AuthService) SignUp(username, password string) (int, error) {
	if strings.TrimSpace(username) == "" {
		return 0, fmt.Errorf("%w: username is empty", ErrValidation)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.operators.Create(username, hash)
}

// Claims defines JWT claims
type Claims struct {
	jwt.RegisteredClaims
	OperatorID int `json:"operator_id"`
}

// GenerateToken validates credentials and returns JWT
func (s *AuthService) GenerateToken(username, password string) (string, error) {
	op, err := s.operators.GetByUsername(username)
	if err != nil {
		return "", err
	}
	if op == nil {
		return "", ErrOperatorNotFound
	}

	if err := verifyPassword(op.PasswordHash, password); err != nil {
		return "", ErrInvalidPassword
	}

	return s.issueToken(op.ID)
}

// ParseToken parses JWT and returns the operator id
func (s *AuthService) ParseToken(accessToken string) (int, error) {
	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure HMAC signing is used
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}

	return claims.OperatorID, nil
}

// helper: hash password safely
func hashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// helper: verify password against hash
func verifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// issueToken signs a token for one operator.
func (s *AuthService) issueToken(operatorID int) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OperatorID: operatorID,
	})
	return token.SignedString(s.key)
}
