// Package auth registers users, issues HS256 tokens and verifies them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"emission-service/internal/apperr"
	"emission-service/internal/ids"
	"emission-service/internal/models"
	"emission-service/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=operator admin"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

const issuer = "emission-service"

type Service struct {
	users  repository.UserStore
	secret []byte
	ttl    time.Duration
	ids    ids.Generator
	now    func() time.Time
	cost   int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithIDs(g ids.Generator) Option {
	return func(s *Service) { s.ids = g }
}

func NewService(users repository.UserStore, secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		ids:    ids.UUIDv7{},
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user. The role defaults to operator.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if name == "" || email == "" || req.Password == "" {
		return nil, apperr.Validation("name, email and password are required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("invalid email address", err)
	}
	role := req.Role
	switch role {
	case "":
		role = models.RoleOperator
	case models.RoleOperator, models.RoleAdmin:
	default:
		return nil, apperr.Validation("role must be operator or admin", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, apperr.Validation("password cannot be hashed", err)
	}
	user := &models.User{
		ID:           s.ids.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("email already registered", err)
		}
		return nil, storeError(err)
	}
	return user, nil
}

// Login checks the credentials and returns a signed token for the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperr.Unauthorized("invalid email or password", nil)
		}
		return "", nil, storeError(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperr.Unauthorized("invalid email or password", nil)
	}
	token, err := s.Issue(*user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Issue signs a token for user.
func (s *Service) Issue(user models.User) (string, error) {
	now := s.now()
	c := claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", apperr.Internal("token signing failed", err)
	}
	return signed, nil
}

// Parse verifies a token. Invalid and expired tokens are Forbidden errors.
func (s *Service) Parse(token string) (Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, apperr.Forbidden("token expired", err)
		}
		return Principal{}, apperr.Forbidden("invalid token", err)
	}
	if c.Subject == "" {
		return Principal{}, apperr.Forbidden("invalid token", fmt.Errorf("token has no subject"))
	}
	return Principal{UserID: c.Subject, Email: c.Email, Role: c.Role}, nil
}

func storeError(err error) error {
	if errors.Is(err, repository.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.StoreUnavailable("store unavailable, retry later", err)
	}
	return apperr.Internal("user store failed", err)
}
