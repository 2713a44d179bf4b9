package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/edermartinez/bienesraices/app/entity"
	"github.com/edermartinez/bienesraices/app/repository"
	"github.com/edermartinez/bienesraices/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrAccountNotConfirmed = errors.New("account not confirmed")
	ErrIncorrectPassword   = errors.New("incorrect password")
	ErrInvalidToken        = errors.New("invalid or expired token")
)

// Claims is the session assertion carried in the _token cookie. It is
// verifiable without a store round-trip.
type Claims struct {
	UserID uint64 `json:"user_id"`
	Nombre string `json:"nombre"`
	jwt.RegisteredClaims
}

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByToken(ctx context.Context, token string) (*entity.User, error)
	ConfirmByToken(ctx context.Context, token string) (bool, error)
	AssignToken(ctx context.Context, email, token string) (bool, error)
	SetPasswordByToken(ctx context.Context, token, passwordHash string) (bool, error)
}

// Mailer dispatches the account-confirmation and password-reset emails.
type Mailer interface {
	SendAccountConfirmation(ctx context.Context, nombre, email, token string) error
	SendPasswordReset(ctx context.Context, nombre, email, token string) error
}

type AsyncRunner func(task func())

type AuthServiceOption func(*AuthService)

type AuthService struct {
	userRepo    userRepository
	mailer      Mailer
	cfg         *config.Config
	asyncRunner AsyncRunner
}

func NewAuthService(userRepo userRepository, mailer Mailer, cfg *config.Config, opts ...AuthServiceOption) *AuthService {
	svc := &AuthService{
		userRepo: userRepo,
		mailer:   mailer,
		cfg:      cfg,
		asyncRunner: func(task func()) {
			go task()
		},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithAsyncRunner(runner AsyncRunner) AuthServiceOption {
	return func(s *AuthService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

// Register creates an unconfirmed account with a fresh confirmation token
// and dispatches the confirmation email. The email is canonicalized before
// storage so the unique index covers whitespace and case variants;
// uniqueness itself is enforced by the index, not a prior lookup.
func (s *AuthService) Register(ctx context.Context, nombre, email, password string) (*entity.User, error) {
	email = CanonicalizeEmail(email)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	token := uuid.New().String()
	now := time.Now()

	user := &entity.User{
		Nombre:       nombre,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Confirmado:   false,
		Token:        sql.NullString{String: token, Valid: true},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err = s.userRepo.Create(ctx, user); err != nil {
		if repository.IsDuplicateEntry(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.asyncRunner(func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if sendErr := s.mailer.SendAccountConfirmation(sendCtx, user.Nombre, user.Email, token); sendErr != nil {
			logrus.WithError(sendErr).WithField("email", user.Email).Error("failed to send confirmation email")
		}
	})

	return user, nil
}

// ConfirmAccount consumes a confirmation token atomically: the token is
// cleared and the account marked confirmed in one statement.
func (s *AuthService) ConfirmAccount(ctx context.Context, token string) error {
	confirmed, err := s.userRepo.ConfirmByToken(ctx, token)
	if err != nil {
		return err
	}
	if !confirmed {
		return ErrInvalidToken
	}
	return nil
}

// Login checks, in order: the account exists, it is confirmed, and the
// password verifies. The first failing rule wins so each outcome keeps its
// own message. On success it returns a signed session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	if !user.Confirmado {
		return "", ErrAccountNotConfirmed
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrIncorrectPassword
	}

	return s.generateSessionToken(user)
}

// RequestPasswordReset assigns a fresh reset token to the account and
// dispatches the reset email. ErrUserNotFound is surfaced to the caller;
// the resulting account-existence leak is a recorded product decision.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = CanonicalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	token := uuid.New().String()
	assigned, err := s.userRepo.AssignToken(ctx, email, token)
	if err != nil {
		return err
	}
	if !assigned {
		return ErrUserNotFound
	}

	s.asyncRunner(func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if sendErr := s.mailer.SendPasswordReset(sendCtx, user.Nombre, user.Email, token); sendErr != nil {
			logrus.WithError(sendErr).WithField("email", user.Email).Error("failed to send password reset email")
		}
	})

	return nil
}

// VerifyResetToken checks that a reset token belongs to an account without
// consuming it; the token is only cleared once the new password is set.
func (s *AuthService) VerifyResetToken(ctx context.Context, token string) (*entity.User, error) {
	user, err := s.userRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// SetNewPassword hashes the new password and consumes the reset token in a
// single compare-and-clear statement. A token that no longer matches any
// row is reported as invalid rather than assumed to exist.
func (s *AuthService) SetNewPassword(ctx context.Context, token, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	updated, err := s.userRepo.SetPasswordByToken(ctx, token, string(hashedPassword))
	if err != nil {
		return err
	}
	if !updated {
		return ErrInvalidToken
	}
	return nil
}

func (s *AuthService) ValidateSessionToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *AuthService) generateSessionToken(user *entity.User) (string, error) {
	claims := &Claims{
		UserID: user.ID,
		Nombre: user.Nombre,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.SessionTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   user.Email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
