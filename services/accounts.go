package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/repository"
)

const tokenIssuer = "labelsysbackend"

func errUserInactive() error {
	return apperr.New(apperr.CodeUnauthorized, "account is deactivated")
}

// Accounts manages users and their bearer tokens.
type Accounts struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAccounts(users repository.UserRepository, secret string, ttl time.Duration) *Accounts {
	return &Accounts{users: users, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=6"`
	IsAdmin  bool   `json:"is_admin"`
}

func (a *Accounts) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validate.Struct(in); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInvalid, "invalid user")
	}
	user := &models.User{Username: in.Username, Email: in.Email, IsAdmin: in.IsAdmin, IsActive: true}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to hash password")
	}
	if err := a.users.Create(ctx, user); err != nil {
		if apperr.IsCode(err, apperr.CodeConflict) {
			return nil, apperr.Wrap(err, apperr.CodeConflict, "username is already taken")
		}
		return nil, internal(err, "failed to create user")
	}
	logger.L().Info("user created", zap.String("user_id", user.ID.String()), zap.String("username", user.Username), zap.Bool("admin", user.IsAdmin))
	return user, nil
}

// EnsureAdmin creates the configured administrator unless a user with that
// name already exists
func (a *Accounts) EnsureAdmin(ctx context.Context, username, email, password string) error {
	_, err := a.users.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}
	_, err = a.CreateUser(ctx, NewUser{Username: username, Email: email, Password: password, IsAdmin: true})
	return err
}

func (a *Accounts) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := a.users.ListAll(ctx)
	if err != nil {
		return nil, internal(err, "failed to list users")
	}
	return users, nil
}

func (a *Accounts) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		return nil, internal(err, "failed to load user")
	}
	return user, nil
}

// UserUpdate is the input of UpdateUser. Nil fields are left unchanged.
type UserUpdate struct {
	IsActive *bool `json:"is_active"`
	IsAdmin  *bool `json:"is_admin"`
}

// UpdateUser toggles the active and admin flags of a user
func (a *Accounts) UpdateUser(ctx context.Context, id uuid.UUID, in UserUpdate) (*models.User, error) {
	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		return nil, internal(err, "failed to load user")
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if in.IsAdmin != nil {
		user.IsAdmin = *in.IsAdmin
	}
	if err := a.users.Update(ctx, user); err != nil {
		return nil, internal(err, "failed to update user")
	}
	logger.L().Info("user updated", zap.String("user_id", user.ID.String()), zap.Bool("active", user.IsActive), zap.Bool("admin", user.IsAdmin))
	return user, nil
}

// Login checks the credentials and issues a token
func (a *Accounts) Login(ctx context.Context, username, password string) (string, time.Time, *models.User, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return "", time.Time{}, nil, apperr.New(apperr.CodeUnauthorized, "invalid username or password")
		}
		return "", time.Time{}, nil, internal(err, "failed to load user")
	}
	if !user.CheckPassword(password) {
		return "", time.Time{}, nil, apperr.New(apperr.CodeUnauthorized, "invalid username or password")
	}
	if !user.IsActive {
		return "", time.Time{}, nil, errUserInactive()
	}
	token, expires, err := a.IssueToken(user)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, expires, user, nil
}

// IssueToken signs an HS256 token whose subject is the user id
func (a *Accounts) IssueToken(user *models.User) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := &jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(err, apperr.CodeInternal, "failed to generate token")
	}
	return signed, expires, nil
}

// Authenticate verifies a bearer token and loads its user
func (a *Accounts) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(err, apperr.CodeUnauthorized, "token expired")
		}
		return nil, apperr.Wrap(err, apperr.CodeUnauthorized, "invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUnauthorized, "invalid user id in token")
	}
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.New(apperr.CodeUnauthorized, "user not found")
		}
		return nil, internal(err, "failed to load user")
	}
	if !user.IsActive {
		return nil, errUserInactive()
	}
	return user, nil
}
