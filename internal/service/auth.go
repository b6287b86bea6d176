// Package service composes the store, the catalog and the login limiter into use cases.
package service

import (
	"context"
	"errors"
	"regexp"

	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/borga/internal/crypto"
	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/ident"
	"github.com/and161185/borga/internal/limiter"
	"github.com/and161185/borga/internal/model"
	"github.com/and161185/borga/internal/repository"
)

// usernamePattern keeps usernames usable as document index names.
var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// AuthService defines account and token operations.
type AuthService interface {
	// CreateUser registers an account and returns its bearer token.
	CreateUser(ctx context.Context, name, username, password string) (string, error)
	// Username resolves a bearer token. This is the only authentication check.
	Username(ctx context.Context, token string) (string, error)
	// CheckAndGetUser verifies credentials under rate limiting by (username, ip)
	// and returns the user with its token attached.
	CheckAndGetUser(ctx context.Context, username, password, ip string) (model.User, error)
	// User returns the public part of an account.
	User(ctx context.Context, username string) (model.User, error)
	// Token returns the account's bearer token.
	Token(ctx context.Context, username string) (string, error)
	// EnsureGuest creates the guest account unless it is already there.
	EnsureGuest(ctx context.Context, guest model.Guest)
}

type AuthServiceImpl struct {
	store repository.Store
	lim   limiter.Limiter
	log   *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(store repository.Store, lim limiter.Limiter, log *zap.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{store: store, lim: lim, log: log}
}

// CreateUser hashes the password with a per-user salt and stores the account under a fresh token.
func (s *AuthServiceImpl) CreateUser(ctx context.Context, name, username, password string) (string, error) {
	token, err := ident.NewToken()
	if err != nil {
		return "", errs.Wrap(errs.KindFailure, err, nil)
	}
	if err := s.createUser(ctx, name, username, password, token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *AuthServiceImpl) createUser(ctx context.Context, name, username, password, token string) error {
	if err := errs.Require("name", name, "username", username, "password", password); err != nil {
		return err
	}
	if !usernamePattern.MatchString(username) {
		return errs.InvalidParam("username '%s' must match %s", username, usernamePattern)
	}
	salt, hash, err := pkgcrypto.NewPasswordHash(password)
	if err != nil {
		return errs.Wrap(errs.KindFailure, err, nil)
	}
	u := model.User{Username: username, Name: name, PwdHash: hash, Salt: salt}
	return s.store.CreateUser(ctx, u, token)
}

// Username returns the owner of token or UNAUTHENTICATED.
func (s *AuthServiceImpl) Username(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errs.Unauthenticated("missing token")
	}
	username, err := s.store.TokenToUsername(ctx, token)
	if err != nil {
		return "", err
	}
	if username == "" {
		return "", errs.Unauthenticated("invalid token")
	}
	return username, nil
}

// CheckAndGetUser authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) CheckAndGetUser(ctx context.Context, username, password, ip string) (model.User, error) {
	if err := errs.Require("username", username, "password", password); err != nil {
		return model.User{}, err
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.User{}, errs.Wrap(errs.KindExtSvcFailure, err, nil)
	}
	if !allowed {
		return model.User{}, errs.Unauthenticated("too many failed login attempts")
	}

	u, err := s.store.GetUser(ctx, username)
	if err == nil && !pkgcrypto.VerifyPassword(password, u.Salt, u.PwdHash) {
		err = errs.InvalidParam("invalid password")
	}
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrInvalidParam) {
			return model.User{}, err
		}
		blocked, _, ferr := s.lim.Failure(ctx, username, ipHash)
		if ferr != nil {
			s.log.Warn("limiter failure not recorded", zap.String("username", username), zap.Error(ferr))
		}
		if blocked {
			return model.User{}, errs.Unauthenticated("too many failed login attempts")
		}
		return model.User{}, err
	}

	if err := s.lim.Success(ctx, username, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.String("username", username), zap.Error(err))
	}

	token, err := s.store.UsernameToToken(ctx, username)
	if err != nil {
		return model.User{}, err
	}
	return model.User{Username: u.Username, Name: u.Name, Token: token}, nil
}

// User returns the account without credentials.
func (s *AuthServiceImpl) User(ctx context.Context, username string) (model.User, error) {
	u, err := s.store.GetUser(ctx, username)
	if err != nil {
		return model.User{}, err
	}
	return model.User{Username: u.Username, Name: u.Name}, nil
}

func (s *AuthServiceImpl) Token(ctx context.Context, username string) (string, error) {
	return s.store.UsernameToToken(ctx, username)
}

// EnsureGuest is idempotent. Any failure is taken to mean the guest already exists and is only logged.
func (s *AuthServiceImpl) EnsureGuest(ctx context.Context, guest model.Guest) {
	token := guest.Token
	if token == "" {
		var err error
		if token, err = ident.NewToken(); err != nil {
			s.log.Warn("guest token generation failed", zap.Error(err))
			return
		}
	}
	err := s.createUser(ctx, guest.Name, guest.Username, guest.Password, token)
	switch {
	case err == nil:
		s.log.Info("guest user created", zap.String("username", guest.Username))
	case errors.Is(err, errs.ErrAlreadyExists):
		s.log.Info("guest user already exists", zap.String("username", guest.Username))
	default:
		s.log.Warn("guest user bootstrap failed", zap.String("username", guest.Username), zap.Error(err))
	}
}
