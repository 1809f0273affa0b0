package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tokens is the login and refresh response body.
type Tokens struct {
	TokenType               string `json:"tokenType"`
	AccessToken             string `json:"accessToken"`
	ExpiresInSeconds        int64  `json:"expiresInSeconds"`
	RefreshToken            string `json:"refreshToken"`
	RefreshExpiresInSeconds int64  `json:"refreshExpiresInSeconds"`
}

// Service authenticates the single configured API user.
type Service struct {
	tokens   *TokenService
	store    RefreshStore
	username string
	password string
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(tokens *TokenService, store RefreshStore, username, password string, logger *zap.Logger) *Service {
	return &Service{
		tokens:   tokens,
		store:    store,
		username: username,
		password: password,
		now:      time.Now,
		logger:   logger.Named("auth"),
	}
}

func (s *Service) Login(ctx context.Context, username, password string) (*Tokens, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userOK || !passOK {
		s.logger.Info("login rejected")
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, username, s.now())
}

// Refresh exchanges a refresh token for a new token pair. The presented refresh
// id is consumed, so replaying the same token fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	claims, err := s.tokens.Parse(refreshToken, TypeRefresh)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ok, err := s.store.Consume(ctx, claims.ID, claims.Subject, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info("refresh rejected", zap.String("subject", claims.Subject))
		return nil, ErrRefreshRevoked
	}
	return s.issue(ctx, claims.Subject, now)
}

// Authenticate validates an access token and returns its subject.
func (s *Service) Authenticate(accessToken string) (string, error) {
	claims, err := s.tokens.Parse(accessToken, TypeAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Service) issue(ctx context.Context, subject string, now time.Time) (*Tokens, error) {
	refreshID := uuid.NewString()
	if err := s.store.Save(ctx, refreshID, subject, now.Add(s.tokens.RefreshTTL())); err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccess(subject, now)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(subject, refreshID, now)
	if err != nil {
		return nil, err
	}

	return &Tokens{
		TokenType:               "Bearer",
		AccessToken:             access,
		ExpiresInSeconds:        int64(s.tokens.AccessTTL() / time.Second),
		RefreshToken:            refresh,
		RefreshExpiresInSeconds: int64(s.tokens.RefreshTTL() / time.Second),
	}, nil
}

// IsAuthError reports whether err should be answered with 401.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrRefreshRevoked)
}
