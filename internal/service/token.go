package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/elearning-backend/internal/apperr"
	"github.com/iliyamo/elearning-backend/internal/cache"
	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/utils"
)

const (
	// ActivationTTL bounds how long a registration can wait for its code.
	ActivationTTL = 50 * time.Minute

	// Lifetimes used by RefreshSession regardless of configuration.
	refreshedAccessTTL  = 5 * time.Minute
	refreshedRefreshTTL = 3 * 24 * time.Hour
)

// TokenConfig carries the three signing secrets and the session lifetimes.
type TokenConfig struct {
	ActivationSecret string
	AccessSecret     string
	RefreshSecret    string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
}

// Session is the result of a login or refresh: the token pair and the user
// snapshot stored in the cache.
type Session struct {
	AccessToken  utils.SignedToken
	RefreshToken utils.SignedToken
	User         model.User
}

// ActivationClaims is the body of an activation token.
type ActivationClaims struct {
	User           model.PendingUser `json:"user"`
	ActivationCode string            `json:"activationCode"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies activation and session tokens and keeps
// the session snapshots in the cache under "session:<userId>".
type TokenService struct {
	cfg   TokenConfig
	cache cache.Cache
}

func NewTokenService(cfg TokenConfig, c cache.Cache) *TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = refreshedAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = refreshedRefreshTTL
	}
	return &TokenService{cfg: cfg, cache: c}
}

func sessionKey(userID uint64) string { return "session:" + strconv.FormatUint(userID, 10) }

// IssueActivationToken draws a 4-digit code and signs it together with the
// pending registration.
func (s *TokenService) IssueActivationToken(pending model.PendingUser) (token, code string, err error) {
	code, err = utils.NewActivationCode()
	if err != nil {
		return "", "", apperr.Internal(err)
	}
	now := time.Now().UTC()
	claims := ActivationClaims{
		User:           pending,
		ActivationCode: code,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ActivationTTL)),
		},
	}
	token, err = utils.Sign(s.cfg.ActivationSecret, claims)
	if err != nil {
		return "", "", apperr.Internal(err)
	}
	return token, code, nil
}

// VerifyActivation checks the token and that code matches exactly.
func (s *TokenService) VerifyActivation(token, code string) (model.PendingUser, error) {
	var claims ActivationClaims
	if err := utils.Parse(s.cfg.ActivationSecret, token, &claims); err != nil {
		return model.PendingUser{}, apperr.InvalidCredential("Invalid activation code").Wrap(err)
	}
	if claims.ActivationCode == "" || claims.ActivationCode != code {
		return model.PendingUser{}, apperr.InvalidCredential("Invalid activation code")
	}
	return claims.User, nil
}

// IssueSession signs an access/refresh pair for u and stores its snapshot.
func (s *TokenService) IssueSession(ctx context.Context, u model.User) (Session, error) {
	return s.issue(ctx, u, s.cfg.AccessTTL, s.cfg.RefreshTTL)
}

func (s *TokenService) issue(ctx context.Context, u model.User, accessTTL, refreshTTL time.Duration) (Session, error) {
	access, err := utils.NewSessionToken(s.cfg.AccessSecret, u.ID, accessTTL)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	refresh, err := utils.NewSessionToken(s.cfg.RefreshSecret, u.ID, refreshTTL)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	if err := s.StoreSession(ctx, u); err != nil {
		return Session{}, err
	}
	return Session{AccessToken: access, RefreshToken: refresh, User: u}, nil
}

// RefreshSession exchanges a valid refresh token for a new pair.  The
// snapshot content is kept as is; only its lifetime is extended.
func (s *TokenService) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := utils.ParseSessionToken(s.cfg.RefreshSecret, refreshToken)
	if err != nil {
		return Session{}, apperr.Unauthorized("Could not refresh token").Wrap(err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return Session{}, apperr.Unauthorized("Could not refresh token").Wrap(err)
	}
	u, err := s.LoadSession(ctx, userID)
	if err != nil {
		return Session{}, apperr.Unauthorized("Please login to access this resource").Wrap(err)
	}

	access, err := utils.NewSessionToken(s.cfg.AccessSecret, u.ID, refreshedAccessTTL)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	refresh, err := utils.NewSessionToken(s.cfg.RefreshSecret, u.ID, refreshedRefreshTTL)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	if err := s.cache.Expire(ctx, sessionKey(u.ID), refreshedRefreshTTL); err != nil && !errors.Is(err, cache.ErrMiss) {
		return Session{}, apperr.Internal(err)
	}
	return Session{AccessToken: access, RefreshToken: refresh, User: u}, nil
}

// Authenticate resolves an access token to the cached user snapshot.
func (s *TokenService) Authenticate(ctx context.Context, accessToken string) (model.User, error) {
	claims, err := utils.ParseSessionToken(s.cfg.AccessSecret, accessToken)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return model.User{}, apperr.Unauthorized("Json web token is expired, try again").Wrap(err)
		}
		return model.User{}, apperr.Unauthorized("Access token is not valid").Wrap(err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return model.User{}, apperr.Unauthorized("Access token is not valid").Wrap(err)
	}
	return s.LoadSession(ctx, userID)
}

// RevokeSession deletes the snapshot.  Deleting a missing session is fine.
func (s *TokenService) RevokeSession(ctx context.Context, userID uint64) error {
	if err := s.cache.Del(ctx, sessionKey(userID)); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// LoadSession returns the snapshot for userID or Unauthorized when none
// exists.
func (s *TokenService) LoadSession(ctx context.Context, userID uint64) (model.User, error) {
	raw, err := s.cache.Get(ctx, sessionKey(userID))
	if errors.Is(err, cache.ErrMiss) {
		return model.User{}, apperr.Unauthorized("Please login to access this resource")
	}
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return model.User{}, apperr.Internal(err)
	}
	return u, nil
}

// StoreSession writes u as the session snapshot with the refresh lifetime.
func (s *TokenService) StoreSession(ctx context.Context, u model.User) error {
	u.PasswordHash = ""
	raw, err := json.Marshal(u)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.cache.Set(ctx, sessionKey(u.ID), raw, s.cfg.RefreshTTL); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
