package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/middleware"
	"github.com/silano08/tokingtoking/internal/models"
)

type tossAuthenticator interface {
	ExchangeAuthorizationCode(ctx context.Context, code, referrer string) (string, error)
	GetUserKey(ctx context.Context, accessToken string) (string, error)
}

type accountStore interface {
	FindOrCreateByTossUserKey(ctx context.Context, key string) (*models.User, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Revoke reports false when jti was already revoked, so only one caller can
// consume a refresh token.
type tokenRevoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthService struct {
	users   accountStore
	toss    tossAuthenticator
	jwt     *middleware.JWTAuth
	revoked tokenRevoker
	log     *zap.Logger
}

func NewAuthService(users accountStore, toss tossAuthenticator, jwt *middleware.JWTAuth, revoked tokenRevoker, log *zap.Logger) *AuthService {
	return &AuthService{
		users:   users,
		toss:    toss,
		jwt:     jwt,
		revoked: revoked,
		log:     log,
	}
}

// Login exchanges a Toss authorization code, signs the user up on first
// visit and issues a token pair.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.AuthorizationCode) == "" {
		fieldErrors["authorization_code"] = "Authorization code is required"
	}
	if strings.TrimSpace(req.Referrer) == "" {
		fieldErrors["referrer"] = "Referrer is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	tossToken, err := s.toss.ExchangeAuthorizationCode(ctx, req.AuthorizationCode, req.Referrer)
	if err != nil {
		return nil, err
	}
	userKey, err := s.toss.GetUserKey(ctx, tossToken)
	if err != nil {
		return nil, err
	}

	user, created, err := s.users.FindOrCreateByTossUserKey(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	if created {
		s.log.Info("New user signed up", zap.String("user_id", user.ID.String()))
	}

	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         user.Info(),
		IsNewUser:    created,
	}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	invalid := &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}

	claims, err := s.jwt.ParseToken(refreshToken, middleware.TokenTypeRefresh)
	if err != nil {
		return nil, invalid
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check refresh revocation: %w", err)
	}
	if revoked {
		return nil, invalid
	}

	userID, _ := claims.UserID()
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invalid
		}
		return nil, err
	}

	first, err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !first {
		return nil, invalid
	}

	return s.issueTokens(userID)
}

// Logout revokes the given refresh token if it belongs to userID. Missing or
// already invalid tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.jwt.ParseToken(refreshToken, middleware.TokenTypeRefresh)
	if err != nil {
		return nil
	}
	if owner, _ := claims.UserID(); owner != userID {
		return nil
	}
	_, err = s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	return err
}

func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.UserInfo, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	info := user.Info()
	return &info, nil
}

func (s *AuthService) issueTokens(userID uuid.UUID) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.jwt.GenerateRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
