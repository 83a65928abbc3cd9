package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const UserIDKey contextKey = "user_id"

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenType    = errors.New("unexpected token type")
)

// TokenClaims are the claims carried by both access and refresh tokens.
type TokenClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// UserID parses the subject claim.
func (c *TokenClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

type JWTAuth struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	now func() time.Time
}

func NewJWTAuth(secret string, accessTTL, refreshTTL time.Duration) *JWTAuth {
	return &JWTAuth{
		Secret:     []byte(secret),
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (j *JWTAuth) clock() time.Time {
	if j.now == nil {
		return time.Now()
	}
	return j.now()
}

// GenerateAccessToken creates an access token for userID
func (j *JWTAuth) GenerateAccessToken(userID uuid.UUID) (string, error) {
	return j.generate(userID, TokenTypeAccess, j.AccessTTL)
}

// GenerateRefreshToken creates a refresh token for userID
func (j *JWTAuth) GenerateRefreshToken(userID uuid.UUID) (string, error) {
	return j.generate(userID, TokenTypeRefresh, j.RefreshTTL)
}

func (j *JWTAuth) generate(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	now := j.clock()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// ParseToken verifies signature, expiry and subject, and that the token is
// of expectedType.
func (j *JWTAuth) ParseToken(tokenStr, expectedType string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != expectedType {
		return nil, ErrTokenType
	}
	return claims, nil
}

// Middleware validates the bearer access token and attaches user_id to context
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		claims, err := j.ParseToken(parts[1], TokenTypeAccess)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			case errors.Is(err, ErrTokenType):
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token type", r)
			default:
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		userID, _ := claims.UserID()
		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID extracts user_id from request context
func GetUserID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(UserIDKey).(uuid.UUID)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
