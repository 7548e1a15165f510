package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/tcm-knowledge-backend/internal/platform/authz"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type JWTClaims struct {
	jwt.RegisteredClaims
}

// TokenVerifier authenticates bearer tokens signed with the shared HS256
// secret. The subject claim carries the staff user id.
type TokenVerifier interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	IssueToken(userID uuid.UUID, ttl time.Duration) (string, error)
}

type tokenVerifier struct {
	log       *logger.Logger
	secretKey []byte
}

func NewTokenVerifier(log *logger.Logger, jwtSecretKey string) (TokenVerifier, error) {
	if strings.TrimSpace(jwtSecretKey) == "" {
		return nil, fmt.Errorf("missing JWT_SECRET_KEY")
	}
	return &tokenVerifier{
		log:       log.With("service", "TokenVerifier"),
		secretKey: []byte(jwtSecretKey),
	}, nil
}

func (v *tokenVerifier) IssueToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("missing user id")
	}
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secretKey)
}

// SetContextFromToken returns ctx carrying the caller's RequestData. Every
// failure wraps ErrUnauthorized.
func (v *tokenVerifier) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return ctx, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return ctx, fmt.Errorf("%w: invalid user id in token", ErrUnauthorized)
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      userID,
	}), nil
}

// RequireAdmin checks the caller attached to ctx against roles.
func RequireAdmin(ctx context.Context, roles authz.RoleChecker) error {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return ErrUnauthorized
	}
	ok, err := roles.IsAdmin(ctx, rd.UserID)
	if err != nil {
		return fmt.Errorf("role check: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
