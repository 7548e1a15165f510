package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/tcm-knowledge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier(logger.NewNop(), "  ")
	require.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	v, err := NewTokenVerifier(logger.NewNop(), "s3cret")
	require.NoError(t, err)

	userID := uuid.New()
	tok, err := v.IssueToken(userID, time.Hour)
	require.NoError(t, err)

	ctx, err := v.SetContextFromToken(context.Background(), tok)
	require.NoError(t, err)
	rd := ctxutil.GetRequestData(ctx)
	require.NotNil(t, rd)
	require.Equal(t, userID, rd.UserID)
	require.Equal(t, tok, rd.TokenString)
}

func TestTokenRejections(t *testing.T) {
	v, _ := NewTokenVerifier(logger.NewNop(), "s3cret")
	other, _ := NewTokenVerifier(logger.NewNop(), "different")

	foreign, err := other.IssueToken(uuid.New(), time.Hour)
	require.NoError(t, err)
	expired, err := v.IssueToken(uuid.New(), -time.Minute)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	cases := map[string]string{
		"empty":      "",
		"garbage":    "not-a-jwt",
		"wrong key":  foreign,
		"expired":    expired,
		"no subject": noSubject,
		"hs512":      hs512,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, err := v.SetContextFromToken(context.Background(), tok)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrUnauthorized), "err=%v", err)
			require.Nil(t, ctxutil.GetRequestData(ctx))
		})
	}

	_, err = v.IssueToken(uuid.Nil, time.Hour)
	require.Error(t, err)
}

func TestRequireAdmin(t *testing.T) {
	admin, staff := uuid.New(), uuid.New()
	roles := fakeRoles{admin: true}
	as := func(id uuid.UUID) context.Context {
		return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: id})
	}

	require.NoError(t, RequireAdmin(as(admin), roles))
	require.ErrorIs(t, RequireAdmin(as(staff), roles), ErrForbidden)
	require.ErrorIs(t, RequireAdmin(context.Background(), roles), ErrUnauthorized)
}
