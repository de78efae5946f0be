package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignerSignAndVerify(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("events-20250610.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	path, parsedExpiry, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "events-20250610.csv", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignerRejectsExpiredToken(t *testing.T) {
	signer := NewSigner("secret", -time.Minute)
	// ttl <= 0 falls back to the default, so build a stale token by hand.
	signer.ttl = -time.Minute
	token, _, err := signer.Sign("events.csv")
	require.NoError(t, err)

	_, _, err = signer.Verify(token)
	require.ErrorContains(t, err, "expired")
}

func TestSignerRejectsTamperedToken(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Sign("events.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + "." + strings.Repeat("0", len(parts[2]))

	_, _, err = signer.Verify(forged)
	require.ErrorContains(t, err, "signature")

	_, _, err = NewSigner("other-secret", time.Hour).Verify(token)
	require.ErrorContains(t, err, "signature")
}
