package core

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpirationUnixSeconds(t *testing.T) {
	got, ok := ParseExpiration("1700000000")
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000000), got)
}

func TestParseExpirationUnixMilliseconds(t *testing.T) {
	got, ok := ParseExpiration("1700000000000")
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000000), got)
}

func TestParseExpirationThreshold(t *testing.T) {
	// just below the threshold: seconds, scaled
	got, ok := ParseExpiration("999999999999")
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(999999999999000), got)

	// at the threshold: milliseconds, passed through
	got, ok = ParseExpiration("1000000000000")
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1000000000000), got)
}

func TestParseExpirationISO(t *testing.T) {
	got, ok := ParseExpiration("2030-01-02T15:04:05Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC), got.UTC())
}

func TestParseExpirationGarbage(t *testing.T) {
	for _, s := range []string{"", "soon", "2030-13-99", "12.5h"} {
		_, ok := ParseExpiration(s)
		assert.False(t, ok, "expected %q to be unparseable", s)
	}
}

func TestValidAtSkewBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	boundary := strconv.FormatInt(now.Add(ExpirySkew).Unix(), 10)
	assert.False(t, ValidAt(boundary, now), "boundary must be invalid")

	past := strconv.FormatInt(now.Add(ExpirySkew-time.Second).Unix(), 10)
	assert.False(t, ValidAt(past, now))

	future := strconv.FormatInt(now.Add(ExpirySkew+time.Second).Unix(), 10)
	assert.True(t, ValidAt(future, now))
}

func TestValidAtUnparseableIsAlwaysInvalid(t *testing.T) {
	assert.False(t, ValidAt("never", time.Now()))
	assert.False(t, ValidAt("", time.Now()))
}

func TestTokenPairValidity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tokens := AuthTokens{
		Subject:                "0xabc",
		AccessTokenExpiration:  strconv.FormatInt(now.Add(10*time.Second).Unix(), 10),
		RefreshTokenExpiration: now.Add(7 * 24 * time.Hour).Format(time.RFC3339),
	}

	assert.False(t, tokens.AccessValidAt(now), "10s remaining is inside the skew window")
	assert.True(t, tokens.RefreshValidAt(now))
}

func TestTruncateAddress(t *testing.T) {
	assert.Equal(t, "0x12…cdef", TruncateAddress("0x1234567890abcdef1234567890abcdef12cdef"))
	assert.Equal(t, "short", TruncateAddress("short"))
}
