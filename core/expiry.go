package core

import (
	"strconv"
	"time"
)

// ExpirySkew is subtracted from every expiration check to absorb clock drift
// and RPC round-trip latency.
const ExpirySkew = 30 * time.Second

// millisecondThreshold separates unix-second from unix-millisecond encodings.
// 10^12 seconds is year 33658, so any numeric value at or above it is treated
// as milliseconds.
const millisecondThreshold = 1_000_000_000_000

// ParseExpiration interprets a stringified timestamp as an expiration instant.
// Numeric strings below 10^12 are unix seconds, at or above are unix
// milliseconds; anything else is attempted as ISO-8601. The second return is
// false when the value cannot be interpreted at all, which callers must treat
// as always-invalid, never as always-valid.
func ParseExpiration(s string) (time.Time, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < millisecondThreshold {
			n *= 1000
		}
		return time.UnixMilli(n), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ValidAt reports whether an expiration string is still valid at the given
// instant, with ExpirySkew applied. The boundary (expiry == now + skew) is
// invalid.
func ValidAt(expiration string, now time.Time) bool {
	t, ok := ParseExpiration(expiration)
	if !ok {
		return false
	}
	return t.After(now.Add(ExpirySkew))
}

// AccessValidAt and RefreshValidAt evaluate the respective token expirations
// of a pair with the uniform skew tolerance.
func (t AuthTokens) AccessValidAt(now time.Time) bool {
	return ValidAt(t.AccessTokenExpiration, now)
}

func (t AuthTokens) RefreshValidAt(now time.Time) bool {
	return ValidAt(t.RefreshTokenExpiration, now)
}

// TruncateAddress shortens a wallet address for display in error messages.
func TruncateAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:4] + "…" + addr[len(addr)-4:]
}
