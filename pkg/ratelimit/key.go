package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// Key is the partition identifier a rate-limit count is scoped to.
// Authenticated callers are keyed by a hash of their credential, anonymous
// callers by source address.
type Key string

const (
	userKeyPrefix = "user:"
	ipKeyPrefix   = "ip:"

	// UnknownKey is used when no credential or address can be resolved.
	UnknownKey Key = "ip:unknown"

	credentialHashLen = 16
)

// ResolveKey derives a deterministic Key from a request's credential header
// and network origin. It never fails; with no resolvable input it degrades
// to UnknownKey.
func ResolveKey(authorization, forwardedFor, peerAddr string) Key {
	if strings.HasPrefix(authorization, "Bearer ") {
		// Hash the raw header rather than the decoded identity; token
		// verification is the upstream's job, not ours.
		sum := sha256.Sum256([]byte(authorization))
		return Key(userKeyPrefix + hex.EncodeToString(sum[:])[:credentialHashLen])
	}

	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if addr := strings.TrimSpace(first); addr != "" {
			return Key(ipKeyPrefix + addr)
		}
	}

	peerAddr = strings.TrimSpace(peerAddr)
	if host, _, err := net.SplitHostPort(peerAddr); err == nil && host != "" {
		return Key(ipKeyPrefix + host)
	}
	if peerAddr != "" {
		return Key(ipKeyPrefix + peerAddr)
	}
	return UnknownKey
}

// KeyFromRequest resolves the partition key for an HTTP request.
func KeyFromRequest(r *http.Request) Key {
	return ResolveKey(r.Header.Get("Authorization"), r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
}
