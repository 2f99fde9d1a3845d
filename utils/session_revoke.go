package utils

import (
	"context"
	"sync"
	"time"
)

const revokedSessionPrefix = "session:revoked:"

var (
	revokedSessions   = map[string]time.Time{}
	revokedSessionsMu sync.Mutex
)

// RevokeSession marks a session id as logged out until the cookie would have expired anyway.
func RevokeSession(sid string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if sid == "" || ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, revokedSessionPrefix+sid, "1", ttl).Err(); err == nil {
			return
		}
		Sugar.Warn("redis revoke failed for session, keeping it in memory")
	}
	revokedSessionsMu.Lock()
	defer revokedSessionsMu.Unlock()
	now := time.Now()
	for id, exp := range revokedSessions {
		if now.After(exp) {
			delete(revokedSessions, id)
		}
	}
	revokedSessions[sid] = expiresAt
}

// IsSessionRevoked reports whether sid was logged out before its natural expiry.
func IsSessionRevoked(sid string) bool {
	if sid == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, revokedSessionPrefix+sid).Result()
		if err == nil && n > 0 {
			return true
		}
	}

	revokedSessionsMu.Lock()
	defer revokedSessionsMu.Unlock()
	exp, ok := revokedSessions[sid]
	if ok && time.Now().After(exp) {
		delete(revokedSessions, sid)
		return false
	}
	return ok
}
