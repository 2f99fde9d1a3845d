package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Flash categories.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

// Session is the state carried in the signed session cookie.
type Session struct {
	ID        string
	UserID    uint
	Flashes   []Flash
	ExpiresAt time.Time
}

type sessionClaims struct {
	SID     string  `json:"sid"`
	UserID  uint    `json:"uid,omitempty"`
	Flashes []Flash `json:"fl,omitempty"`
	jwt.RegisteredClaims
}

// NewSession starts an anonymous session with a fresh id.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// AddFlash queues a notice for the next page.
func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns the pending notices and clears them.
func (s *Session) PopFlashes() []Flash {
	f := s.Flashes
	s.Flashes = nil
	return f
}

// EncodeSession signs the session as an HS256 token valid for ttl.
func EncodeSession(s *Session, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	s.ExpiresAt = now.Add(ttl)
	claims := sessionClaims{
		SID:     s.ID,
		UserID:  s.UserID,
		Flashes: s.Flashes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// DecodeSession validates a session token and returns its content.
func DecodeSession(tokenStr, secret string) (*Session, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.SID == "" {
		return nil, errors.New("invalid session claims")
	}
	s := &Session{ID: claims.SID, UserID: claims.UserID, Flashes: claims.Flashes}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
