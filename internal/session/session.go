// Package session implements the signed, timestamped token that links a
// browser session to a pending booking awaiting correction. The token
// carries a single value (the store identifier) and is rejected when the
// signature does not verify or the timestamp is past the configured max
// age.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("session: invalid token")
	ErrExpiredToken = errors.New("session: token expired")
)

// CookieName is the cookie under which the token travels.
const CookieName = "session"

const signingSalt = "pending-booking"

// Serializer signs and verifies pending-booking reference tokens.
type Serializer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSerializer creates a Serializer with the given application secret
// and token max age. The secret must be supplied from configuration.
func NewSerializer(secret string, maxAge time.Duration) *Serializer {
	return &Serializer{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Sign produces a token of the form value.timestamp.signature, each part
// base64url-encoded and the signature keyed by the application secret.
func (s *Serializer) Sign(value string) string {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	payload := encode(value) + "." + encode(ts)
	return payload + "." + encode(s.sign(payload))
}

// Verify checks signature and age and returns the embedded value.
func (s *Serializer) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	payload := parts[0] + "." + parts[1]
	sig, err := decode(parts[2])
	if err != nil {
		return "", ErrInvalidToken
	}
	want := s.sign(payload)
	if subtle.ConstantTimeCompare(sig, want) != 1 {
		return "", ErrInvalidToken
	}

	rawTS, err := decode(parts[1])
	if err != nil {
		return "", ErrInvalidToken
	}
	issued, err := strconv.ParseInt(string(rawTS), 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if s.maxAge > 0 && s.now().Sub(time.Unix(issued, 0)) > s.maxAge {
		return "", ErrExpiredToken
	}

	value, err := decode(parts[0])
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(value), nil
}

func (s *Serializer) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingSalt))
	mac.Write([]byte("."))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// SetCookie attaches an already-signed token to the response.
func (s *Serializer) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.maxAge / time.Second),
	})
}

// ClearCookie invalidates the session cookie on the client.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// TokenFromRequest extracts the raw token from the request cookie
// without verifying it. Verification stays with the caller.
func TokenFromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", fmt.Errorf("%w: missing cookie", ErrInvalidToken)
	}
	return c.Value, nil
}

func encode[T string | []byte](v T) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
