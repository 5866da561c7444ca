// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "session_token"

// privateKey and publicKey are used for signing and verifying session tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// sessionExpireSec indicates how many seconds until token expiration
	// (0 => never).
	sessionExpireSec int
)

// parseSessionExpire reads SESSION_TOKEN_EXPIRE and sets sessionExpireSec.
// Sessions default to 2 hours, long enough for an evening of games.
func parseSessionExpire() {
	duration := os.Getenv("SESSION_TOKEN_EXPIRE")
	switch duration {
	case "":
		sessionExpireSec = int((2 * time.Hour).Seconds())
	case "never", "0":
		sessionExpireSec = 0
	default:
		d, err := time.ParseDuration(duration)
		if err != nil {
			fmt.Printf("failed to parse session token expire time: %v\n", err)
			os.Exit(1)
		}
		sessionExpireSec = int(d.Seconds())
	}
}

// Init generates a fresh ed25519 key pair at runtime and sets the token
// expiration. Sessions are ephemeral; restarting the server invalidates all
// outstanding tokens, which simply mints players fresh identities.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseSessionExpire()
}

// CreateSessionToken creates a signed JWT with "sub" = sessionID.
func CreateSessionToken(sessionID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": sessionID.String(),
	}
	if sessionExpireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(sessionExpireSec) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateSessionToken verifies a token string and returns the session id
// it carries.
func AuthenticateSessionToken(tokenString string) (uuid.UUID, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing sub in jwt")
	}
	return uuid.Parse(sub)
}

// EnsureSession returns the request's session id, minting and setting a fresh
// one when the cookie is absent or invalid. Must run before any handshake or
// write that commits response headers.
func EnsureSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if id, err := AuthenticateSessionToken(c.Value); err == nil {
			return id, nil
		}
	}

	id := uuid.New()
	token, err := CreateSessionToken(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create session token: %w", err)
	}

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if sessionExpireSec > 0 {
		cookie.MaxAge = sessionExpireSec
	}
	http.SetCookie(w, cookie)
	return id, nil
}
