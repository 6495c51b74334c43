// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie carrying the guest token.
const SessionCookieName = "ml_session"

// privateKey and publicKey sign and verify guest tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TOKEN_EXPIRE_TIME_SEC indicates how many seconds until JWT expiration (0 => never).
	TOKEN_EXPIRE_TIME_SEC int
)

// Guest is the identity minted for a browser session. There are no
// accounts; the display name and avatar chosen at the door are the whole
// profile, carried in the token itself.
type Guest struct {
	ID          string
	DisplayName string
	AvatarRef   string
}

// parseTokenExpireTime reads the TOKEN_EXPIRE_TIME env var and sets TOKEN_EXPIRE_TIME_SEC accordingly.
func parseTokenExpireTime() {
	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	if duration == "never" || duration == "0" || duration == "" {
		TOKEN_EXPIRE_TIME_SEC = 0
	} else {
		d, err := time.ParseDuration(duration)
		if err != nil {
			fmt.Printf("failed to parse token expire time: %v\n", err)
			os.Exit(1)
		}
		TOKEN_EXPIRE_TIME_SEC = int(d.Seconds())
	}
}

// Init generates a fresh ed25519 key pair at runtime and sets the token
// expiration. Tokens do not survive a restart, which is fine for guests.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseTokenExpireTime()
}

// InitFromPath reads ed25519 private/public keys from file and sets the token expiration.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	parseTokenExpireTime()
	return nil
}

// CreateGuestJWT signs a token with "sub" = guest ID plus the display name
// and avatar claims, exp per TOKEN_EXPIRE_TIME_SEC (absent when 0).
func CreateGuestJWT(g Guest) (string, error) {
	claims := jwt.MapClaims{
		"sub":    g.ID,
		"name":   g.DisplayName,
		"avatar": g.AvatarRef,
	}

	if TOKEN_EXPIRE_TIME_SEC > 0 {
		claims["exp"] = time.Now().Add(time.Duration(TOKEN_EXPIRE_TIME_SEC) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateGuestJWT verifies a token string and returns the guest
// identity carried in its claims.
func AuthenticateGuestJWT(tokenString string) (Guest, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})

	if err != nil {
		return Guest{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Guest{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Guest{}, fmt.Errorf("invalid jwt claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return Guest{}, fmt.Errorf("missing sub in jwt")
	}
	name, _ := claims["name"].(string)
	avatar, _ := claims["avatar"].(string)

	return Guest{ID: sub, DisplayName: name, AvatarRef: avatar}, nil
}
