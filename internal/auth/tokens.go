// Package auth issues and checks the signed tokens used by the lobby: host
// tokens gate game creation, seat tokens bind a websocket to one seat of one
// game.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken wraps every validation failure.
var ErrInvalidToken = errors.New("invalid token")

// Role says what a token allows.
type Role string

const (
	RoleHost Role = "host"
	RoleSeat Role = "seat"
)

const issuerName = "power-grid"

// Claims carried by lobby tokens.
type Claims struct {
	Role   Role   `json:"role"`
	GameID string `json:"game_id,omitempty"`
	Seat   string `json:"seat,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens with one shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer returns an issuer. Tokens expire after ttl; zero means 24h.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}, nil
}

// NewIssuerFromEnv reads SEAT_TOKEN_SECRET. Without it a random secret is
// generated, so tokens do not survive a restart.
func NewIssuerFromEnv(ttl time.Duration) *Issuer {
	secret := os.Getenv("SEAT_TOKEN_SECRET")
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			log.Fatalf("generate token secret: %v", err)
		}
		secret = hex.EncodeToString(b)
		log.Printf("SEAT_TOKEN_SECRET not set, using a random secret for this process")
	}
	i, _ := NewIssuer(secret, ttl)
	return i
}

func (i *Issuer) sign(c Claims) (string, error) {
	now := time.Now()
	c.Issuer = issuerName
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
}

// IssueHost signs a token allowed to create games.
func (i *Issuer) IssueHost(subject string) (string, error) {
	return i.sign(Claims{Role: RoleHost, RegisteredClaims: jwt.RegisteredClaims{Subject: subject}})
}

// IssueSeat signs a token for one seat of one game.
func (i *Issuer) IssueSeat(gameID, seat, name string) (string, error) {
	return i.sign(Claims{
		Role:             RoleSeat,
		GameID:           gameID,
		Seat:             seat,
		Name:             name,
		RegisteredClaims: jwt.RegisteredClaims{Subject: seat},
	})
}

// Validate checks signature, expiry and issuer.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuerName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	switch claims.Role {
	case RoleHost:
	case RoleSeat:
		if claims.GameID == "" || claims.Seat == "" {
			return nil, fmt.Errorf("%w: seat token without game or seat", ErrInvalidToken)
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header required")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", fmt.Errorf("bearer token required")
	}
	return tokenString, nil
}

type contextKey struct{}

// AuthMiddleware admits requests carrying a valid host token.
func (i *Issuer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := BearerToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		claims, err := i.Validate(tokenString)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if claims.Role != RoleHost {
			http.Error(w, "host token required", http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), contextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the claims stored by AuthMiddleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok
}
