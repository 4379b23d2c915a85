package devstub

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	audienceChallenge = "session:challenge"
	audienceSession   = "session:access"

	challengeTTL = 5 * time.Minute
	sessionTTL   = 5 * 24 * time.Hour
)

// challengeClaims combines standard claims with the signed nonce.
type challengeClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

// sessionClaims carries the authenticated wallet address next to the
// standard claims; the subject is the account email.
type sessionClaims struct {
	jwt.RegisteredClaims
	Address string `json:"addr,omitempty"`
}

func newNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Server) issueChallengeToken(email, nonce string) (string, error) {
	now := time.Now()
	claims := challengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{audienceChallenge},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(challengeTTL)),
		},
		Nonce: nonce,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}
	return signed, nil
}

func (s *Server) parseChallengeToken(tokenStr string) (*challengeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &challengeClaims{}, s.keyFunc, jwt.WithAudience(audienceChallenge))
	if err != nil {
		return nil, fmt.Errorf("failed to parse challenge token: %w", err)
	}
	claims, ok := token.Claims.(*challengeClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid challenge token")
	}
	return claims, nil
}

func (s *Server) issueSessionToken(email, address string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{audienceSession},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
		Address: address,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

func (s *Server) parseSessionToken(tokenStr string) (*sessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &sessionClaims{}, s.keyFunc, jwt.WithAudience(audienceSession))
	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	return claims, nil
}

func (s *Server) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return &s.key.PublicKey, nil
}
