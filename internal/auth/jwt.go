package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	StateTTL = 10 * time.Minute

	purposeOAuthState = "slack_oauth_state"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// GenerateState signs the user id into the OAuth state parameter.
func (s *Signer) GenerateState(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"purpose": purposeOAuthState,
		"exp":     s.now().Add(StateTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyState returns the user id carried by a state produced by GenerateState.
func (s *Signer) VerifyState(state string) (string, error) {
	claims, err := s.parse(state)
	if err != nil {
		return "", err
	}

	if purpose, _ := claims["purpose"].(string); purpose != purposeOAuthState {
		return "", ErrInvalidToken
	}

	return userIDFromClaims(claims)
}

// VerifyJWT validates a session token issued by the host application.
func (s *Signer) VerifyJWT(tokenString string) (string, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return "", err
	}

	// an OAuth state is not a session
	if _, scoped := claims["purpose"]; scoped {
		return "", ErrInvalidToken
	}

	return userIDFromClaims(claims)
}

// GenerateJWT issues a session token. The host app issues sessions in production;
// the server binary only uses this for its -dev-token flag.
func (s *Signer) GenerateJWT(userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     s.now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Signer) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func userIDFromClaims(claims jwt.MapClaims) (string, error) {
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	}
	return "", ErrInvalidToken
}
