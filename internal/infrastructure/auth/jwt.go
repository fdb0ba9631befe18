package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carry the identity the relay attaches to every relayed event.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Verifier interface {
	Verify(r *http.Request) (*domain.Identity, error)
}

type JWTVerifier struct {
	secretKey []byte
	issuer    string
}

func NewJWTVerifier(secretKey, issuer string) *JWTVerifier {
	return &JWTVerifier{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

// Verify wraps every failure in domain.ErrAuthRejected.
func (v *JWTVerifier) Verify(r *http.Request) (*domain.Identity, error) {
	tokenString := ExtractTokenFromRequest(r)
	if tokenString == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthRejected, ErrMissingToken)
	}

	claims, err := v.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthRejected, err)
	}

	return &domain.Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
	}, nil
}

func (v *JWTVerifier) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || strings.TrimSpace(claims.Username) == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IssueToken signs a token for userID. Used by tests and local tooling; the
// relay itself never issues identities.
func (v *JWTVerifier) IssueToken(userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    v.issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}

// InsecureVerifier trusts the userId and username query parameters.
type InsecureVerifier struct{}

func (InsecureVerifier) Verify(r *http.Request) (*domain.Identity, error) {
	q := r.URL.Query()
	userID, username := q.Get("userId"), q.Get("username")
	if userID == "" || username == "" {
		return nil, fmt.Errorf("%w: userId and username are required", domain.ErrAuthRejected)
	}

	return &domain.Identity{UserID: userID, Username: username}, nil
}

func ExtractTokenFromRequest(r *http.Request) string {
	// Try query parameter first
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
