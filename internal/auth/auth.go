// Package auth выдаёт и проверяет токены сессии зрителя.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/UkralStul/promptkaart/internal/domain"
)

const (
	issuer   = "promptkaart"
	audience = "promptkaart-client"
)

// DefaultTTL - время жизни токена по умолчанию.
const DefaultTTL = 7 * 24 * time.Hour

// Claims - содержимое токена.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Tokens подписывает и проверяет HS256-токены.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens - конструктор. ttl <= 0 означает DefaultTTL.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("JWT secret not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue выдаёт токен для пользователя.
func (t *Tokens) Issue(userID, name string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", domain.NewValidationError("user id is required")
	}
	now := t.now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()[:8]),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse проверяет подпись, срок и аудиторию токена.
func (t *Tokens) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return nil, &domain.Error{Kind: domain.KindNotAuthenticated, Message: "invalid or expired token", Err: err}
	}
	if claims.Subject == "" {
		return nil, &domain.Error{Kind: domain.KindNotAuthenticated, Message: "token has no subject"}
	}
	return claims, nil
}

type contextKey struct{}

// WithViewer кладёт id зрителя в контекст.
func WithViewer(ctx context.Context, viewerID string) context.Context {
	return context.WithValue(ctx, contextKey{}, viewerID)
}

// ViewerFrom возвращает id зрителя или пустую строку для анонима.
func ViewerFrom(ctx context.Context) string {
	v, _ := ctx.Value(contextKey{}).(string)
	return v
}

// TokenFromRequest достаёт токен из заголовка Authorization или параметра token
// (браузерный websocket не умеет слать заголовки).
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.Split(h, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", &domain.Error{Kind: domain.KindNotAuthenticated, Message: "invalid authorization header format"}
		}
		return parts[1], nil
	}
	return r.URL.Query().Get("token"), nil
}

// Middleware распознаёт зрителя. Запрос без токена проходит анонимно,
// запрос с неверным токеном отклоняется через onError.
func (t *Tokens) Middleware(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := TokenFromRequest(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := t.Parse(raw)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), claims.Subject)))
		})
	}
}
