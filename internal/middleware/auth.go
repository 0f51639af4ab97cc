// Package middleware содержит HTTP middleware сервиса greenledger.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const subjectKey contextKey = "subject"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 365 * 24 * time.Hour
)

// Role определяет тип субъекта запроса.
type Role string

const (
	RoleUser    Role = "user"
	RoleCompany Role = "company"
	RoleAdmin   Role = "admin"
)

// Subject — аутентифицированный субъект запроса.
type Subject struct {
	Role Role
	ID   int64
}

// String возвращает субъект в виде role:id.
func (s Subject) String() string {
	return string(s.Role) + ":" + strconv.FormatInt(s.ID, 10)
}

// ParseSubject разбирает строку вида role:id.
func ParseSubject(v string) (Subject, bool) {
	role, idStr, ok := strings.Cut(v, ":")
	if !ok {
		return Subject{}, false
	}

	switch Role(role) {
	case RoleUser, RoleCompany, RoleAdmin:
	default:
		return Subject{}, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return Subject{}, false
	}
	return Subject{Role: Role(role), ID: id}, true
}

// AuthMiddleware выполняет проверку аутентификации по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie авторизации и добавляет субъект в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		subject, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает только субъектов с одной из указанных ролей.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := GetSubjectFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if subject.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// SetAuthCookie устанавливает cookie авторизации для субъекта.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, subject Subject) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.Sign(subject),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

// Sign возвращает подписанное значение cookie для субъекта.
func (a *AuthMiddleware) Sign(subject Subject) string {
	return a.sign(subject.String())
}

func (a *AuthMiddleware) sign(value string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(value))
	return value + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (Subject, bool) {
	idx := strings.LastIndex(cookieValue, ".")
	if idx <= 0 {
		return Subject{}, false
	}

	value, signature := cookieValue[:idx], cookieValue[idx+1:]

	expected := a.sign(value)
	if !hmac.Equal([]byte(signature), []byte(expected[len(value)+1:])) {
		return Subject{}, false
	}

	return ParseSubject(value)
}

// GetSubjectFromContext извлекает субъект из контекста запроса.
func GetSubjectFromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(subjectKey).(Subject)
	return s, ok
}

// WithSubject возвращает контекст с субъектом.
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}
