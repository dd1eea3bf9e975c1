// Package middleware содержит HTTP middleware бэк-офиса лотереи.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

type contextKey string

const actorKey contextKey = "actor"

// AuthHeader задаёт имя заголовка с подписанным токеном шлюза.
const AuthHeader = "X-Auth-Token"

// Actor представляет аутентифицированного инициатора запроса из токена шлюза.
type Actor struct {
	UserID  string
	StoreID string
}

// AuthMiddleware проверяет подписанный токен шлюза. Аутентификацию пользователей
// выполняет внешний шлюз: сервис доверяет паре пользователь-магазин из токена,
// проверяя только подпись.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт middleware с указанным секретным ключом.
// Пустой секрет заменяется случайным ключом процесса.
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

// Middleware проверяет токен запроса и кладёт инициатора в контекст.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := a.parseToken(r.Header.Get(AuthHeader))
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Token выпускает подписанный токен для инициатора. Используется клиентами
// и тестами; в проде токены выпускает шлюз тем же алгоритмом.
func (a *AuthMiddleware) Token(actor Actor) string {
	payload := actor.UserID + ":" + actor.StoreID
	return payload + "." + a.sign(payload)
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseToken(token string) (Actor, bool) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok {
		return Actor{}, false
	}
	if !hmac.Equal([]byte(signature), []byte(a.sign(payload))) {
		return Actor{}, false
	}

	userID, storeID, ok := strings.Cut(payload, ":")
	if !ok || userID == "" || storeID == "" {
		return Actor{}, false
	}

	return Actor{UserID: userID, StoreID: storeID}, true
}

// ActorFromContext извлекает инициатора запроса из контекста.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
