package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

type contextKey string

// UserIDKey carries the authenticated user id through request contexts.
const UserIDKey contextKey = "userID"

var redisClient *redis.Client

// InitAuthMiddleware wires the Redis client used for the logout token
// blacklist. A nil client disables blacklist checks.
func InitAuthMiddleware(client *redis.Client) {
	redisClient = client
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuthMiddleware attaches the user id when a valid token is present
// and passes the request through anonymously otherwise. Used on endpoints
// with a free anonymous tier.
func OptionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, err := userIDFromRequest(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), UserIDKey, userID))
		}
		next.ServeHTTP(w, r)
	})
}

// UserID extracts the authenticated user id from ctx, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

func userIDFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("Authorization header required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("Invalid authorization header format")
	}
	token := parts[1]

	if redisClient != nil {
		key := fmt.Sprintf("blacklist:%s", token)
		if exists, err := redisClient.Exists(r.Context(), key).Result(); err != nil {
			log.Printf("[AUTH] Blacklist check failed: %v", err)
		} else if exists > 0 {
			return "", fmt.Errorf("Token revoked")
		}
	}

	userID, err := validateToken(token)
	if err != nil {
		return "", fmt.Errorf("Invalid token")
	}
	return userID, nil
}

func validateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})

	if err != nil || !token.Valid {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}

	userID := claims["user_id"]
	return fmt.Sprintf("%v", userID), nil
}
