package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/mimanitas/settlement/pkg/models"
)

type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	callerIDKey     contextKey = "caller_id"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyKey       contextKey = "api_key"
)

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id assigned by RequestID, or "".
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// SetCallerID stores the authenticated user id.
func SetCallerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, callerIDKey, id)
}

func GetCallerID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(callerIDKey).(uuid.UUID)
	return id, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}

func getAPIKey(r *http.Request) *models.APIKey {
	key, _ := r.Context().Value(apiKeyKey).(*models.APIKey)
	return key
}

// rateLimitSubject identifies who a request counts against: the user for bearer tokens,
// the key prefix for operator keys.
func rateLimitSubject(r *http.Request) (string, bool) {
	if id, ok := GetCallerID(r); ok {
		return "user:" + id.String(), true
	}
	if prefix, ok := getKeyPrefix(r); ok {
		return "key:" + prefix, true
	}
	return "", false
}
