package server

import (
	"context"
	"net/http"

	"github.com/tjfontaine/chat-template-codecs/internal/auth"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

type apiKeyContextKey struct{}

// AuthMiddleware validates bearer API keys and injects the matched key into
// the request context. A nil authenticator disables the check.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authenticator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, err := auth.ExtractAPIKey(r)
			if err == nil {
				var key auth.Key
				key, err = authenticator.ValidateAPIKey(apiKey)
				if err == nil {
					AddLogField(r.Context(), "api_key", key.Description)
					ctx := context.WithValue(r.Context(), apiKeyContextKey{}, key)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			AddError(r.Context(), err)
			writeError(w, domain.NewCodecError(domain.ErrorTypeAuthentication, err.Error(), nil))
		})
	}
}

// GetAPIKey returns the key that authenticated the request.
func GetAPIKey(ctx context.Context) (auth.Key, bool) {
	k, ok := ctx.Value(apiKeyContextKey{}).(auth.Key)
	return k, ok
}
