package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/plank/internal/auth"
	"github.com/gosuda/plank/internal/domain"
)

// IdentityVerifier resolves a credential to a user. *auth.Verifier satisfies it.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*domain.Identity, error)
}

// Auth rejects requests without a valid access token and stores the caller's
// identity in the request context.
func Auth(verifier IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.Verify(r.Context(), auth.CredentialFromRequest(r))
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("auth: rejected request")
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, identity.UserID)
			ctx = context.WithValue(ctx, ContextKeyUsername, identity.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
