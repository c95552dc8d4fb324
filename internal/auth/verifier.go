package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gosuda/plank/internal/domain"
)

// CookieName is the cookie a browser client may carry its access token in.
const CookieName = "plank_token"

// Verifier turns an access token into an Identity.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify validates credential and returns the identity it names. Every
// failure wraps domain.ErrUnauthorized.
func (v *Verifier) Verify(_ context.Context, credential string) (*domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("auth.Verifier.Verify: missing credential: %w", domain.ErrUnauthorized)
	}

	claims, err := ValidateToken(v.secret, credential)
	if err != nil {
		return nil, fmt.Errorf("auth.Verifier.Verify: %w", err)
	}

	if claims.TokenType != tokenTypeAccess {
		return nil, fmt.Errorf("auth.Verifier.Verify: token type %q: %w", claims.TokenType, ErrInvalidToken)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil || userID == uuid.Nil {
		return nil, fmt.Errorf("auth.Verifier.Verify: user id: %w", ErrInvalidToken)
	}

	return &domain.Identity{UserID: userID, Username: claims.Username}, nil
}

// CredentialFromRequest extracts a token from, in order, the Authorization
// bearer header, the access_token query parameter and the session cookie.
// Browsers cannot set headers on a WebSocket handshake, hence the fallbacks.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return tok
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
