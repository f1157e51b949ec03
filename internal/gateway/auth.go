package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/manifold-ai/retromem/internal/config"
)

// authenticator gates the gateway's inbound HTTP surface. It is nil when
// cfg.Auth.Mode is "" or "none", in which case middleware is a no-op — the
// core assumes a trusted deployment (spec §1) unless an operator opts in.
type authenticator struct {
	mode     string
	apiKey   string
	verifier *oidc.IDTokenVerifier
}

// newAuthenticator builds the gateway's inbound auth gate from cfg. An OIDC
// provider lookup happens once at startup, not per-request: the returned
// verifier caches the provider's JWKS and re-fetches keys only as needed.
func newAuthenticator(ctx context.Context, cfg config.AuthConfig) (*authenticator, error) {
	switch cfg.Mode {
	case "", "none":
		return nil, nil
	case "api_key":
		if cfg.APIKey == "" {
			return nil, errors.New("gateway: auth mode api_key requires auth.api_key")
		}
		return &authenticator{mode: "api_key", apiKey: cfg.APIKey}, nil
	case "oidc":
		if cfg.OIDCIssuer == "" {
			return nil, errors.New("gateway: auth mode oidc requires auth.oidc_issuer")
		}
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, fmt.Errorf("gateway: discover oidc provider: %w", err)
		}
		verifier := provider.Verifier(&oidc.Config{ClientID: cfg.OIDCAudience, SkipClientIDCheck: cfg.OIDCAudience == ""})
		return &authenticator{mode: "oidc", verifier: verifier}, nil
	default:
		return nil, fmt.Errorf("gateway: unknown auth mode %q", cfg.Mode)
	}
}

// middleware wraps next with bearer-token enforcement. Called with a nil
// receiver (auth disabled) it returns next unwrapped.
func (a *authenticator) middleware(next http.HandlerFunc) http.HandlerFunc {
	if a == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		switch a.mode {
		case "api_key":
			if subtle.ConstantTimeCompare([]byte(token), []byte(a.apiKey)) != 1 {
				respondError(w, http.StatusUnauthorized, errors.New("invalid api key"))
				return
			}
		case "oidc":
			if _, err := a.verifier.Verify(r.Context(), token); err != nil {
				respondError(w, http.StatusUnauthorized, fmt.Errorf("invalid bearer token: %w", err))
				return
			}
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	return token, token != ""
}
