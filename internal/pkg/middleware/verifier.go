package middleware

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/usercontext"
	"github.com/coreos/go-oidc/v3/oidc"
)

const defaultAudience = "authenticated"

var ErrInvalidToken = errors.New("invalid bearer token")

// TokenVerifier turns a raw bearer token into a verified caller.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (usercontext.UserContext, error)
}

// OIDCVerifier validates JWTs issued by the identity provider against its
// published key set.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

type tokenClaims struct {
	Email string `json:"email"`
}

func verifierConfig(audience string) *oidc.Config {
	return &oidc.Config{
		ClientID:             audience,
		SkipClientIDCheck:    audience == "",
		SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
	}
}

// NewOIDCVerifier fetches signing keys from jwksURL on demand.
func NewOIDCVerifier(ctx context.Context, jwksURL, issuer, audience string) *OIDCVerifier {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, verifierConfig(audience))}
}

// NewStaticOIDCVerifier verifies against fixed public keys.
func NewStaticOIDCVerifier(issuer, audience string, keys ...crypto.PublicKey) *OIDCVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, verifierConfig(audience))}
}

// NewOIDCVerifierFromEnv reads AUTH_JWKS_URL, AUTH_ISSUER and AUTH_AUDIENCE.
func NewOIDCVerifierFromEnv(ctx context.Context) (*OIDCVerifier, error) {
	jwksURL := strings.TrimSpace(env.GetEnv("AUTH_JWKS_URL", ""))
	issuer := strings.TrimSpace(env.GetEnv("AUTH_ISSUER", ""))
	if jwksURL == "" || issuer == "" {
		return nil, fmt.Errorf("AUTH_JWKS_URL and AUTH_ISSUER are required")
	}
	audience := strings.TrimSpace(env.GetEnv("AUTH_AUDIENCE", defaultAudience))
	return NewOIDCVerifier(ctx, jwksURL, issuer, audience), nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (usercontext.UserContext, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return usercontext.UserContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var claims tokenClaims
	if err := token.Claims(&claims); err != nil {
		return usercontext.UserContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token.Subject == "" {
		return usercontext.UserContext{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return usercontext.UserContext{UserID: token.Subject, Email: strings.TrimSpace(claims.Email)}, nil
}
