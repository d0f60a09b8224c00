package gateway

import (
	"context"

	jwtadapter "github.com/chris-alexander-pop/system-design-library/pkg/auth/adapters/jwt"
)

// Authenticator verifies a connecting client's bearer token. Gateway
// only depends on this narrow surface so the concrete token scheme can
// change (the jwt adapter today, mTLS or PASETO tomorrow) without
// touching connection handling.
type Authenticator interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// jwtAuthenticator adapts pkg/auth/adapters/jwt to Authenticator.
type jwtAuthenticator struct {
	adapter *jwtadapter.Adapter
}

// NewJWTAuthenticator builds an Authenticator backed by the HMAC JWT adapter.
func NewJWTAuthenticator(adapter *jwtadapter.Adapter) Authenticator {
	return &jwtAuthenticator{adapter: adapter}
}

func (a *jwtAuthenticator) Verify(ctx context.Context, token string) (string, error) {
	claims, err := a.adapter.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
