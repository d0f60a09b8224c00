package jwt

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	libjwt "github.com/golang-jwt/jwt/v5"
)

// Config configures the local JWT adapter.
type Config struct {
	Secret     string        `env:"JWT_SECRET" env-required:"true"`
	Expiration time.Duration `env:"JWT_EXPIRATION" env-default:"24h"`
	Issuer     string        `env:"JWT_ISSUER" env-default:"system-design-library"`
}

// Claims is the adapter's verified-token result. Roles merges both a
// singular "role" claim and a "roles" array claim, since tokens minted by
// older callers only ever set the former.
type Claims struct {
	Subject   string
	Issuer    string
	Roles     []string
	ExpiresAt int64
	IssuedAt  int64
}

// Adapter issues and verifies HMAC-SHA256 tokens.
type Adapter struct {
	cfg Config
}

// New creates an Adapter from cfg.
func New(cfg Config) *Adapter {
	if cfg.Issuer == "" {
		cfg.Issuer = "system-design-library"
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = 24 * time.Hour
	}
	return &Adapter{cfg: cfg}
}

// Generate mints a signed token for userID carrying roles.
func (a *Adapter) Generate(userID string, roles ...string) (string, error) {
	now := time.Now()
	claims := libjwt.MapClaims{
		"sub":   userID,
		"iss":   a.cfg.Issuer,
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(a.cfg.Expiration).Unix(),
	}
	tok := libjwt.NewWithClaims(libjwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(a.cfg.Secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// Verify parses and validates tokenString, returning its claims.
func (a *Adapter) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	tok, err := libjwt.Parse(tokenString, func(t *libjwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*libjwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthenticated("unexpected signing method", nil)
		}
		return []byte(a.cfg.Secret), nil
	}, libjwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return nil, errors.Unauthenticated("invalid or expired token", err)
	}

	mc, ok := tok.Claims.(libjwt.MapClaims)
	if !ok {
		return nil, errors.Unauthenticated("unrecognized token claims", nil)
	}

	claims := &Claims{}
	if sub, ok := mc["sub"].(string); ok {
		claims.Subject = sub
	}
	if iss, ok := mc["iss"].(string); ok {
		claims.Issuer = iss
	}
	if exp, ok := mc["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}
	if iat, ok := mc["iat"].(float64); ok {
		claims.IssuedAt = int64(iat)
	}
	claims.Roles = mergeRoles(mc)

	return claims, nil
}

func mergeRoles(mc libjwt.MapClaims) []string {
	var roles []string
	if r, ok := mc["role"].(string); ok && r != "" {
		roles = append(roles, r)
	}
	if arr, ok := mc["roles"].([]interface{}); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	return roles
}
