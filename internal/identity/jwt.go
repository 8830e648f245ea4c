package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoKeySource = errors.New("either a JWKS URL or a signing key is required")

// JWTConfig controls how session tokens are verified.
type JWTConfig struct {
	// Issuer is the expected iss claim; empty skips the check.
	Issuer string

	// JWKSURL points at the hosted provider's key set (RS256 tokens).
	JWKSURL string

	// SigningKey verifies HS256 tokens when no JWKS URL is configured.
	SigningKey []byte
	Leeway     time.Duration
}

// JWTProvider resolves identities from signed session tokens.
type JWTProvider struct {
	parser  *jwt.Parser
	keyfunc jwt.Keyfunc
}

// NewJWTProvider builds a provider. With a JWKS URL the key set is fetched
// and refreshed in the background for the lifetime of ctx.
func NewJWTProvider(ctx context.Context, cfg JWTConfig) (*JWTProvider, error) {
	if cfg.Leeway == 0 {
		cfg.Leeway = 30 * time.Second
	}

	var (
		kf      jwt.Keyfunc
		methods []string
	)
	switch {
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("jwks init failed: %w", err)
		}
		kf = jwks.Keyfunc
		methods = []string{"RS256"}
	case len(cfg.SigningKey) > 0:
		key := cfg.SigningKey
		kf = func(*jwt.Token) (any, error) { return key, nil }
		methods = []string{"HS256"}
	default:
		return nil, ErrNoKeySource
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &JWTProvider{parser: jwt.NewParser(opts...), keyfunc: kf}, nil
}

// CurrentUser verifies the token in ctx. Missing or invalid tokens resolve to
// an anonymous caller, including tokens naming a key the key set does not
// hold. An error is returned only when the token could not be checked at all.
func (p *JWTProvider) CurrentUser(ctx context.Context) (*Identity, error) {
	raw := TokenFromContext(ctx)
	if raw == "" {
		return nil, nil
	}

	token, err := p.parser.Parse(raw, p.keyfunc)
	if err != nil {
		if !tokenRejected(err) {
			return nil, fmt.Errorf("verifying session token: %w", err)
		}
		log.Printf("[identity] rejected session token: %v", err)
		return nil, nil
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return identityFromClaims(claims), nil
}

// tokenRejected reports whether a parse failure is caused by the token itself
// rather than by the verifier.
func tokenRejected(err error) bool {
	if !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, jwkset.ErrKeyNotFound) || errors.Is(err, keyfunc.ErrKeyfunc)
}

func identityFromClaims(claims jwt.MapClaims) *Identity {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}

	id := &Identity{UserID: sub}
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)

	if plan, ok := claims["plan"].(string); ok {
		id.Plan = plan
	} else if pla, ok := claims["pla"].(string); ok {
		// pla 形如 "u:pro"，前缀表示用户或组织
		id.Plan = stripScope(pla)
	}

	if features := stringList(claims["features"]); len(features) > 0 {
		id.Features = features
	} else {
		for _, f := range stringList(claims["fea"]) {
			id.Features = append(id.Features, stripScope(f))
		}
	}
	return id
}

// stringList accepts a JSON array of strings or a comma separated string.
func stringList(v any) []string {
	var out []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range val {
			if s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func stripScope(s string) string {
	if i := strings.Index(s, ":"); i >= 0 {
		return s[i+1:]
	}
	return s
}
