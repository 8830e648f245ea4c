package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key-0123456789abcdef")

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func newTestProvider(t *testing.T, issuer string) *JWTProvider {
	t.Helper()
	p, err := NewJWTProvider(context.Background(), JWTConfig{Issuer: issuer, SigningKey: testKey})
	require.NoError(t, err)
	return p
}

func TestNewJWTProviderRequiresKeySource(t *testing.T) {
	_, err := NewJWTProvider(context.Background(), JWTConfig{})
	assert.ErrorIs(t, err, ErrNoKeySource)
}

func TestCurrentUserNoToken(t *testing.T) {
	id, err := newTestProvider(t, "").CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestCurrentUserValidToken(t *testing.T) {
	p := newTestProvider(t, "https://auth.example.com")
	token := signToken(t, testKey, jwt.MapClaims{
		"sub":      "user_42",
		"iss":      "https://auth.example.com",
		"email":    "ada@example.com",
		"plan":     "pro",
		"features": []string{"10_companion_limit"},
	})

	id, err := p.CurrentUser(WithToken(context.Background(), token))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "user_42", id.UserID)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.True(t, id.HasPlan("pro"))
	assert.True(t, id.HasFeature("10_companion_limit"))
}

func TestCurrentUserScopedClaims(t *testing.T) {
	token := signToken(t, testKey, jwt.MapClaims{
		"sub": "user_7",
		"pla": "u:free_user",
		"fea": "u:3_companion_limit,u:session_history",
	})

	id, err := newTestProvider(t, "").CurrentUser(WithToken(context.Background(), token))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "free_user", id.Plan)
	assert.Equal(t, []string{"3_companion_limit", "session_history"}, id.Features)
}

func TestCurrentUserRejectsBadTokens(t *testing.T) {
	p := newTestProvider(t, "https://auth.example.com")

	cases := map[string]string{
		"wrong key":    signToken(t, []byte("another-key-entirely-0123456789"), jwt.MapClaims{"sub": "u", "iss": "https://auth.example.com"}),
		"expired":      signToken(t, testKey, jwt.MapClaims{"sub": "u", "iss": "https://auth.example.com", "exp": time.Now().Add(-time.Hour).Unix()}),
		"wrong issuer": signToken(t, testKey, jwt.MapClaims{"sub": "u", "iss": "https://evil.example.com"}),
		"missing sub":  signToken(t, testKey, jwt.MapClaims{"iss": "https://auth.example.com"}),
		"not a jwt":    "definitely-not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			id, err := p.CurrentUser(WithToken(context.Background(), token))
			require.NoError(t, err)
			assert.Nil(t, id)
		})
	}
}

// newJWKSProvider serves a key set holding one RSA key under kid "real".
func newJWKSProvider(t *testing.T) (*JWTProvider, *rsa.PrivateKey) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwk, err := jwkset.NewJWKFromKey(&priv.PublicKey, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{KID: "real", ALG: jwkset.AlgRS256, USE: jwkset.UseSig},
	})
	require.NoError(t, err)
	keys := jwkset.NewMemoryStorage()
	require.NoError(t, keys.KeyWrite(ctx, jwk))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := keys.JSONPublic(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}))
	t.Cleanup(srv.Close)

	p, err := NewJWTProvider(ctx, JWTConfig{JWKSURL: srv.URL})
	require.NoError(t, err)
	return p, priv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestCurrentUserJWKS(t *testing.T) {
	p, priv := newJWKSProvider(t)

	token := signRS256(t, priv, "real", jwt.MapClaims{"sub": "user_9", "plan": "pro"})
	id, err := p.CurrentUser(WithToken(context.Background(), token))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "user_9", id.UserID)
	assert.True(t, id.HasPlan("pro"))
}

func TestCurrentUserJWKSUnknownKeyIsAnonymous(t *testing.T) {
	p, _ := newJWKSProvider(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	token := signRS256(t, other, "forged", jwt.MapClaims{"sub": "attacker"})

	id, err := p.CurrentUser(WithToken(context.Background(), token))
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestTokenRejected(t *testing.T) {
	assert.True(t, tokenRejected(jwt.ErrTokenExpired))
	assert.True(t, tokenRejected(errors.Join(jwt.ErrTokenUnverifiable, jwkset.ErrKeyNotFound)))
	assert.False(t, tokenRejected(errors.Join(jwt.ErrTokenUnverifiable, context.DeadlineExceeded)))
	assert.False(t, tokenRejected(errors.Join(jwt.ErrTokenUnverifiable, errors.New("storage offline"))))
}

func TestMiddlewareExtractsToken(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TokenFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "abc.def.ghi", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie-token"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "cookie-token", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, seen)
}

func TestHasPlanNilIdentity(t *testing.T) {
	var id *Identity
	assert.False(t, id.HasPlan("pro"))
	assert.False(t, id.HasFeature("x"))
}
