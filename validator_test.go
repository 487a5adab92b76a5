package lti1p3

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) (*AdapterConfig, *SessionCache, *LTI) {
	t.Helper()

	cfg, err := NewAdapterConfig(AdapterConfigArgs{
		Tool: &ToolConfig{
			ClientName:    "test tool",
			DefaultDomain: "https://tool.example",
			Env:           EnvLocal,
		},
		Platform: &PlatformConfig{
			AuthRequestURI: "https://lms.example/api/lti/authorize_redirect",
			TargetLinkURI:  "https://tool.example/launch",
			JWKURI:         UseDevJWK,
			Issuer:         "https://lms.example",
			Domain:         "https://lms.example",
		},
	})
	require.NoError(t, err)

	cache := NewSessionCache()

	lti, err := NewLTI(LTIArgs{Config: cfg, Cache: cache})
	require.NoError(t, err)

	return cfg, cache, lti
}

func signToken(t *testing.T, privPEM []byte, kid string, claims jwt.MapClaims) string {
	t.Helper()

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(privateKey)
	require.NoError(t, err)

	return signed
}

func seedNonce(t *testing.T, cache *SessionCache, nonce, state, clientID string) {
	t.Helper()

	ok, err := cache.CreateCache(&Nonce{
		Nonce:         nonce,
		State:         state,
		ClientID:      clientID,
		StorageTarget: StorageTargetCookie,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestValidateTokenSuccess(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, cache, lti := newTestAdapter(t)

	seedNonce(t, cache, "abc123", "xyz", "lms1")

	idToken, err := lti.CreateDevToken("lms1", "abc123", nil)
	require.NoError(err)

	form := url.Values{"id_token": {idToken}, "state": {"xyz"}}

	claims, storageTarget, err := lti.validator.ValidateToken(context.Background(), form)
	require.NoError(err)

	assert.Equal("lms1", claims["aud"])
	assert.Equal("abc123", claims["nonce"])
	assert.Equal(StorageTargetCookie, storageTarget)

	// The nonce is gone afterward.
	_, found := cache.ConsumeNonce("abc123")
	assert.False(found)
}

func TestValidateTokenReplayRejected(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, cache, lti := newTestAdapter(t)

	seedNonce(t, cache, "once", "st", "lms1")

	idToken, err := lti.CreateDevToken("lms1", "once", nil)
	require.NoError(err)

	form := url.Values{"id_token": {idToken}, "state": {"st"}}

	_, _, err = lti.validator.ValidateToken(context.Background(), form)
	require.NoError(err)

	_, _, err = lti.validator.ValidateToken(context.Background(), form)
	var verr *TokenValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(401, verr.Status())
}

func TestValidateTokenStateMismatch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, cache, lti := newTestAdapter(t)

	seedNonce(t, cache, "n1", "expected-state", "lms1")

	// Signature is valid; only the state is wrong.
	idToken, err := lti.CreateDevToken("lms1", "n1", nil)
	require.NoError(err)

	form := url.Values{"id_token": {idToken}, "state": {"attacker-state"}}

	_, _, err = lti.validator.ValidateToken(context.Background(), form)
	var verr *TokenValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(401, verr.Status())

	// The nonce is burned even though validation failed.
	_, found := cache.ConsumeNonce("n1")
	assert.False(found)
}

func TestValidateTokenMissingState(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, cache, lti := newTestAdapter(t)

	seedNonce(t, cache, "n2", "st", "lms1")

	idToken, err := lti.CreateDevToken("lms1", "n2", nil)
	require.NoError(err)

	form := url.Values{"id_token": {idToken}}

	_, _, err = lti.validator.ValidateToken(context.Background(), form)
	var verr *TokenValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(401, verr.Status())
}

func TestValidateTokenUnknownNonce(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, _, lti := newTestAdapter(t)

	idToken, err := lti.CreateDevToken("lms1", "never-created", nil)
	require.NoError(err)

	form := url.Values{"id_token": {idToken}, "state": {"st"}}

	_, _, err = lti.validator.ValidateToken(context.Background(), form)
	var verr *TokenValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(401, verr.Status())
}

func TestValidateTokenKidMismatchIs400(t *testing.T) {
	assert := assert.New(t)

	cfg, cache, lti := newTestAdapter(t)

	seedNonce(t, cache, "n3", "st", "lms1")

	now := time.Now()
	idToken := signToken(t, cfg.Tool().PrivateKey, "some-other-kid", jwt.MapClaims{
		"aud":   "lms1",
		"nonce": "n3",
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	})

	form := url.Values{"id_token": {idToken}, "state": {"st"}}

	_, _, err := lti.validator.ValidateToken(context.Background(), form)
	var verr *TokenValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(400, verr.Status())
}

func TestValidateTokenBadSignature(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	_, cache, lti := newTestAdapter(t)

	seedNonce(t, cache, "n4", "st", "lms1")

	// Signed by a key the platform never published, under the published kid.
	rogue, _, err := GenerateKeyPair()
	require.NoError(err)

	now := time.Now()
	idToken := signToken(t, rogue, ToolKeyID, jwt.MapClaims{
		"aud":   "lms1",
		"nonce": "n4",
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	})

	form := url.Values{"id_token": {idToken}, "state": {"st"}}

	_, _, err = lti.validator.ValidateToken(context.Background(), form)
	var verr *TokenValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(401, verr.Status())
}

func TestValidateTokenExpired(t *testing.T) {
	assert := assert.New(t)

	cfg, cache, lti := newTestAdapter(t)

	seedNonce(t, cache, "n5", "st", "lms1")

	now := time.Now()
	idToken := signToken(t, cfg.Tool().PrivateKey, ToolKeyID, jwt.MapClaims{
		"aud":   "lms1",
		"nonce": "n5",
		"exp":   now.Add(-time.Minute).Unix(),
		"iat":   now.Add(-20 * time.Minute).Unix(),
	})

	form := url.Values{"id_token": {idToken}, "state": {"st"}}

	_, _, err := lti.validator.ValidateToken(context.Background(), form)
	var verr *TokenValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(401, verr.Status())
	assert.Contains(verr.Message, "expired")
}

func TestValidateTokenInvalidAudience(t *testing.T) {
	assert := assert.New(t)

	cfg, cache, lti := newTestAdapter(t)

	// The nonce was recorded for lms1 but the token claims a different aud.
	seedNonce(t, cache, "n6", "st", "lms1")

	now := time.Now()
	idToken := signToken(t, cfg.Tool().PrivateKey, ToolKeyID, jwt.MapClaims{
		"aud":   "someone-else",
		"nonce": "n6",
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	})

	form := url.Values{"id_token": {idToken}, "state": {"st"}}

	_, _, err := lti.validator.ValidateToken(context.Background(), form)
	var verr *TokenValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(401, verr.Status())
	assert.Contains(verr.Message, "audience")
}

func TestValidateTokenMissingIDToken(t *testing.T) {
	assert := assert.New(t)

	_, _, lti := newTestAdapter(t)

	_, _, err := lti.validator.ValidateToken(context.Background(), url.Values{"state": {"st"}})
	var verr *TokenValidationError
	assert.ErrorAs(err, &verr)
	assert.Equal(400, verr.Status())
}
