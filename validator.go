package lti1p3

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates the id_token carried by a platform's
// authentication response, per the IMS security framework's response
// validation steps.
type TokenValidator struct {
	cfg   *AdapterConfig
	keys  *KeyManager
	cache *SessionCache
}

type TokenValidatorArgs struct {
	Config *AdapterConfig
	Keys   *KeyManager
	Cache  *SessionCache
}

func NewTokenValidator(args TokenValidatorArgs) (*TokenValidator, error) {
	if args.Config == nil || args.Keys == nil || args.Cache == nil {
		return nil, fmt.Errorf("token validator requires config, keys, and cache")
	}

	return &TokenValidator{
		cfg:   args.Config,
		keys:  args.Keys,
		cache: args.Cache,
	}, nil
}

// ValidateToken checks the auth response form against the pending nonce
// record and the platform's published signing keys. On success it returns the
// verified claim set and the storage target recorded when the login was
// initiated.
//
// The nonce record is consumed before any signature work so that a valid
// nonce is burned even when later steps fail.
func (v *TokenValidator) ValidateToken(ctx context.Context, form url.Values) (map[string]any, string, error) {
	raw := form.Get("id_token")
	if raw == "" {
		return nil, "", &TokenValidationError{StatusCode: 400, Message: "id_token missing from response"}
	}

	// Claims are decoded without signature verification first; the nonce is
	// needed to locate the platform whose keys verify the signature.
	unverified := jwt.MapClaims{}
	unverifiedToken, _, err := jwt.NewParser().ParseUnverified(raw, unverified)
	if err != nil {
		return nil, "", &TokenValidationError{StatusCode: 400, Message: "id_token is malformed"}
	}

	nonce, err := v.validateStateAndNonce(unverified, form)
	if err != nil {
		return nil, "", err
	}

	// Platform settings are resolved by the client_id recorded when the login
	// was initiated, never by the token's own claims. Trusting the token here
	// would let an attacker swap platforms mid-flow.
	platform, err := v.cfg.PlatformSettings(ctx, nonce.ClientID)
	if err != nil {
		return nil, "", err
	}

	keySet, err := v.keys.FetchPlatformJWKS(ctx, platform.JWKURI)
	if err != nil {
		return nil, "", fmt.Errorf("could not fetch platform jwks: %w", err)
	}

	publicKeys := map[string]*rsa.PublicKey{}
	for i := 0; i < keySet.Len(); i++ {
		key, ok := keySet.Key(i)
		if !ok {
			continue
		}

		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			continue
		}
		publicKeys[key.KeyID()] = &pub
	}

	kid, _ := unverifiedToken.Header["kid"].(string)
	publicKey, ok := publicKeys[kid]
	if !ok {
		return nil, "", &TokenValidationError{StatusCode: 400, Message: "no platform key matches the token's kid"}
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return publicKey, nil
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(nonce.ClientID),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, "", &TokenValidationError{StatusCode: 401, Message: "invalid signature - login from unregistered platforms is forbidden"}
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, "", &TokenValidationError{StatusCode: 401, Message: "token expired"}
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return nil, "", &TokenValidationError{StatusCode: 401, Message: "invalid audience claim"}
	default:
		return nil, "", &TokenValidationError{StatusCode: 400, Message: "failed to validate token"}
	}

	return map[string]any(claims), nonce.StorageTarget, nil
}

// validateStateAndNonce consumes the nonce record named by the token's nonce
// claim and checks the form's state against the one stored when the login was
// initiated. Consumption is atomic: a second response presenting the same
// nonce finds nothing.
func (v *TokenValidator) validateStateAndNonce(claims jwt.MapClaims, form url.Values) (*Nonce, error) {
	jwtNonce, _ := claims["nonce"].(string)
	if jwtNonce == "" {
		return nil, &TokenValidationError{StatusCode: 401, Message: "nonce value missing from claims"}
	}

	nonce, ok := v.cache.ConsumeNonce(jwtNonce)
	if !ok {
		return nil, &TokenValidationError{StatusCode: 401, Message: "invalid nonce claim"}
	}

	state := form.Get("state")
	if state == "" {
		return nil, &TokenValidationError{StatusCode: 401, Message: "state value missing from response"}
	}

	if nonce.State != state {
		return nil, &TokenValidationError{StatusCode: 401, Message: "state value invalid"}
	}

	return nonce, nil
}
