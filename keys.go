package lti1p3

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ToolKeyID is the fixed kid published alongside the tool's public JWK and
// stamped on every token the tool signs.
const ToolKeyID = "lti1p3-tool-key"

// UseDevJWK is the sentinel jwk_uri that, in a LOCAL environment, substitutes
// the tool's own public key for the platform's. It closes the self-signed dev
// loop where the tool plays both sides of the handshake.
const UseDevJWK = "USE_DEV"

// KeyManager holds the tool's keypair material and fetches platform key sets.
// Platform JWKS are re-fetched on every validation; launches happen at login
// rate, not request rate, so correctness wins over caching here.
type KeyManager struct {
	h    *http.Client
	tool *ToolConfig
}

type KeyManagerArgs struct {
	H    *http.Client
	Tool *ToolConfig
}

func NewKeyManager(args KeyManagerArgs) (*KeyManager, error) {
	if args.Tool == nil {
		return nil, fmt.Errorf("no tool settings provided")
	}

	if args.H == nil {
		args.H = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	return &KeyManager{
		h:    args.H,
		tool: args.Tool,
	}, nil
}

// ToolPublicJWK returns the tool's public key as a JWK tagged with the fixed
// key id, RS256, and signature use. Platforms fetch it from the well-known
// JWK route to verify tokens the tool signs.
func (km *KeyManager) ToolPublicJWK() (jwk.Key, error) {
	block, _ := pem.Decode(km.tool.PublicKey)
	if block == nil {
		return nil, fmt.Errorf("tool public key is not valid pem")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("could not parse tool public key: %w", err)
	}

	key, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, fmt.Errorf("could not build jwk from tool public key: %w", err)
	}

	if err := key.Set(jwk.KeyIDKey, ToolKeyID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}

	return key, nil
}

// JwksResponseObject is the {"keys": [...]} document served at the tool's
// public JWK route.
type JwksResponseObject struct {
	Keys []jwk.Key `json:"keys"`
}

// ToolJWKS wraps the tool's public JWK in a key set response.
func (km *KeyManager) ToolJWKS() (*JwksResponseObject, error) {
	key, err := km.ToolPublicJWK()
	if err != nil {
		return nil, err
	}

	return &JwksResponseObject{Keys: []jwk.Key{key}}, nil
}

// FetchPlatformJWKS retrieves the platform's published key set for id_token
// signature validation. The UseDevJWK sentinel returns the tool's own public
// key instead, but only in a LOCAL environment.
func (km *KeyManager) FetchPlatformJWKS(ctx context.Context, jwkURI string) (jwk.Set, error) {
	if jwkURI == UseDevJWK && km.tool.Env == EnvLocal {
		key, err := km.ToolPublicJWK()
		if err != nil {
			return nil, err
		}

		set := jwk.NewSet()
		if err := set.AddKey(key); err != nil {
			return nil, err
		}
		return set, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", jwkURI, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request for platform jwks: %w", err)
	}

	resp, err := km.h.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not get platform jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("received non-200 response from platform jwks url. code was %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read platform jwks body: %w", err)
	}

	set, err := jwk.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("could not parse platform jwks: %w", err)
	}

	return set, nil
}
