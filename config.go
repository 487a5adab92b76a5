package lti1p3

import (
	"context"
	"errors"
	"fmt"
)

// PlatformResolver looks up the registration for a platform by the client_id
// it was issued. Implementations typically read from a registration database.
type PlatformResolver func(ctx context.Context, clientID string) (*PlatformConfig, error)

// AdapterConfig is the composition-root service holding the tool settings and
// the platform registration source. Construct exactly one per process and
// share it between the engine, the validator and the auth guard.
type AdapterConfig struct {
	tool     *ToolConfig
	static   *PlatformConfig
	resolver PlatformResolver
}

type AdapterConfigArgs struct {
	Tool *ToolConfig

	// Exactly one of Platform or PlatformResolver must be set. A static
	// Platform suits tools launched from a single LMS; the resolver form is
	// required when registrations are dynamic.
	Platform         *PlatformConfig
	PlatformResolver PlatformResolver
}

// NewAdapterConfig validates the supplied settings, fills in defaults, and
// generates the tool keypair if none was provided.
func NewAdapterConfig(args AdapterConfigArgs) (*AdapterConfig, error) {
	if args.Tool == nil {
		return nil, &ConfigValidationError{Message: "invalid config: tool settings are required"}
	}

	if args.Platform == nil && args.PlatformResolver == nil {
		return nil, &ConfigValidationError{Message: "invalid config: platform settings or a platform resolver is required"}
	}

	if args.Platform != nil && args.PlatformResolver != nil {
		return nil, &ConfigValidationError{Message: "invalid config: platform settings and a platform resolver are mutually exclusive"}
	}

	tool := *args.Tool
	tool.applyDefaults()

	if tool.ClientName == "" {
		return nil, &ConfigValidationError{Message: "invalid config: client name is required"}
	}

	if len(tool.PrivateKey) == 0 || len(tool.PublicKey) == 0 {
		priv, pub, err := GenerateKeyPair()
		if err != nil {
			return nil, &ConfigValidationError{Message: fmt.Sprintf("invalid config: could not generate tool keypair: %v", err)}
		}
		tool.PrivateKey = priv
		tool.PublicKey = pub
	}

	return &AdapterConfig{
		tool:     &tool,
		static:   args.Platform,
		resolver: args.PlatformResolver,
	}, nil
}

// Tool returns the static tool settings.
func (c *AdapterConfig) Tool() *ToolConfig {
	return c.tool
}

// PlatformSettings resolves the registration for clientID. Unregistered
// client ids surface as a ClientIdError.
func (c *AdapterConfig) PlatformSettings(ctx context.Context, clientID string) (*PlatformConfig, error) {
	if c.resolver != nil {
		platform, err := c.resolver(ctx, clientID)
		if err != nil {
			var cerr *ClientIdError
			if errors.As(err, &cerr) {
				return nil, err
			}
			return nil, &ClientIdError{ClientID: clientID, Message: fmt.Sprintf("could not resolve platform settings: %v", err)}
		}
		if platform == nil {
			return nil, &ClientIdError{ClientID: clientID, Message: "unregistered platform"}
		}
		return platform, nil
	}

	return c.static, nil
}
