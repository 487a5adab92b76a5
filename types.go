package lti1p3

import (
	"maps"
	"slices"
	"time"
)

// Storage targets describe how the client carries its session id after the
// launch completes: first-party cookies, or the header-based fallback used
// when third-party cookies are blocked inside the LMS iframe.
const (
	StorageTargetCookie = "cookie"
	StorageTargetHeader = "lti.put_data"
)

// CustomClaim is the LTI claim carrying tool-specific launch variables,
// including the comma separated role list and the platform user id.
const CustomClaim = "https://purl.imsglobal.org/spec/lti/claim/custom"

// UserCredentials holds per-user identity resolved during the launch, plus
// any tokens obtained on the user's behalf afterwards.
type UserCredentials struct {
	AccessToken  string         `json:"access_token,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	ExpiresIn    string         `json:"expires_in,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	InternalID   int64          `json:"internal_id,omitempty"`
	PlatformID   string         `json:"platform_id,omitempty"`
	UserVars     map[string]any `json:"user_vars,omitempty"`
}

// Session is the server side record of an authenticated launch. It is created
// only after the platform's id_token fully validates, lives in the session
// store keyed by SessionID, and expires SessionExpiration seconds after
// CreatedAt. Expiration is always computed, never stored.
type Session struct {
	SessionID         string `json:"session_id"`
	SessionExpiration int    `json:"session_expiration"`

	RefreshToken string `json:"refresh_token"`

	IDToken         map[string]any  `json:"id_token"`
	CSRFToken       string          `json:"csrf_token"`
	UserCredentials UserCredentials `json:"user_credentials"`
	ClientID        string          `json:"client_id,omitempty"`
	ToolDomain      string          `json:"tool_domain,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`

	// Per-session caches populated by downstream services via SessionCache.Set.
	CourseMetadata map[string]any `json:"course_metadata,omitempty"`
	KnowledgeState map[string]any `json:"knowledge_state,omitempty"`
	QuestionIDs    []string       `json:"question_ids,omitempty"`
}

func (s *Session) cacheKey() string {
	return s.SessionID
}

// clone copies the struct and its top level maps and slices. Values nested
// inside them are never mutated in place by this package, so one level is
// enough to keep store records and handed-out records independent.
func (s *Session) clone() *Session {
	out := *s
	out.IDToken = maps.Clone(s.IDToken)
	out.UserCredentials.UserVars = maps.Clone(s.UserCredentials.UserVars)
	out.CourseMetadata = maps.Clone(s.CourseMetadata)
	out.KnowledgeState = maps.Clone(s.KnowledgeState)
	out.QuestionIDs = slices.Clone(s.QuestionIDs)
	return &out
}

// ExpiresAt returns the instant the session stops being valid.
func (s *Session) ExpiresAt() time.Time {
	return s.CreatedAt.Add(time.Duration(s.SessionExpiration) * time.Second)
}

// setField applies a single named field assignment for partial updates.
// Unknown field names and mismatched value types are silently ignored.
func (s *Session) setField(field string, value any) {
	switch field {
	case "csrf_token":
		if v, ok := value.(string); ok {
			s.CSRFToken = v
		}
	case "client_id":
		if v, ok := value.(string); ok {
			s.ClientID = v
		}
	case "tool_domain":
		if v, ok := value.(string); ok {
			s.ToolDomain = v
		}
	case "id_token":
		if v, ok := value.(map[string]any); ok {
			s.IDToken = v
		}
	case "user_credentials":
		if v, ok := value.(UserCredentials); ok {
			s.UserCredentials = v
		}
	case "course_metadata":
		if v, ok := value.(map[string]any); ok {
			s.CourseMetadata = v
		}
	case "knowledge_state":
		if v, ok := value.(map[string]any); ok {
			s.KnowledgeState = v
		}
	case "question_ids":
		if v, ok := value.([]string); ok {
			s.QuestionIDs = v
		}
	}
}

// Nonce is the ephemeral anti-replay record binding an auth request to its
// response. It is created when an OIDC login is initiated and consumed, at
// most once, while validating the auth response.
type Nonce struct {
	Nonce         string `json:"nonce"`
	TargetLinkURI string `json:"target_link_uri"`
	ClientID      string `json:"client_id"`
	State         string `json:"state"`
	StorageTarget string `json:"storage_target"`
}

func (n *Nonce) cacheKey() string {
	return n.Nonce
}

func (n *Nonce) clone() *Nonce {
	out := *n
	return &out
}

func (n *Nonce) setField(field string, value any) {
	switch field {
	case "target_link_uri":
		if v, ok := value.(string); ok {
			n.TargetLinkURI = v
		}
	case "client_id":
		if v, ok := value.(string); ok {
			n.ClientID = v
		}
	case "state":
		if v, ok := value.(string); ok {
			n.State = v
		}
	case "storage_target":
		if v, ok := value.(string); ok {
			n.StorageTarget = v
		}
	}
}

// PlatformConfig is the per-LMS-tenant registration: where to send the auth
// request, where to fetch the platform's signing keys, and which issuer and
// deployment the tool is installed under. Read-only from this package's
// perspective.
type PlatformConfig struct {
	AuthRequestURI     string `json:"platform_auth_req_uri"`
	TargetLinkURI      string `json:"target_link_uri"`
	AccessTokenGetURI  string `json:"platform_access_token_get,omitempty"`
	AccessTokenPostURI string `json:"platform_access_token_post,omitempty"`
	JWKURI             string `json:"jwk_uri"`
	Issuer             string `json:"platform_iss"`
	Domain             string `json:"domain"`
	DeploymentID       string `json:"deployment_id,omitempty"`
}

// ToolConfig is the process-wide static tool configuration. It is assembled
// once at startup; the keypair is assigned during AdapterConfig construction
// and never rotated afterwards.
type ToolConfig struct {
	ClientName    string
	DefaultDomain string

	InitiateLoginPath string
	AuthRedirectPath  string
	JWKPath           string

	SessionExpiration      int
	SessionIDStorageKey    string
	RefreshTokenStorageKey string

	// Env gates the local-dev simulation flow. Set to EnvLocal to enable it.
	Env string

	PublicKey  []byte
	PrivateKey []byte
}

// EnvLocal enables the self-signed dev launch loop.
const EnvLocal = "LOCAL"

const (
	defaultInitiateLoginPath = "/oidc/init"
	defaultAuthRedirectPath  = "/oidc/response"
	defaultJWKPath           = "/public_jwk"

	defaultSessionExpiration      = 3600
	defaultSessionIDStorageKey    = "lti-session-id"
	defaultRefreshTokenStorageKey = "lti-refresh-token"
)

func (c *ToolConfig) applyDefaults() {
	if c.InitiateLoginPath == "" {
		c.InitiateLoginPath = defaultInitiateLoginPath
	}
	if c.AuthRedirectPath == "" {
		c.AuthRedirectPath = defaultAuthRedirectPath
	}
	if c.JWKPath == "" {
		c.JWKPath = defaultJWKPath
	}
	if c.SessionExpiration == 0 {
		c.SessionExpiration = defaultSessionExpiration
	}
	if c.SessionIDStorageKey == "" {
		c.SessionIDStorageKey = defaultSessionIDStorageKey
	}
	if c.RefreshTokenStorageKey == "" {
		c.RefreshTokenStorageKey = defaultRefreshTokenStorageKey
	}
}
