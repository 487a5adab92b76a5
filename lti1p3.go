package lti1p3

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LTI orchestrates the three launch steps of the LTI 1.3 / OIDC third-party
// flow: building the authentication request redirect, validating the
// authentication response into a session, and refreshing an existing session.
// It holds no per-launch state; every operation is independent.
type LTI struct {
	cfg       *AdapterConfig
	cache     *SessionCache
	keys      *KeyManager
	validator *TokenValidator
	roles     RoleExtractor
}

type LTIArgs struct {
	Config *AdapterConfig
	Cache  *SessionCache
	Keys   *KeyManager

	// Roles defaults to ClaimRoleExtractor when nil.
	Roles RoleExtractor
}

func NewLTI(args LTIArgs) (*LTI, error) {
	if args.Config == nil {
		return nil, fmt.Errorf("no adapter config provided")
	}

	if args.Cache == nil {
		return nil, fmt.Errorf("no session cache provided")
	}

	if args.Keys == nil {
		keys, err := NewKeyManager(KeyManagerArgs{Tool: args.Config.Tool()})
		if err != nil {
			return nil, err
		}
		args.Keys = keys
	}

	if args.Roles == nil {
		args.Roles = ClaimRoleExtractor{}
	}

	validator, err := NewTokenValidator(TokenValidatorArgs{
		Config: args.Config,
		Keys:   args.Keys,
		Cache:  args.Cache,
	})
	if err != nil {
		return nil, err
	}

	return &LTI{
		cfg:       args.Config,
		cache:     args.Cache,
		keys:      args.Keys,
		validator: validator,
		roles:     args.Roles,
	}, nil
}

// createNonceSession generates a fresh nonce and csrf token, caches them in a
// new nonce record, and returns both values.
func (l *LTI) createNonceSession(clientID, targetLinkURI, storageTarget string) (string, string, error) {
	nonce, err := generateToken(32)
	if err != nil {
		return "", "", fmt.Errorf("could not generate nonce: %w", err)
	}

	csrf, err := generateToken(32)
	if err != nil {
		return "", "", fmt.Errorf("could not generate state token: %w", err)
	}

	ok, err := l.cache.CreateCache(&Nonce{
		Nonce:         nonce,
		TargetLinkURI: targetLinkURI,
		ClientID:      clientID,
		State:         csrf,
		StorageTarget: storageTarget,
	})
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", fmt.Errorf("nonce collision in nonce store")
	}

	return nonce, csrf, nil
}

// CreateAuthResponse handles steps 1 and 2 of the launch: it reads the
// third-party initiated login form, verifies the platform is registered,
// persists a nonce record, and returns the authentication request redirect
// URL pointed at the platform's auth endpoint.
func (l *LTI) CreateAuthResponse(ctx context.Context, form url.Values) (string, error) {
	storageTarget := StorageTargetCookie
	if v := form.Get("lti_storage_target"); v != "" {
		// Presence of lti_storage_target tells us where the final session id
		// can be stored given the client's third-party cookie support.
		storageTarget = v
	}

	clientID := form.Get("client_id")

	platform, err := l.cfg.PlatformSettings(ctx, clientID)
	if err != nil {
		return "", err
	}

	targetLinkURI := form.Get("target_link_uri")
	loginHint := form.Get("login_hint")

	nonce, csrf, err := l.createNonceSession(clientID, targetLinkURI, storageTarget)
	if err != nil {
		return "", err
	}

	params := url.Values{
		"response_type": {"id_token"},
		"response_mode": {"form_post"},
		"client_id":     {clientID},
		"redirect_uri":  {platform.Domain + l.cfg.Tool().AuthRedirectPath},
		"nonce":         {nonce},
		"state":         {csrf},
		"scope":         {"openid"},
		"login_hint":    {loginHint},
	}

	// Callers may pass extra auth request parameters as a JSON object in the
	// "params" field; they are merged into the query.
	if overrides := form.Get("params"); overrides != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(overrides), &extra); err == nil {
			for k, v := range extra {
				params.Set(k, fmt.Sprint(v))
			}
		} else {
			params.Set("params", overrides)
		}
	}

	return platform.AuthRequestURI + "?" + params.Encode(), nil
}

// LaunchResult is the payload handed to the thin client-side redirect step
// after a successful auth response validation.
type LaunchResult struct {
	SessionID     string
	StorageTarget string
	Claims        map[string]any
	TargetLinkURI string
	AuthDomain    string
}

// ValidateResponse handles step 3 of the launch: the platform's auth response
// is validated and, on success, a new client session is minted and stored.
func (l *LTI) ValidateResponse(ctx context.Context, form url.Values) (*LaunchResult, error) {
	claims, storageTarget, err := l.validator.ValidateToken(ctx, form)
	if err != nil {
		return nil, err
	}

	csrf, err := generateToken(32)
	if err != nil {
		return nil, fmt.Errorf("could not generate csrf token: %w", err)
	}

	refreshToken, err := generateToken(32)
	if err != nil {
		return nil, fmt.Errorf("could not generate refresh token: %w", err)
	}

	clientID := audienceClaim(claims)

	platform, err := l.cfg.PlatformSettings(ctx, clientID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		SessionID:         newSessionID(),
		IDToken:           claims,
		CSRFToken:         csrf,
		ClientID:          clientID,
		ToolDomain:        platform.Domain,
		SessionExpiration: l.cfg.Tool().SessionExpiration,
		RefreshToken:      refreshToken,
		CreatedAt:         time.Now(),
	}

	l.roles.SetRoles(session)
	l.roles.SetPlatformID(session)

	ok, err := l.cache.CreateCache(session)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("session id collision in session store")
	}

	return &LaunchResult{
		SessionID:     session.SessionID,
		StorageTarget: storageTarget,
		Claims:        claims,
		TargetLinkURI: platform.TargetLinkURI,
		AuthDomain:    platform.AuthRequestURI,
	}, nil
}

// RefreshResult carries a refreshed session plus everything a handler needs
// to deliver it back to the client on either storage target.
type RefreshResult struct {
	Session       *Session
	StorageTarget string

	sessionIDKey    string
	refreshTokenKey string
}

// Cookies returns the session-id and refresh-token cookies for cookie-target
// clients. The session cookie carries an explicit expiry matching the
// session's TTL.
func (r *RefreshResult) Cookies() []*http.Cookie {
	return []*http.Cookie{
		{
			Name:     r.sessionIDKey,
			Value:    r.Session.SessionID,
			Expires:  r.Session.ExpiresAt(),
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		},
		{
			Name:     r.refreshTokenKey,
			Value:    r.Session.RefreshToken,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		},
	}
}

// ExpiresAtMillis is the session expiry as unix milliseconds, for clients
// storing the session outside cookies.
func (r *RefreshResult) ExpiresAtMillis() int64 {
	return r.Session.ExpiresAt().UnixMilli()
}

// RefreshSession reads the old session id and refresh token from the request
// cookies, falling back to headers for clients without cookie support, and
// replaces the session with a fresh one.
func (l *LTI) RefreshSession(r *http.Request) (*RefreshResult, error) {
	tool := l.cfg.Tool()

	storageTarget := StorageTargetCookie

	var oldID, refreshToken string
	if c, err := r.Cookie(tool.SessionIDStorageKey); err == nil {
		oldID = c.Value
	}
	if c, err := r.Cookie(tool.RefreshTokenStorageKey); err == nil {
		refreshToken = c.Value
	}

	if oldID == "" || refreshToken == "" {
		oldID = r.Header.Get(tool.SessionIDStorageKey)
		refreshToken = r.Header.Get(tool.RefreshTokenStorageKey)
		storageTarget = StorageTargetHeader
	}

	if oldID == "" || refreshToken == "" {
		return nil, &AuthValidationError{
			StatusCode: 401,
			Message:    "missing required fields: session id and refresh token not found in cookies or headers",
		}
	}

	session, err := l.cache.RefreshSession(oldID, refreshToken, tool.SessionExpiration)
	if err != nil {
		return nil, err
	}

	return &RefreshResult{
		Session:         session,
		StorageTarget:   storageTarget,
		sessionIDKey:    tool.SessionIDStorageKey,
		refreshTokenKey: tool.RefreshTokenStorageKey,
	}, nil
}

// GetSessionInfo returns the LTI custom claim map from a session's id_token.
func (l *LTI) GetSessionInfo(sessionID string) (map[string]any, error) {
	session, err := l.cache.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &AuthValidationError{StatusCode: 401, Message: "access denied: authentication required"}
	}

	info, _ := session.IDToken[CustomClaim].(map[string]any)
	return info, nil
}

// CreateDevToken mints a self-signed id_token for simulating the platform
// side of the handshake. Not a full or secure implementation; it exists only
// so the launch flow can be exercised without an LMS and is disabled outside
// a LOCAL environment.
func (l *LTI) CreateDevToken(aud string, nonce string, params map[string]any) (string, error) {
	tool := l.cfg.Tool()
	if tool.Env != EnvLocal {
		return "", ErrDevOnly
	}

	now := time.Now()

	claims := jwt.MapClaims{
		"iss":   fmt.Sprintf("%s.com", tool.DefaultDomain),
		"aud":   aud,
		"sub":   uuid.NewString(),
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
		"nonce": nonce,
		"azp":   aud,
	}
	for k, v := range params {
		claims[k] = v
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(tool.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("could not parse tool private key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = ToolKeyID

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}
