package lti1p3

import (
	"fmt"
	"net/http"
)

// AuthGuard is the request-facing entry point protecting downstream routes.
// It is a pure read-and-check: no state transition occurs, so it is safe to
// call on every protected request.
type AuthGuard struct {
	cache *SessionCache
	tool  *ToolConfig
	roles RoleExtractor
}

type AuthGuardArgs struct {
	Config *AdapterConfig
	Cache  *SessionCache

	// Roles defaults to ClaimRoleExtractor when nil.
	Roles RoleExtractor
}

func NewAuthGuard(args AuthGuardArgs) (*AuthGuard, error) {
	if args.Config == nil || args.Cache == nil {
		return nil, fmt.Errorf("auth guard requires config and cache")
	}

	if args.Roles == nil {
		args.Roles = ClaimRoleExtractor{}
	}

	return &AuthGuard{
		cache: args.Cache,
		tool:  args.Config.Tool(),
		roles: args.Roles,
	}, nil
}

// AuthArgs carries the optional inputs to EnforceAuth. SessionID overrides
// the cookie/header lookup for callers that hold the id directly.
// AcceptedRoles, when non-empty, requires the session's role set to intersect
// it.
type AuthArgs struct {
	SessionID     string
	AcceptedRoles []string
}

// EnforceAuth locates the caller's session id (explicit argument, then the
// configured cookie, then the header of the same name), retrieves the live
// session, and checks role membership. Expired sessions are rejected with a
// SessionExpiredError so clients know to refresh.
func (g *AuthGuard) EnforceAuth(r *http.Request, args AuthArgs) (*Session, error) {
	storageKey := g.tool.SessionIDStorageKey

	sessionID := args.SessionID
	if sessionID == "" {
		if c, err := r.Cookie(storageKey); err == nil {
			sessionID = c.Value
		}
	}
	if sessionID == "" {
		sessionID = r.Header.Get(storageKey)
	}

	if sessionID == "" {
		return nil, &AuthValidationError{
			StatusCode: 403,
			Message: fmt.Sprintf(
				"session_id not found - supply it in a cookie or header named %q, or in the SessionID argument",
				storageKey,
			),
		}
	}

	session, err := g.cache.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &AuthValidationError{StatusCode: 401, Message: "access denied: authentication required"}
	}

	if len(args.AcceptedRoles) > 0 {
		held := map[string]bool{}
		for _, role := range g.roles.Roles(session) {
			held[role] = true
		}

		authorized := false
		for _, role := range args.AcceptedRoles {
			if held[role] {
				authorized = true
				break
			}
		}

		if !authorized {
			return nil, &AuthValidationError{StatusCode: 403, Message: "access denied: insufficient permissions"}
		}
	}

	return session, nil
}
