package lti1p3

import "strings"

// RoleExtractor is the capability hook that maps verified launch claims onto
// the session's role set and platform user id. The engine calls SetRoles and
// SetPlatformID once after minting a session; the auth guard calls Roles on
// every protected request. Supply a custom implementation when the platform
// delivers roles somewhere other than the LTI custom claim.
type RoleExtractor interface {
	Roles(s *Session) []string
	SetRoles(s *Session)
	SetPlatformID(s *Session)
}

// ClaimRoleExtractor is the default RoleExtractor. It reads the LTI custom
// claim, expecting "roles" as a comma separated string and "user_id" as the
// platform's identifier for the launching user.
type ClaimRoleExtractor struct{}

func (ClaimRoleExtractor) customClaim(s *Session) map[string]any {
	custom, _ := s.IDToken[CustomClaim].(map[string]any)
	return custom
}

func (e ClaimRoleExtractor) Roles(s *Session) []string {
	switch v := s.UserCredentials.UserVars["roles"].(type) {
	case []string:
		return v
	case []any:
		// Role lists that round-tripped through JSON arrive as []any.
		roles := make([]string, 0, len(v))
		for _, role := range v {
			if r, ok := role.(string); ok {
				roles = append(roles, r)
			}
		}
		return roles
	}

	return nil
}

func (e ClaimRoleExtractor) SetRoles(s *Session) {
	custom := e.customClaim(s)
	if custom == nil {
		return
	}

	raw, _ := custom["roles"].(string)
	if raw == "" {
		return
	}

	var roles []string
	for _, role := range strings.Split(raw, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}

	if s.UserCredentials.UserVars == nil {
		s.UserCredentials.UserVars = map[string]any{}
	}
	s.UserCredentials.UserVars["roles"] = roles
}

func (e ClaimRoleExtractor) SetPlatformID(s *Session) {
	custom := e.customClaim(s)
	if custom == nil {
		return
	}

	if id, ok := custom["user_id"].(string); ok {
		s.UserCredentials.PlatformID = id
	}
}
