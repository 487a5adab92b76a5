package lti1p3

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (*AuthGuard, *SessionCache, *ToolConfig) {
	t.Helper()

	cfg, _, _ := newTestAdapter(t)
	cache := NewSessionCache()

	guard, err := NewAuthGuard(AuthGuardArgs{Config: cfg, Cache: cache})
	require.NoError(t, err)

	return guard, cache, cfg.Tool()
}

func seedSessionWithRoles(t *testing.T, cache *SessionCache, id string, roles []string) *Session {
	t.Helper()

	session := newTestSession(id, 3600, time.Now())
	session.UserCredentials.UserVars = map[string]any{"roles": roles}

	ok, err := cache.CreateCache(session)
	require.NoError(t, err)
	require.True(t, ok)

	return session
}

func TestEnforceAuthFromCookie(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	guard, cache, tool := newTestGuard(t)
	seedSessionWithRoles(t, cache, "cookie-sess", nil)

	r := httptest.NewRequest("GET", "/protected", nil)
	r.AddCookie(&http.Cookie{Name: tool.SessionIDStorageKey, Value: "cookie-sess"})

	session, err := guard.EnforceAuth(r, AuthArgs{})
	require.NoError(err)
	assert.Equal("cookie-sess", session.SessionID)
}

func TestEnforceAuthFromHeader(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	guard, cache, tool := newTestGuard(t)
	seedSessionWithRoles(t, cache, "header-sess", nil)

	r := httptest.NewRequest("GET", "/protected", nil)
	r.Header.Set(tool.SessionIDStorageKey, "header-sess")

	session, err := guard.EnforceAuth(r, AuthArgs{})
	require.NoError(err)
	assert.Equal("header-sess", session.SessionID)
}

func TestEnforceAuthExplicitOverride(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	guard, cache, tool := newTestGuard(t)
	seedSessionWithRoles(t, cache, "arg-sess", nil)
	seedSessionWithRoles(t, cache, "cookie-sess", nil)

	// The explicit argument wins over the cookie.
	r := httptest.NewRequest("GET", "/protected", nil)
	r.AddCookie(&http.Cookie{Name: tool.SessionIDStorageKey, Value: "cookie-sess"})

	session, err := guard.EnforceAuth(r, AuthArgs{SessionID: "arg-sess"})
	require.NoError(err)
	assert.Equal("arg-sess", session.SessionID)
}

func TestEnforceAuthNoSessionID(t *testing.T) {
	assert := assert.New(t)

	guard, _, _ := newTestGuard(t)

	r := httptest.NewRequest("GET", "/protected", nil)

	_, err := guard.EnforceAuth(r, AuthArgs{})
	var authErr *AuthValidationError
	assert.ErrorAs(err, &authErr)
	assert.Equal(403, authErr.Status())
}

func TestEnforceAuthUnknownSession(t *testing.T) {
	assert := assert.New(t)

	guard, _, tool := newTestGuard(t)

	r := httptest.NewRequest("GET", "/protected", nil)
	r.AddCookie(&http.Cookie{Name: tool.SessionIDStorageKey, Value: "no-such-session"})

	_, err := guard.EnforceAuth(r, AuthArgs{})
	var authErr *AuthValidationError
	assert.ErrorAs(err, &authErr)
	assert.Equal(401, authErr.Status())
}

func TestEnforceAuthExpiredSession(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	guard, cache, tool := newTestGuard(t)

	// TTL 3600s, created 3601s ago.
	_, err := cache.CreateCache(newTestSession("expired-sess", 3600, time.Now().Add(-3601*time.Second)))
	require.NoError(err)

	r := httptest.NewRequest("GET", "/protected", nil)
	r.AddCookie(&http.Cookie{Name: tool.SessionIDStorageKey, Value: "expired-sess"})

	_, err = guard.EnforceAuth(r, AuthArgs{})
	var expired *SessionExpiredError
	assert.ErrorAs(err, &expired)
	assert.Equal(401, expired.Status())
}

func TestEnforceAuthRoleMismatch(t *testing.T) {
	assert := assert.New(t)

	guard, cache, tool := newTestGuard(t)
	seedSessionWithRoles(t, cache, "student-sess", []string{"StudentEnrollment"})

	r := httptest.NewRequest("GET", "/protected", nil)
	r.AddCookie(&http.Cookie{Name: tool.SessionIDStorageKey, Value: "student-sess"})

	_, err := guard.EnforceAuth(r, AuthArgs{AcceptedRoles: []string{"TeacherEnrollment"}})
	var authErr *AuthValidationError
	assert.ErrorAs(err, &authErr)
	assert.Equal(403, authErr.Status())
}

func TestEnforceAuthRoleIntersection(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	guard, cache, tool := newTestGuard(t)
	seedSessionWithRoles(t, cache, "teacher-sess", []string{"TeacherEnrollment", "StudentEnrollment"})

	r := httptest.NewRequest("GET", "/protected", nil)
	r.AddCookie(&http.Cookie{Name: tool.SessionIDStorageKey, Value: "teacher-sess"})

	session, err := guard.EnforceAuth(r, AuthArgs{AcceptedRoles: []string{"TeacherEnrollment", "AccountAdmin"}})
	require.NoError(err)
	assert.Equal("teacher-sess", session.SessionID)
}

func TestEnforceAuthRolesFromDecodedJSON(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	guard, cache, tool := newTestGuard(t)

	// Role lists written back through a JSON round trip arrive as []any, not
	// []string. The guard must still see them.
	session := newTestSession("json-sess", 3600, time.Now())
	session.UserCredentials.UserVars = map[string]any{
		"roles": []any{"TeacherEnrollment", "StudentEnrollment"},
	}
	ok, err := cache.CreateCache(session)
	require.NoError(err)
	require.True(ok)

	r := httptest.NewRequest("GET", "/protected", nil)
	r.AddCookie(&http.Cookie{Name: tool.SessionIDStorageKey, Value: "json-sess"})

	got, err := guard.EnforceAuth(r, AuthArgs{AcceptedRoles: []string{"TeacherEnrollment"}})
	require.NoError(err)
	assert.Equal("json-sess", got.SessionID)

	assert.Equal(
		[]string{"TeacherEnrollment", "StudentEnrollment"},
		ClaimRoleExtractor{}.Roles(got),
	)
}

func TestEnforceAuthNoRolesRequired(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	guard, cache, tool := newTestGuard(t)

	// A session with no roles at all passes when no roles are required.
	seedSessionWithRoles(t, cache, "anon-sess", nil)

	r := httptest.NewRequest("GET", "/protected", nil)
	r.AddCookie(&http.Cookie{Name: tool.SessionIDStorageKey, Value: "anon-sess"})

	session, err := guard.EnforceAuth(r, AuthArgs{})
	require.NoError(err)
	assert.Equal("anon-sess", session.SessionID)
}
