package lti1p3

import "fmt"

// StatusError is implemented by every typed error in this package. Route
// boundary code uses it to serialize the stable {status_code, type, message}
// shape without leaking internals.
type StatusError interface {
	error
	Status() int
	Type() string
}

// ConfigValidationError reports a fatal startup-time misconfiguration.
type ConfigValidationError struct {
	Message string
}

func (e *ConfigValidationError) Error() string { return e.Message }
func (e *ConfigValidationError) Status() int   { return 500 }
func (e *ConfigValidationError) Type() string  { return "ConfigValidationError" }

// ClientIdError reports a login attempt from an unregistered or unauthorized
// platform.
type ClientIdError struct {
	ClientID string
	Message  string
}

func (e *ClientIdError) Error() string {
	if e.ClientID != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.ClientID)
	}
	return e.Message
}
func (e *ClientIdError) Status() int  { return 403 }
func (e *ClientIdError) Type() string { return "ClientIdError" }

// TokenValidationError reports a failure while validating the platform's auth
// response. StatusCode carries the recommended HTTP response status: 401 for
// signature/expiry/audience/nonce/state violations, 400 for malformed tokens
// or unresolvable signing keys.
type TokenValidationError struct {
	Message    string
	StatusCode int
}

func (e *TokenValidationError) Error() string { return e.Message }
func (e *TokenValidationError) Status() int   { return e.StatusCode }
func (e *TokenValidationError) Type() string  { return "TokenValidationError" }

// SessionExpiredError is returned when a session past its TTL is retrieved.
// The session record is kept so it can still be refreshed.
type SessionExpiredError struct {
	Message string
}

func (e *SessionExpiredError) Error() string { return e.Message }
func (e *SessionExpiredError) Status() int   { return 401 }
func (e *SessionExpiredError) Type() string  { return "SessionExpiredError" }

// AuthValidationError reports a request-guard failure: 401 for a missing or
// unauthenticated session, 403 for a found session lacking the required role.
type AuthValidationError struct {
	Message    string
	StatusCode int
}

func (e *AuthValidationError) Error() string { return e.Message }
func (e *AuthValidationError) Status() int   { return e.StatusCode }
func (e *AuthValidationError) Type() string  { return "AuthValidationError" }

// ErrDevOnly guards operations that simulate the platform side of the
// handshake. Serving code should map it to a 501 response.
type devOnlyError struct{}

func (devOnlyError) Error() string {
	return "dev launch flow is disabled outside the LOCAL environment"
}
func (devOnlyError) Status() int  { return 501 }
func (devOnlyError) Type() string { return "NotImplementedError" }

// ErrDevOnly is returned by dev-only operations outside a LOCAL environment.
var ErrDevOnly StatusError = devOnlyError{}
