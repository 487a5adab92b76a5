package lti1p3

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"
)

// cacheRecord is satisfied by the two record types held in the cache. clone
// keeps stored records private to the store: records cross its boundary only
// as copies, so holders of a returned record never share memory with the
// store or with each other.
type cacheRecord[T any] interface {
	cacheKey() string
	setField(field string, value any)
	clone() T
}

// dataStore is a mutex-guarded keyed map with uniqueness-on-insert and
// partial-update semantics. It is the contract a distributed store would
// need to implement if the cache ever moves out of process.
type dataStore[T cacheRecord[T]] struct {
	mu   sync.Mutex
	data map[string]T
}

func newDataStore[T cacheRecord[T]]() *dataStore[T] {
	return &dataStore[T]{data: make(map[string]T)}
}

// insert stores a copy of v keyed by its primary key. Returns false without
// mutation if the key is already present.
func (s *dataStore[T]) insert(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[v.cacheKey()]; exists {
		return false
	}

	s.data[v.cacheKey()] = v.clone()
	return true
}

func (s *dataStore[T]) get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		var zero T
		return zero, false
	}
	return v.clone(), true
}

// take removes and returns the record under key in a single critical section,
// so no two callers can observe the same record.
func (s *dataStore[T]) take(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if ok {
		delete(s.data, key)
	}
	return v, ok
}

// update applies each field assignment to the record under key, inside the
// critical section, and returns a copy of the result. Unknown or mismatched
// fields are ignored by the record's setField. Returns false if no record
// exists.
func (s *dataStore[T]) update(key string, fields map[string]any) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		var zero T
		return zero, false
	}

	for field, value := range fields {
		v.setField(field, value)
	}

	return v.clone(), true
}

// swap atomically replaces the record under oldKey with the record produced
// by replace, all in one critical section. replace receives a copy and may
// reject the swap by returning an error, leaving the stored record
// untouched. The bool reports whether oldKey existed.
func (s *dataStore[T]) swap(oldKey string, replace func(T) (T, error)) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T

	v, ok := s.data[oldKey]
	if !ok {
		return zero, false, nil
	}

	next, err := replace(v.clone())
	if err != nil {
		return zero, true, err
	}

	if _, exists := s.data[next.cacheKey()]; exists && next.cacheKey() != oldKey {
		return zero, true, fmt.Errorf("replacement key already present in store")
	}

	delete(s.data, oldKey)
	s.data[next.cacheKey()] = next

	return next.clone(), true, nil
}

func (s *dataStore[T]) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
}

// SessionCache holds the two in-process stores backing the launch protocol:
// long-lived client sessions and short-lived nonce records. Construct one per
// process and share it; every component must see the same stores.
type SessionCache struct {
	sessions *dataStore[*Session]
	nonces   *dataStore[*Nonce]

	now func() time.Time
}

func NewSessionCache() *SessionCache {
	return &SessionCache{
		sessions: newDataStore[*Session](),
		nonces:   newDataStore[*Nonce](),
		now:      time.Now,
	}
}

// GetSession returns a copy of the session under id; mutating it never
// reaches the store. Sessions past their TTL return a SessionExpiredError;
// the record is kept so the caller can still refresh it.
func (c *SessionCache) GetSession(id string) (*Session, error) {
	session, ok := c.sessions.get(id)
	if !ok {
		return nil, nil
	}

	if c.now().After(session.ExpiresAt()) {
		return nil, &SessionExpiredError{Message: "access denied - session expired"}
	}

	return session, nil
}

// ConsumeNonce returns and deletes the nonce record in one atomic step. A
// nonce can be read at most once; a second call for the same value reports
// absence.
func (c *SessionCache) ConsumeNonce(value string) (*Nonce, bool) {
	return c.nonces.take(value)
}

// CreateCache inserts a new record into the store matching its type. Returns
// false on a primary key collision; ids are cryptographically random, so a
// collision indicates a configuration or randomness fault.
func (c *SessionCache) CreateCache(value any) (bool, error) {
	switch v := value.(type) {
	case *Session:
		return c.sessions.insert(v), nil
	case *Nonce:
		return c.nonces.insert(v), nil
	default:
		return false, fmt.Errorf("unsupported cache record type %T", value)
	}
}

// SetSession applies a single named field assignment to a cached session and
// returns the updated record, or false if the session does not exist.
func (c *SessionCache) SetSession(id string, field string, value any) (*Session, bool) {
	return c.sessions.update(id, map[string]any{field: value})
}

// SetNonce applies a single named field assignment to a cached nonce record.
func (c *SessionCache) SetNonce(value string, field string, fieldValue any) (*Nonce, bool) {
	return c.nonces.update(value, map[string]any{field: fieldValue})
}

// DeleteSession removes a session. Deleting an absent id is a no-op.
func (c *SessionCache) DeleteSession(id string) {
	c.sessions.delete(id)
}

// DeleteNonce removes a nonce record. Deleting an absent value is a no-op.
func (c *SessionCache) DeleteNonce(value string) {
	c.nonces.delete(value)
}

// RefreshSession replaces the session under oldID with a copy carrying a new
// id, refresh token, and creation time. The expiry check is bypassed: refresh
// must work on expired sessions. The presented refresh token must match the
// stored one (compared in constant time) or the refresh is rejected and the
// old session is left untouched. The whole compare-and-replace runs in a
// single critical section, so of any number of concurrent refreshes
// presenting the same valid token exactly one succeeds; the rest find the
// old id gone.
func (c *SessionCache) RefreshSession(oldID string, refreshToken string, sessionExpiration int) (*Session, error) {
	refreshed, found, err := c.sessions.swap(oldID, func(session *Session) (*Session, error) {
		if subtle.ConstantTimeCompare([]byte(session.RefreshToken), []byte(refreshToken)) != 1 {
			return nil, &AuthValidationError{StatusCode: 401, Message: "access denied: refresh token mismatch"}
		}

		newRefreshToken, err := generateToken(32)
		if err != nil {
			return nil, fmt.Errorf("could not generate refresh token: %w", err)
		}

		session.SessionID = newSessionID()
		session.RefreshToken = newRefreshToken
		session.SessionExpiration = sessionExpiration
		session.CreatedAt = c.now()

		return session, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &AuthValidationError{StatusCode: 401, Message: "access denied: authentication required"}
	}

	return refreshed, nil
}
