// Package session keeps member and admin login state in a signed, encrypted
// cookie. The two scopes are independent and each carries its own expiry.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"
)

const (
	DefaultCookieName = "memberqr_session"
	DefaultLifetime   = time.Hour
)

const (
	keyMemberID      = "member_id"
	keyMemberExpires = "member_expires"
	keyAdmin         = "admin_username"
	keyAdminExpires  = "admin_expires"
	keyCSRF          = "csrf_token"
)

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

type Options struct {
	Secret     string
	CookieName string
	Lifetime   time.Duration
	Secure     bool
	Now        func() time.Time
}

// Manager reads and writes the session cookie.
type Manager struct {
	store    *sessions.CookieStore
	name     string
	lifetime time.Duration
	now      func() time.Time
}

// NewManager creates a session Manager with keys derived from opts.Secret.
func NewManager(opts Options) (*Manager, error) {
	if opts.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	hashKey, err := deriveKey(opts.Secret, "memberqr session hash", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(opts.Secret, "memberqr session block", 32)
	if err != nil {
		return nil, err
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultLifetime
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.Lifetime / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		store:    store,
		name:     opts.CookieName,
		lifetime: opts.Lifetime,
		now:      opts.Now,
	}, nil
}

func deriveKey(secret, info string, n int) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return out, nil
}

// get returns the request's session. A cookie that fails to decode (for
// example after a secret rotation) yields a fresh, empty session.
func (m *Manager) get(r *http.Request) *sessions.Session {
	s, _ := m.store.Get(r, m.name)
	return s
}

func (m *Manager) save(w http.ResponseWriter, r *http.Request, s *sessions.Session) error {
	if err := s.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Manager) live(s *sessions.Session, idKey, expKey string) (string, bool) {
	id, ok := s.Values[idKey].(string)
	if !ok || id == "" {
		return "", false
	}
	exp, ok := s.Values[expKey].(int64)
	if !ok || m.now().Unix() >= exp {
		return "", false
	}
	return id, true
}

// EstablishMember binds the member scope to memberID until the lifetime elapses.
func (m *Manager) EstablishMember(w http.ResponseWriter, r *http.Request, memberID string) error {
	s := m.get(r)
	s.Values[keyMemberID] = memberID
	s.Values[keyMemberExpires] = m.now().Add(m.lifetime).Unix()
	return m.save(w, r, s)
}

// EstablishAdmin binds the admin scope to username until the lifetime elapses.
func (m *Manager) EstablishAdmin(w http.ResponseWriter, r *http.Request, username string) error {
	s := m.get(r)
	s.Values[keyAdmin] = username
	s.Values[keyAdminExpires] = m.now().Add(m.lifetime).Unix()
	return m.save(w, r, s)
}

// Clear drops both scopes and the CSRF token. Flashes added afterwards in the
// same request are still delivered.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	s := m.get(r)
	for _, k := range []string{keyMemberID, keyMemberExpires, keyAdmin, keyAdminExpires, keyCSRF} {
		delete(s.Values, k)
	}
	return m.save(w, r, s)
}

func (m *Manager) ClearMember(w http.ResponseWriter, r *http.Request) error {
	s := m.get(r)
	delete(s.Values, keyMemberID)
	delete(s.Values, keyMemberExpires)
	return m.save(w, r, s)
}

func (m *Manager) ClearAdmin(w http.ResponseWriter, r *http.Request) error {
	s := m.get(r)
	delete(s.Values, keyAdmin)
	delete(s.Values, keyAdminExpires)
	return m.save(w, r, s)
}

// MemberID returns the member bound to a live member scope.
func (m *Manager) MemberID(r *http.Request) (string, bool) {
	return m.live(m.get(r), keyMemberID, keyMemberExpires)
}

// IsMemberLoggedIn reports whether a live member scope is bound to memberID.
func (m *Manager) IsMemberLoggedIn(r *http.Request, memberID string) bool {
	id, ok := m.MemberID(r)
	return ok && id == memberID
}

// AdminUsername returns the admin bound to a live admin scope.
func (m *Manager) AdminUsername(r *http.Request) (string, bool) {
	return m.live(m.get(r), keyAdmin, keyAdminExpires)
}

func (m *Manager) IsAdminLoggedIn(r *http.Request) bool {
	_, ok := m.AdminUsername(r)
	return ok
}

// AddFlash queues a message of the given kind for the next rendered page.
func (m *Manager) AddFlash(w http.ResponseWriter, r *http.Request, kind, msg string) error {
	s := m.get(r)
	s.AddFlash(msg, flashKey(kind))
	return m.save(w, r, s)
}

// Flashes are messages queued by earlier requests, grouped by kind.
type Flashes struct {
	Success []string
	Error   []string
	Info    []string
}

func (f Flashes) Empty() bool {
	return len(f.Success) == 0 && len(f.Error) == 0 && len(f.Info) == 0
}

// PopFlashes returns and removes all queued flashes.
func (m *Manager) PopFlashes(w http.ResponseWriter, r *http.Request) (Flashes, error) {
	s := m.get(r)
	var f Flashes
	f.Success = strs(s.Flashes(flashKey(FlashSuccess)))
	f.Error = strs(s.Flashes(flashKey(FlashError)))
	f.Info = strs(s.Flashes(flashKey(FlashInfo)))
	if f.Empty() {
		return f, nil
	}
	return f, m.save(w, r, s)
}

func flashKey(kind string) string {
	return "_flash_" + kind
}

func strs(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// CSRFToken returns the session's CSRF token, creating one if needed.
func (m *Manager) CSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	s := m.get(r)
	if tok, ok := s.Values[keyCSRF].(string); ok && tok != "" {
		return tok, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	tok := base64.RawURLEncoding.EncodeToString(b)
	s.Values[keyCSRF] = tok
	if err := m.save(w, r, s); err != nil {
		return "", err
	}
	return tok, nil
}

// VerifyCSRF reports whether tok matches the session's CSRF token.
func (m *Manager) VerifyCSRF(r *http.Request, tok string) bool {
	want, ok := m.get(r).Values[keyCSRF].(string)
	if !ok || want == "" || tok == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(tok)) == 1
}

// Request binds the manager to one request and its response writer.
type Request struct {
	m *Manager
	w http.ResponseWriter
	r *http.Request
}

func (m *Manager) For(w http.ResponseWriter, r *http.Request) *Request {
	return &Request{m: m, w: w, r: r}
}

func (q *Request) MemberID() (string, bool) {
	return q.m.MemberID(q.r)
}

func (q *Request) IsMemberLoggedIn(memberID string) bool {
	return q.m.IsMemberLoggedIn(q.r, memberID)
}

func (q *Request) IsAdminLoggedIn() bool {
	return q.m.IsAdminLoggedIn(q.r)
}

func (q *Request) EstablishMember(memberID string) error {
	return q.m.EstablishMember(q.w, q.r, memberID)
}

func (q *Request) EstablishAdmin(username string) error {
	return q.m.EstablishAdmin(q.w, q.r, username)
}

func (q *Request) Clear() error {
	return q.m.Clear(q.w, q.r)
}

func (q *Request) ClearAdmin() error {
	return q.m.ClearAdmin(q.w, q.r)
}
