// Package session persists the portal's cookies between runs and exposes
// them as an http.CookieJar shared by every HTTP call.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	// AdminCookie is the client-side indicator the portal sets after login.
	AdminCookie = "is_admin"
	// TokenCookie is the session cookie issued by the API.
	TokenCookie = "access_token"

	adminLifetime = 24 * time.Hour
)

// Cookie is the persisted form of an http.Cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
}

// Store is a cookie jar bound to the portal's base URL. Cookies set for that
// URL are written to disk; an empty path keeps them in memory.
type Store struct {
	path string
	base *url.URL
	now  func() time.Time

	mu      sync.Mutex
	jar     *cookiejar.Jar
	cookies []Cookie
}

// Open loads the store at path for the portal at baseURL.
func Open(path, baseURL string) (*Store, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("session: base URL must be absolute")
	}
	s := &Store{path: path, base: base, now: time.Now}
	if err := s.reset(); err != nil {
		return nil, err
	}
	if path == "" {
		return s, nil
	}
	cookies, err := load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	s.cookies = s.unexpired(cookies)
	s.jar.SetCookies(s.base, toHTTP(s.cookies))
	return s, nil
}

// Cookies implements http.CookieJar.
func (s *Store) Cookies(u *url.URL) []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jar.Cookies(u)
}

// SetCookies implements http.CookieJar. Cookies for the portal's host are
// persisted; a cookie with MaxAge < 0 or a past expiry deletes its name.
func (s *Store) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar.SetCookies(u, cookies)
	if u.Hostname() != s.base.Hostname() {
		return
	}
	for _, c := range cookies {
		s.remember(c)
	}
	_ = s.persist()
}

// Set records the admin indicator with its fixed one-day lifetime.
func (s *Store) Set(isAdmin bool) error {
	value := "false"
	if isAdmin {
		value = "true"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &http.Cookie{Name: AdminCookie, Value: value, Path: "/", Expires: s.now().Add(adminLifetime)}
	s.jar.SetCookies(s.base, []*http.Cookie{c})
	s.remember(c)
	return s.persist()
}

// Clear forgets the session token and the admin indicator.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.cookies[:0]
	for _, c := range s.cookies {
		if c.Name == TokenCookie || c.Name == AdminCookie {
			continue
		}
		kept = append(kept, c)
	}
	s.cookies = kept
	if err := s.reset(); err != nil {
		return err
	}
	s.jar.SetCookies(s.base, toHTTP(s.cookies))
	return s.persist()
}

// Active reports whether an unexpired admin indicator is present.
func (s *Store) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.unexpired(s.cookies) {
		if c.Name == AdminCookie && c.Value == "true" {
			return true
		}
	}
	return false
}

// HasToken reports whether the API issued a session cookie.
func (s *Store) HasToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.unexpired(s.cookies) {
		if c.Name == TokenCookie && c.Value != "" {
			return true
		}
	}
	return false
}

func (s *Store) reset() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}
	s.jar = jar
	return nil
}

func (s *Store) remember(c *http.Cookie) {
	expired := c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(s.now()))
	kept := s.cookies[:0]
	for _, existing := range s.cookies {
		if existing.Name != c.Name {
			kept = append(kept, existing)
		}
	}
	s.cookies = kept
	if expired {
		return
	}
	entry := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}
	if c.MaxAge > 0 {
		entry.Expires = s.now().Add(time.Duration(c.MaxAge) * time.Second)
	}
	s.cookies = append(s.cookies, entry)
}

func (s *Store) unexpired(cookies []Cookie) []Cookie {
	now := s.now()
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.cookies, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func load(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

func toHTTP(cookies []Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out
}
