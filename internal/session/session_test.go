package session

import (
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestStorePersistsPortalCookies(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	store, err := Open(path, "http://127.0.0.1:8000")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	api := mustURL(t, "http://127.0.0.1:8000/admin/login")
	store.SetCookies(api, []*http.Cookie{{Name: TokenCookie, Value: "jwt", Path: "/", HttpOnly: true}})
	if err := store.Set(true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened, err := Open(path, "http://127.0.0.1:8000")
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if !reopened.Active() || !reopened.HasToken() {
		t.Fatal("session should survive a reopen")
	}
	got := reopened.Cookies(mustURL(t, "http://127.0.0.1:8000/actes"))
	if len(got) != 2 {
		t.Fatalf("expected token and admin cookies, got %v", got)
	}
}

func TestStoreIgnoresForeignHosts(t *testing.T) {
	t.Parallel()

	store, err := Open("", "http://127.0.0.1:8000")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	store.SetCookies(mustURL(t, "http://tracker.example/"), []*http.Cookie{{Name: TokenCookie, Value: "x"}})
	if store.HasToken() {
		t.Fatal("cookies for other hosts must not become the session")
	}
}

func TestAdminIndicatorExpiresAfterOneDay(t *testing.T) {
	t.Parallel()

	store, err := Open("", "http://127.0.0.1:8000")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	if err := store.Set(true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !store.Active() {
		t.Fatal("fresh admin indicator should be active")
	}
	now = now.Add(adminLifetime + time.Minute)
	if store.Active() {
		t.Fatal("admin indicator should expire after one day")
	}
}

func TestClearDropsSessionOnly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store, err := Open(path, "http://127.0.0.1:8000")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	base := mustURL(t, "http://127.0.0.1:8000/")
	store.SetCookies(base, []*http.Cookie{
		{Name: TokenCookie, Value: "jwt", Path: "/"},
		{Name: "lang", Value: "fr", Path: "/"},
	})
	if err := store.Set(true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if store.Active() || store.HasToken() {
		t.Fatal("clear should remove the session")
	}
	got := store.Cookies(base)
	if len(got) != 1 || got[0].Name != "lang" {
		t.Fatalf("unrelated cookies should survive, got %v", got)
	}
}

func TestServerDeletionRemovesCookie(t *testing.T) {
	t.Parallel()

	store, err := Open("", "http://127.0.0.1:8000")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	base := mustURL(t, "http://127.0.0.1:8000/admin/logout")
	store.SetCookies(base, []*http.Cookie{{Name: TokenCookie, Value: "jwt", Path: "/"}})
	store.SetCookies(base, []*http.Cookie{{Name: TokenCookie, Path: "/", MaxAge: -1}})
	if store.HasToken() {
		t.Fatal("a deleted cookie should not be persisted")
	}
}

func TestOpenRejectsRelativeBase(t *testing.T) {
	t.Parallel()

	if _, err := Open("", "/api"); err == nil {
		t.Fatal("expected error for relative base URL")
	}
}
