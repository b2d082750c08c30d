package actes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/actes/internal/session"
)

const sampleActe = `{
	"id": 7,
	"titre": "Arrêté  portant\n réglementation du stationnement",
	"type": "arrêté",
	"service": "Voirie",
	"date_signature": "2024-02-27",
	"date_publication": "2024-03-01",
	"statut": "publié",
	"resume": null,
	"pdf_path": "storage/7.pdf",
	"created_at": "2024-03-01T10:15:00.123456"
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(server.URL, server.Client(), nil)
	require.NoError(t, err)
	return client, server
}

func TestGetDecodesActe(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/actes/7", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get(requestIDHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleActe))
	})

	acte, err := client.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, acte.ID)
	assert.Equal(t, "Arrêté portant réglementation du stationnement", acte.Titre)
	assert.Equal(t, "Voirie", acte.Service)
	assert.Equal(t, "01/03/2024", acte.DatePublication.String())
	assert.Empty(t, acte.Resume)
	assert.Equal(t, 10, acte.CreatedAt.Hour())
}

func TestGetMapsNotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not found"}`))
	})

	_, err := client.Get(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Not found", apiErr.Detail)
}

func TestListEncodesFilters(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/actes", r.URL.Path)
		assert.Equal(t, "stationnement", q.Get("q"))
		assert.Equal(t, "Voirie", q.Get("service"))
		assert.Equal(t, "2024-01-01", q.Get("date_min"))
		assert.Empty(t, q.Get("date_max"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "10", q.Get("size"))
		_, _ = w.Write([]byte("[" + sampleActe + "]"))
	})

	got, err := client.List(context.Background(), Query{
		Text:    "  stationnement ",
		Service: "Voirie",
		DateMin: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Page:    2,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].ID)
}

func TestPDFURLKeepsBasePath(t *testing.T) {
	t.Parallel()

	client, err := New("https://mairie.example/api/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://mairie.example/api/actes/7/pdf", client.PDFURL(7))
}

func TestNewRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := New("localhost", nil, nil)
	require.Error(t, err)
}

func TestLoginStoresSessionCookie(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/login", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "admin@mairie.fr" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: session.TokenCookie, Value: "jwt", Path: "/", HttpOnly: true, MaxAge: 3600})
		_ = json.NewEncoder(w).Encode(Token{AccessToken: "jwt", TokenType: "bearer"})
	})
	mux.HandleFunc("/admin/me", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(session.TokenCookie); err != nil || c.Value != "jwt" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
			return
		}
		_, _ = w.Write([]byte(`{"email":"admin@mairie.fr","role":"admin"}`))
	})
	mux.HandleFunc("/admin/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: session.TokenCookie, Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store, err := session.Open("", server.URL)
	require.NoError(t, err)
	httpClient := server.Client()
	httpClient.Jar = store
	client, err := New(server.URL, httpClient, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Me(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = client.Login(ctx, "admin@mairie.fr", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	token, err := client.Login(ctx, "admin@mairie.fr", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt", token.AccessToken)
	assert.True(t, store.HasToken())

	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", me.Role)

	require.NoError(t, client.Logout(ctx))
	assert.False(t, store.HasToken())
}

func TestErrorDetailFallsBackToBody(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "upstream down", errorDetail([]byte("upstream \n down")))
	assert.Equal(t, `[{"loc":["query","page"]}]`, errorDetail([]byte(`{"detail":[{"loc":["query","page"]}]}`)))
}
