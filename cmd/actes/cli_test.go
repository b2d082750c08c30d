package main

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/actes/internal/pdfdoc/pdftest"
	"github.com/csheth/actes/internal/session"
)

// execute runs the root command in-process with an isolated state directory.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return executeIn(t, t.TempDir(), stdin, args...)
}

// executeIn runs the root command with its state under dir. Flag values
// left by earlier runs are reset first.
func executeIn(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, kv := range isolatedEnv(dir) {
		key, value, _ := strings.Cut(kv, "=")
		t.Setenv(key, value)
	}
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--config", filepath.Join(dir, "absent.yml")))
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestSearchPrintsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/actes", r.URL.Path)
		assert.Equal(t, "budget", r.URL.Query().Get("q"))
		assert.Equal(t, "délibération", r.URL.Query().Get("type"))
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("date_min"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":12,"titre":"Budget primitif 2024","type":"délibération","service":"Finances","date_publication":"2024-03-05"}]`))
	}))
	defer srv.Close()

	out, err := execute(t, "", "search", "budget", "--type", "délibération", "--from", "2024-01-01", "--api", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Budget primitif 2024")
	assert.Contains(t, out, "05/03/2024")
	assert.Contains(t, out, "1 result(s)")
}

func TestBuildQueryValidatesDates(t *testing.T) {
	_, err := buildQuery("", "", "", "2024-13-01", "", 1, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--from")

	_, err = buildQuery("", "", "", "2024-03-01", "2024-02-01", 1, 10)
	require.Error(t, err)

	q, err := buildQuery("  voirie ", "arrêté", "", "2024-02-01", "2024-03-01", 2, 20)
	require.NoError(t, err)
	assert.Equal(t, "voirie", q.Text)
	assert.Equal(t, 2, q.Page)
	assert.False(t, q.DateMin.IsZero())
}

func TestLoginThenLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/login":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "admin@mairie.example", r.PostForm.Get("username"))
			assert.Equal(t, "s3cret", r.PostForm.Get("password"))
			http.SetCookie(w, &http.Cookie{Name: session.TokenCookie, Value: "jwt", Path: "/", HttpOnly: true})
			_, _ = w.Write([]byte(`{"access_token":"jwt","token_type":"bearer"}`))
		case "/admin/me":
			if _, err := r.Cookie(session.TokenCookie); err != nil {
				http.Error(w, `{"detail":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"email":"admin@mairie.example","role":"admin"}`))
		case "/admin/logout":
			http.SetCookie(w, &http.Cookie{Name: session.TokenCookie, Value: "", Path: "/", MaxAge: -1})
			_, _ = w.Write([]byte(`{"ok":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Setenv(passwordEnvVar, "s3cret")
	out, err := execute(t, "admin@mairie.example\n", "login", "--api", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as admin@mairie.example (admin)")

	store, err := session.Open(os.Getenv("ACTES_SESSION_FILE"), srv.URL)
	require.NoError(t, err)
	assert.True(t, store.Active())
	assert.True(t, store.HasToken())

	sessionFile := os.Getenv("ACTES_SESSION_FILE")
	rootCmd.SetArgs([]string{"logout", "--api", srv.URL, "--config", filepath.Join(t.TempDir(), "absent.yml")})
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Signed out.")

	store, err = session.Open(sessionFile, srv.URL)
	require.NoError(t, err)
	assert.False(t, store.Active())
	assert.False(t, store.HasToken())
}

func TestReadPasswordFallsBackForPipes(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	_, err = w.WriteString("s3cret\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var out bytes.Buffer
	password, err := readPassword(r, &out, bufio.NewReader(r))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", password)
	assert.Equal(t, "Password: ", out.String())
}

func TestDownloadByID(t *testing.T) {
	doc := pdftest.Build(pdftest.Text("Arrete 7"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/actes/7/pdf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(doc)
	}))
	defer srv.Close()

	target := t.TempDir()
	out, err := execute(t, "", "download", "7", "--dir", target, "--api", srv.URL)
	require.NoError(t, err)
	want := filepath.Join(target, "pdf.pdf")
	assert.Contains(t, out, want)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, doc, data)
}

func TestParseID(t *testing.T) {
	for _, bad := range []string{"", "0", "-3", "sept"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
	id, err := parseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, 42, id)
	assert.True(t, isNumeric("42"))
	assert.False(t, isNumeric("4a"))
}
