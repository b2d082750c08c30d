package actes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersAcceptsWrappedList(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"array": `[{"id":1,"email":"admin@mairie.example","role":"admin","created_at":"2024-01-02T08:00:00"}]`,
		"items": `{"items":[{"id":1,"email":"admin@mairie.example","role":"admin","created_at":"2024-01-02T08:00:00"}]}`,
		"users": `{"users":[{"id":1,"email":"admin@mairie.example","role":"admin","created_at":"2024-01-02T08:00:00"}]}`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/admin/users", r.URL.Path)
				_, _ = w.Write([]byte(body))
			})
			users, err := client.Users(context.Background())
			require.NoError(t, err)
			require.Len(t, users, 1)
			assert.Equal(t, "admin@mairie.example", users[0].Email)
			assert.Equal(t, RoleAdmin, users[0].Role)
			assert.Equal(t, "02/01/2024", users[0].CreatedAt.String())
		})
	}
}

func TestUsersRejectsUnknownShape(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accounts":[]}`))
	})
	_, err := client.Users(context.Background())
	assert.Error(t, err)
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, map[string]string{"email": "agent@mairie.example", "password": "pw", "role": "agent"}, payload)
		_, _ = w.Write([]byte(`{"id":5,"email":"agent@mairie.example","role":"agent"}`))
	})

	account, err := client.CreateUser(context.Background(), " agent@mairie.example ", "pw", RoleAgent)
	require.NoError(t, err)
	assert.Equal(t, 5, account.ID)

	_, err = client.CreateUser(context.Background(), "x@mairie.example", "pw", "superuser")
	assert.ErrorContains(t, err, "unknown role")
}

func TestUpdateUserSendsPartialPayload(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/admin/users/5", r.URL.Path)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, map[string]string{"role": "admin"}, payload)
		_, _ = w.Write([]byte(`{"id":5,"email":"agent@mairie.example","role":"admin"}`))
	})

	account, err := client.UpdateUser(context.Background(), 5, AccountUpdate{Role: RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, account.Role)

	_, err = client.UpdateUser(context.Background(), 5, AccountUpdate{})
	assert.ErrorContains(t, err, "nothing to update")
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/admin/users/5", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, client.DeleteUser(context.Background(), 5))
}

func TestAuditLogsFilters(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/admin/audit-logs", r.URL.Path)
		assert.Equal(t, "delete", q.Get("action"))
		assert.Equal(t, "12", q.Get("acte_id"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "20", q.Get("size"))
		assert.False(t, q.Has("user_email"))
		_, _ = w.Write([]byte(`{"logs":[{"id":3,"created_at":"2024-06-01T09:30:00","user_email":"admin@mairie.example","action":"delete","acte_id":12,"acte_titre":"Arrêté","detail":"suppression\n demandée"},{"id":2,"action":"create","acte_id":null}]}`))
	})

	entries, err := client.AuditLogs(context.Background(), AuditQuery{Action: "delete", ActeID: 12})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "suppression demandée", entries[0].Detail)
	assert.Equal(t, 0, entries[1].ActeID)

	_, err = client.AuditLogs(context.Background(), AuditQuery{Action: "purge"})
	assert.ErrorContains(t, err, "unknown audit action")
}

func TestExportAuditLogsStreamsCSV(t *testing.T) {
	t.Parallel()

	const csv = "id,created_at,user_email,action\n3,2024-06-01,admin@mairie.example,delete\n"
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/audit-logs/export", r.URL.Path)
		assert.Equal(t, "text/csv", r.Header.Get("Accept"))
		assert.Equal(t, "admin@mairie.example", r.URL.Query().Get("user_email"))
		assert.False(t, r.URL.Query().Has("page"))
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(csv))
	})

	var buf bytes.Buffer
	n, err := client.ExportAuditLogs(context.Background(), AuditQuery{UserEmail: "admin@mairie.example", Page: 3}, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(csv)), n)
	assert.Equal(t, csv, buf.String())
}

func TestExportAuditLogsMapsForbidden(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Admin only"}`, http.StatusForbidden)
	})

	var buf bytes.Buffer
	_, err := client.ExportAuditLogs(context.Background(), AuditQuery{}, &buf)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorContains(t, err, "Admin only")
	assert.Zero(t, buf.Len())
}
