package actes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Roles an account can hold.
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// Audit log actions.
var AuditActions = []string{"create", "update", "delete"}

const defaultAuditPageSize = 20

// Account is a back-office user.
type Account struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt Date   `json:"created_at"`
}

// AccountUpdate changes an account. Empty fields are left alone.
type AccountUpdate struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role,omitempty"`
}

// AuditEntry is one change recorded by the audit log.
type AuditEntry struct {
	ID        int    `json:"id"`
	CreatedAt Date   `json:"created_at"`
	UserEmail string `json:"user_email"`
	Action    string `json:"action"`
	ActeID    int    `json:"acte_id"`
	ActeTitre string `json:"acte_titre"`
	Detail    string `json:"detail"`
}

// AuditQuery filters the audit log. Zero fields are omitted.
type AuditQuery struct {
	UserEmail string
	Action    string
	ActeID    int
	Page      int
	Size      int
}

// Values encodes the query string. Paging is left out of exports.
func (q AuditQuery) Values(paged bool) url.Values {
	v := url.Values{}
	if s := strings.TrimSpace(q.UserEmail); s != "" {
		v.Set("user_email", s)
	}
	if q.Action != "" {
		v.Set("action", q.Action)
	}
	if q.ActeID > 0 {
		v.Set("acte_id", strconv.Itoa(q.ActeID))
	}
	if !paged {
		return v
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.Size
	if size < 1 {
		size = defaultAuditPageSize
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("size", strconv.Itoa(size))
	return v
}

// Validate rejects unknown actions.
func (q AuditQuery) Validate() error {
	if q.Action == "" {
		return nil
	}
	for _, a := range AuditActions {
		if q.Action == a {
			return nil
		}
	}
	return fmt.Errorf("actes: unknown audit action %q (want one of %s)", q.Action, strings.Join(AuditActions, ", "))
}

// ValidRole reports whether role can be assigned to an account.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleAgent
}

// Users lists the back-office accounts.
func (c *Client) Users(ctx context.Context) ([]Account, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoint("/admin/users", nil), nil, "", &raw); err != nil {
		return nil, err
	}
	var out []Account
	if err := decodeList(raw, &out, "items", "users"); err != nil {
		return nil, fmt.Errorf("failed to decode /admin/users response: %w", err)
	}
	return out, nil
}

// CreateUser adds an account.
func (c *Client) CreateUser(ctx context.Context, email, password, role string) (Account, error) {
	if !ValidRole(role) {
		return Account{}, fmt.Errorf("actes: unknown role %q", role)
	}
	payload := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}{strings.TrimSpace(email), password, role}
	var out Account
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/admin/users", nil), payload, &out); err != nil {
		return Account{}, err
	}
	return out, nil
}

// UpdateUser changes an account's email, password or role.
func (c *Client) UpdateUser(ctx context.Context, id int, update AccountUpdate) (Account, error) {
	if update.Role != "" && !ValidRole(update.Role) {
		return Account{}, fmt.Errorf("actes: unknown role %q", update.Role)
	}
	if update == (AccountUpdate{}) {
		return Account{}, fmt.Errorf("actes: nothing to update")
	}
	var out Account
	if err := c.doJSON(ctx, http.MethodPut, c.endpoint(fmt.Sprintf("/admin/users/%d", id), nil), update, &out); err != nil {
		return Account{}, err
	}
	return out, nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, c.endpoint(fmt.Sprintf("/admin/users/%d", id), nil), nil, "", nil)
}

// AuditLogs returns one page of the audit log, most recent first.
func (c *Client) AuditLogs(ctx context.Context, q AuditQuery) ([]AuditEntry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoint("/admin/audit-logs", q.Values(true)), nil, "", &raw); err != nil {
		return nil, err
	}
	var out []AuditEntry
	if err := decodeList(raw, &out, "items", "logs"); err != nil {
		return nil, fmt.Errorf("failed to decode /admin/audit-logs response: %w", err)
	}
	for i := range out {
		out[i].Detail = normalizeWhitespace(out[i].Detail)
	}
	return out, nil
}

// ExportAuditLogs streams the filtered audit log as CSV to w.
func (c *Client) ExportAuditLogs(ctx context.Context, q AuditQuery, w io.Writer) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	resp, err := c.send(ctx, http.MethodGet, c.endpoint("/admin/audit-logs/export", q.Values(false)), nil, "", "text/csv")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

func (c *Client) doJSON(ctx context.Context, method, target string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(ctx, method, target, bytes.NewReader(body), "application/json", out)
}

// decodeList accepts a bare array or an object wrapping it under one of keys.
func decodeList(raw json.RawMessage, out any, keys ...string) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return err
	}
	for _, key := range keys {
		if list, ok := wrapper[key]; ok {
			return json.Unmarshal(list, out)
		}
	}
	return fmt.Errorf("no %s list in response", strings.Join(keys, " or "))
}
