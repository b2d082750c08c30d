// Package actes is a client for the portal's REST API: public search and
// detail of published acts, their PDFs, the admin session endpoints, and the
// back-office (act management, users, audit log).
package actes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound           = errors.New("actes: not found")
	ErrUnauthorized       = errors.New("actes: not authenticated")
	ErrInvalidCredentials = errors.New("actes: incorrect email or password")
)

const (
	defaultTimeout  = 15 * time.Second
	requestIDHeader = "X-Request-ID"
	defaultPageSize = 10
)

var extraneousWhitespace = regexp.MustCompile(`\s+`)

// Acte is a published act as returned by the API.
type Acte struct {
	ID              int    `json:"id"`
	Titre           string `json:"titre"`
	Type            string `json:"type"`
	Service         string `json:"service"`
	DateSignature   Date   `json:"date_signature"`
	DatePublication Date   `json:"date_publication"`
	Statut          string `json:"statut"`
	Resume          string `json:"resume"`
	PDFPath         string `json:"pdf_path"`
	CreatedAt       Date   `json:"created_at"`
}

// User is the authenticated admin reported by /admin/me.
type User struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Token is the login response. The same value is also set as a cookie.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Query filters GET /actes. Zero fields are omitted.
type Query struct {
	Text    string
	Type    string
	Service string
	DateMin time.Time
	DateMax time.Time
	Page    int
	Size    int
}

// Values encodes the query string.
func (q Query) Values() url.Values {
	v := url.Values{}
	if s := strings.TrimSpace(q.Text); s != "" {
		v.Set("q", s)
	}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	if q.Service != "" {
		v.Set("service", q.Service)
	}
	if !q.DateMin.IsZero() {
		v.Set("date_min", q.DateMin.Format(dateLayout))
	}
	if !q.DateMax.IsZero() {
		v.Set("date_max", q.DateMax.Format(dateLayout))
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.Size
	if size < 1 {
		size = defaultPageSize
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("size", strconv.Itoa(size))
	return v
}

// APIError is a non-2xx response. It matches the package sentinels with
// errors.Is.
type APIError struct {
	StatusCode int
	Status     string
	Detail     string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("actes API error: %s", e.Status)
	}
	return fmt.Sprintf("actes API error: %s (%s)", e.Status, e.Detail)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Client talks to one portal. Its http.Client should carry the session
// cookie jar.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{base: base, http: httpClient, logger: logger.Named("actes")}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base.String() }

// PDFURL returns the address of an act's PDF.
func (c *Client) PDFURL(id int) string {
	return c.endpoint(fmt.Sprintf("/actes/%d/pdf", id), nil)
}

// List searches published acts, most recent publication first.
func (c *Client) List(ctx context.Context, q Query) ([]Acte, error) {
	var out []Acte
	if err := c.do(ctx, http.MethodGet, c.endpoint("/actes", q.Values()), nil, "", &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].normalize()
	}
	return out, nil
}

// Get returns one act.
func (c *Client) Get(ctx context.Context, id int) (Acte, error) {
	var out Acte
	if err := c.do(ctx, http.MethodGet, c.endpoint(fmt.Sprintf("/actes/%d", id), nil), nil, "", &out); err != nil {
		return Acte{}, err
	}
	out.normalize()
	return out, nil
}

// SearchFullText returns the acts whose extracted PDF text matches text.
// Hits may carry only the id; duplicates are dropped.
func (c *Client) SearchFullText(ctx context.Context, text string) ([]Acte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var hits []Acte
	if err := c.do(ctx, http.MethodGet, c.endpoint("/actes/search_fulltext", url.Values{"q": {text}}), nil, "", &hits); err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		if h.ID == 0 || seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		h.normalize()
		out = append(out, h)
	}
	return out, nil
}

// SendByEmail asks the portal to mail an act, PDF attached, to address.
func (c *Client) SendByEmail(ctx context.Context, id int, address string) error {
	address = strings.TrimSpace(address)
	if !strings.Contains(address, "@") {
		return fmt.Errorf("actes: invalid email address %q", address)
	}
	payload := struct {
		Email      string `json:"email"`
		IncludePDF bool   `json:"include_pdf"`
	}{address, true}
	var out struct {
		OK     *bool  `json:"ok"`
		Detail string `json:"detail"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(fmt.Sprintf("/actes/%d/email", id), nil), payload, &out); err != nil {
		return err
	}
	if out.OK != nil && !*out.OK {
		if out.Detail == "" {
			out.Detail = "sending failed"
		}
		return fmt.Errorf("actes: email not sent: %s", out.Detail)
	}
	return nil
}

// Login authenticates an administrator. The API answers with the token and
// sets it as the access_token cookie on the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	var out Token
	err := c.do(ctx, http.MethodPost, c.endpoint("/admin/login", nil), strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
		return Token{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Detail)
	}
	if err != nil {
		return Token{}, err
	}
	return out, nil
}

// Logout asks the API to delete the session cookie.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.endpoint("/admin/logout", nil), nil, "", nil)
}

// Me returns the authenticated admin.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, c.endpoint("/admin/me", nil), nil, "", &out); err != nil {
		return User{}, err
	}
	return out, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, target, body, contentType, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s response: %w", resp.Request.URL.Path, err)
	}
	return nil
}

// send performs the request and turns error statuses into *APIError. The
// caller closes the body of a successful response.
func (c *Client) send(ctx context.Context, method, target string, body io.Reader, contentType, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", accept)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Detail:     errorDetail(raw),
			RequestID:  requestID,
		}
	}
	return resp, nil
}

// errorDetail extracts FastAPI's {"detail": ...} message, falling back to the
// raw body.
func errorDetail(raw []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil {
			return text
		}
		return string(payload.Detail)
	}
	return normalizeWhitespace(string(raw))
}

func (a *Acte) normalize() {
	a.Titre = normalizeWhitespace(a.Titre)
	a.Resume = normalizeWhitespace(a.Resume)
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	return extraneousWhitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}
