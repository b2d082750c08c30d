package actes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

// Ref is an entry of the act type or service reference lists.
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Upload is a PDF attached to a back-office request.
type Upload struct {
	Name string
	Data []byte
}

// ActeForm carries the fields of an act to create or edit. Empty fields are
// not sent, so an edit only changes what is set.
type ActeForm struct {
	Titre           string
	Type            string
	Service         string
	DateSignature   time.Time
	DatePublication time.Time
	Statut          string
	Resume          string
	PDF             *Upload
}

// Analysis is what the API extracts from an uploaded PDF to pre-fill the
// creation form.
type Analysis struct {
	FulltextExcerpt string `json:"fulltext_excerpt"`
	DateAuto        Date   `json:"date_auto"`
	ServiceAuto     string `json:"service_auto"`
	TypeAuto        string `json:"type_auto"`
}

// Types lists the act types, sorted by name.
func (c *Client) Types(ctx context.Context) ([]Ref, error) {
	return c.refs(ctx, "/admin/types")
}

// Services lists the issuing services, sorted by name.
func (c *Client) Services(ctx context.Context) ([]Ref, error) {
	return c.refs(ctx, "/admin/services")
}

func (c *Client) refs(ctx context.Context, path string) ([]Ref, error) {
	var out []Ref
	if err := c.do(ctx, http.MethodGet, c.endpoint(path, nil), nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminList searches every act, published or not. The text query also
// matches the extracted full text.
func (c *Client) AdminList(ctx context.Context, q Query) ([]Acte, error) {
	var out []Acte
	if err := c.do(ctx, http.MethodGet, c.endpoint("/admin/actes", q.Values()), nil, "", &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].normalize()
	}
	return out, nil
}

// CreateActe uploads a new act and returns its id. A title and a PDF are
// required.
func (c *Client) CreateActe(ctx context.Context, form ActeForm) (int, error) {
	if strings.TrimSpace(form.Titre) == "" {
		return 0, fmt.Errorf("actes: a title is required")
	}
	if form.PDF == nil || len(form.PDF.Data) == 0 {
		return 0, fmt.Errorf("actes: a PDF is required")
	}
	body, contentType, err := form.multipart()
	if err != nil {
		return 0, err
	}
	var out struct {
		ID int `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("/admin/actes", nil), body, contentType, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateActe edits an act. A PDF in the form replaces the stored one.
func (c *Client) UpdateActe(ctx context.Context, id int, form ActeForm) (Acte, error) {
	body, contentType, err := form.multipart()
	if err != nil {
		return Acte{}, err
	}
	var out Acte
	if err := c.do(ctx, http.MethodPut, c.endpoint(fmt.Sprintf("/admin/actes/%d", id), nil), body, contentType, &out); err != nil {
		return Acte{}, err
	}
	out.normalize()
	return out, nil
}

// DeleteActe removes an act and its PDF.
func (c *Client) DeleteActe(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, c.endpoint(fmt.Sprintf("/admin/actes/%d", id), nil), nil, "", nil)
}

// BulkCreate uploads several acts in one request and returns how many were
// created. Every form needs a title and a PDF.
func (c *Client) BulkCreate(ctx context.Context, forms []ActeForm) (int, error) {
	if len(forms) == 0 {
		return 0, nil
	}
	type item struct {
		Titre           string `json:"titre"`
		Type            string `json:"type,omitempty"`
		Service         string `json:"service,omitempty"`
		DateSignature   string `json:"date_signature,omitempty"`
		DatePublication string `json:"date_publication,omitempty"`
	}
	items := make([]item, len(forms))
	for i, f := range forms {
		if strings.TrimSpace(f.Titre) == "" || f.PDF == nil || len(f.PDF.Data) == 0 {
			return 0, fmt.Errorf("actes: item %d needs a title and a PDF", i)
		}
		items[i] = item{
			Titre:           strings.TrimSpace(f.Titre),
			Type:            f.Type,
			Service:         f.Service,
			DateSignature:   formatDate(f.DateSignature),
			DatePublication: formatDate(f.DatePublication),
		}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("items", string(encoded)); err != nil {
		return 0, err
	}
	for i, f := range forms {
		// The API pairs files with items by this name.
		if err := writePDF(mw, "files", fmt.Sprintf("pdf_%d.pdf", i), f.PDF.Data); err != nil {
			return 0, err
		}
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("/admin/actes/bulk", nil), &buf, mw.FormDataContentType(), &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// AnalysePDF asks the API to extract text, date, service and type from a PDF
// before it is uploaded.
func (c *Client) AnalysePDF(ctx context.Context, pdf Upload) (Analysis, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := writePDF(mw, "pdf", pdf.Name, pdf.Data); err != nil {
		return Analysis{}, err
	}
	if err := mw.Close(); err != nil {
		return Analysis{}, err
	}
	var out Analysis
	if err := c.do(ctx, http.MethodPost, c.endpoint("/admin/analyse-pdf", nil), &buf, mw.FormDataContentType(), &out); err != nil {
		return Analysis{}, err
	}
	out.FulltextExcerpt = strings.TrimSpace(out.FulltextExcerpt)
	return out, nil
}

func (f ActeForm) multipart() (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{"titre", strings.TrimSpace(f.Titre)},
		{"type", strings.TrimSpace(f.Type)},
		{"service", strings.TrimSpace(f.Service)},
		{"date_signature", formatDate(f.DateSignature)},
		{"date_publication", formatDate(f.DatePublication)},
		{"statut", strings.TrimSpace(f.Statut)},
		{"resume", strings.TrimSpace(f.Resume)},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		if err := mw.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}
	if f.PDF != nil && len(f.PDF.Data) > 0 {
		if err := writePDF(mw, "pdf", f.PDF.Name, f.PDF.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func writePDF(mw *multipart.Writer, field, name string, data []byte) error {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		name = "document.pdf"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
