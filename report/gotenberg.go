package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout  = 30 * time.Second
	chromiumHTML    = "/forms/chromium/convert/html"
	errorBodyLimit  = 512
	entryDocument   = "index.html"
	formFieldFiles  = "files"
	healthcheckPath = "/health"
)

// RenderError is returned when Gotenberg answers with a non-2xx status.
type RenderError struct {
	Status int
	Detail string
}

func (e *RenderError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("gotenberg: status %d", e.Status)
	}
	return fmt.Sprintf("gotenberg: status %d: %s", e.Status, e.Detail)
}

// Page describes the Chromium print settings. Sizes are in inches; zero
// values fall back to Gotenberg's defaults.
type Page struct {
	Width, Height float64
	Margin        float64
	Landscape     bool
}

// A4 portrait with half-inch margins.
var A4 = Page{Width: 8.27, Height: 11.7, Margin: 0.5}

func (p Page) fields() map[string]string {
	out := map[string]string{"preferCssPageSize": "true"}
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	if p.Width > 0 && p.Height > 0 {
		out["paperWidth"] = format(p.Width)
		out["paperHeight"] = format(p.Height)
	}
	if p.Margin > 0 {
		for _, side := range []string{"marginTop", "marginBottom", "marginLeft", "marginRight"} {
			out[side] = format(p.Margin)
		}
	}
	if p.Landscape {
		out["landscape"] = "true"
	}
	return out
}

// Client talks to a Gotenberg instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds a client for the Gotenberg instance at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping calls the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthcheckPath, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// RenderHTML converts an HTML document to PDF with the Chromium route.
func (c *Client) RenderHTML(ctx context.Context, html string, page Page) ([]byte, error) {
	body, contentType, err := htmlForm(html, page)
	if err != nil {
		return nil, fmt.Errorf("gotenberg: build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chromiumHTML, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

func htmlForm(html string, page Page) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(formFieldFiles, entryDocument)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, "", err
	}
	for name, value := range page.fields() {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &RenderError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}
	return io.ReadAll(resp.Body)
}

// IsUnavailable reports whether err means Gotenberg could not be reached or
// answered with a server error.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var re *RenderError
	if errors.As(err, &re) {
		return re.Status >= 500
	}
	return true
}
