package report

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quote/internal/sales/quotations"
)

var _ quotations.PDFRenderer = (*QuotationRenderer)(nil)

type gotenbergStub struct {
	server   *httptest.Server
	received string
	form     map[string]string
	status   int
}

func newGotenbergStub(t *testing.T) *gotenbergStub {
	t.Helper()
	stub := &gotenbergStub{status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(stub.status)
	})
	mux.HandleFunc("/forms/chromium/convert/html", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "index.html" {
			http.Error(w, "missing index.html", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(file)
		stub.received = string(body)
		stub.form = map[string]string{}
		for key, values := range r.MultipartForm.Value {
			stub.form[key] = values[0]
		}
		if stub.status != http.StatusOK {
			http.Error(w, "chromium crashed", stub.status)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 stub"))
	})
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func sampleQuotation() *quotations.Quotation {
	created := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	return &quotations.Quotation{
		ID:           12,
		Number:       "QT-2610-0012",
		Status:       quotations.QuotationStatusApproved,
		Currency:     "USD",
		ValidUntil:   created.AddDate(0, 0, 30),
		Subtotal:     decimal.RequireFromString("20"),
		TaxRate:      decimal.RequireFromString("10"),
		TaxAmount:    decimal.RequireFromString("2"),
		Discount:     decimal.Zero,
		ShippingCost: decimal.RequireFromString("5"),
		TotalAmount:  decimal.RequireFromString("27"),
		Terms:        "Prices exclude <import> duties",
		PaymentTerms: quotations.PaymentTermsNet30,
		Revision:     2,
		CreatedAt:    created,
		Creator:      &quotations.UserRef{ID: 7, Email: "rep@test.local"},
		Items: []quotations.Item{{
			LineNo: 1, ProductSKU: "WID-1", ProductName: "Widget", Quantity: 2,
			UnitPrice: decimal.RequireFromString("10"), Total: decimal.RequireFromString("20"),
		}},
	}
}

func TestRenderQuotationHTML(t *testing.T) {
	renderer, err := NewQuotationRenderer(nil)
	require.NoError(t, err)

	html, err := renderer.RenderQuotationHTML(sampleQuotation())
	require.NoError(t, err)
	assert.Contains(t, html, "Quotation QT-2610-0012")
	assert.Contains(t, html, "2026-11-15")
	assert.Contains(t, html, "USD 27.00")
	assert.Contains(t, html, "WID-1")
	assert.Contains(t, html, "rep@test.local")
	assert.Contains(t, html, "&lt;import&gt;")

	_, err = renderer.RenderQuotationHTML(nil)
	assert.Error(t, err)
}

func TestRenderQuotationPDFThroughGotenberg(t *testing.T) {
	stub := newGotenbergStub(t)
	renderer, err := NewQuotationRenderer(NewClient(stub.server.URL + "/"))
	require.NoError(t, err)

	pdf, err := renderer.RenderQuotationPDF(context.Background(), sampleQuotation())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))
	assert.Contains(t, stub.received, "QT-2610-0012")
	assert.Equal(t, "8.27", stub.form["paperWidth"])
	assert.Equal(t, "0.50", stub.form["marginLeft"])
	assert.Equal(t, "true", stub.form["preferCssPageSize"])
	assert.NotContains(t, stub.form, "landscape")
}

func TestRenderQuotationPDFFailure(t *testing.T) {
	stub := newGotenbergStub(t)
	stub.status = http.StatusInternalServerError
	renderer, err := NewQuotationRenderer(NewClient(stub.server.URL))
	require.NoError(t, err)

	_, err = renderer.RenderQuotationPDF(context.Background(), sampleQuotation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "chromium crashed")
	assert.Contains(t, err.Error(), "QT-2610-0012")
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, http.StatusInternalServerError, renderErr.Status)
	assert.True(t, IsUnavailable(err))
}

func TestIsUnavailable(t *testing.T) {
	assert.False(t, IsUnavailable(nil))
	assert.False(t, IsUnavailable(&RenderError{Status: http.StatusBadRequest}))
	assert.True(t, IsUnavailable(&RenderError{Status: http.StatusBadGateway}))
	assert.True(t, IsUnavailable(errors.New("dial tcp: connection refused")))
}

func TestPingHandler(t *testing.T) {
	stub := newGotenbergStub(t)
	r := chi.NewRouter()
	NewHandler(NewClient(stub.server.URL), nil).MountRoutes(r)

	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, res.Code)

	stub.status = http.StatusServiceUnavailable
	res = httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
}
