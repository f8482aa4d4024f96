package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quote/internal/sales/quotations"
)

//go:embed templates/*.html
var templateFS embed.FS

// HTMLRenderer converts an HTML document into PDF bytes.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string, page Page) ([]byte, error)
}

// QuotationRenderer produces printable quotation documents.
type QuotationRenderer struct {
	renderer HTMLRenderer
	tmpl     *template.Template
}

// NewQuotationRenderer parses the embedded quotation template.
func NewQuotationRenderer(renderer HTMLRenderer) (*QuotationRenderer, error) {
	tmpl, err := template.New("quotation.html").Funcs(template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
		"date":  func(t time.Time) string { return t.Format(time.DateOnly) },
	}).ParseFS(templateFS, "templates/quotation.html")
	if err != nil {
		return nil, fmt.Errorf("parse quotation template: %w", err)
	}
	return &QuotationRenderer{renderer: renderer, tmpl: tmpl}, nil
}

// RenderQuotationHTML executes the quotation template.
func (r *QuotationRenderer) RenderQuotationHTML(q *quotations.Quotation) (string, error) {
	if q == nil {
		return "", fmt.Errorf("render quotation: nil quotation")
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, q); err != nil {
		return "", fmt.Errorf("render quotation %s: %w", q.Number, err)
	}
	return buf.String(), nil
}

// RenderQuotationPDF renders q to PDF through the HTML renderer.
func (r *QuotationRenderer) RenderQuotationPDF(ctx context.Context, q *quotations.Quotation) ([]byte, error) {
	html, err := r.RenderQuotationHTML(q)
	if err != nil {
		return nil, err
	}
	pdf, err := r.renderer.RenderHTML(ctx, html, A4)
	if err != nil {
		return nil, fmt.Errorf("render quotation %s pdf: %w", q.Number, err)
	}
	return pdf, nil
}
