package invoice

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/invoice.html
var templatesFS embed.FS

const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypePDF  = "application/pdf"
)

// Document はレンダリング済みの請求書
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Renderer は請求書を文書に変換する
type Renderer interface {
	Render(ctx context.Context, inv *Invoice) (*Document, error)
	// Extension は生成する文書の拡張子
	Extension() string
}

// Converter は HTML を PDF に変換する
type Converter interface {
	ToPDF(ctx context.Context, html []byte) ([]byte, error)
}

// HTMLRenderer は固定レイアウトの HTML 請求書を生成する
type HTMLRenderer struct {
	brand string
	tmpl  *template.Template
}

type templateData struct {
	Brand   string
	TaxRate string
	Invoice *Invoice
}

// NewHTMLRenderer は新しい HTMLRenderer を作成する
func NewHTMLRenderer(brand, currency string) (*HTMLRenderer, error) {
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string { return FormatCurrency(currency, d) },
		"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	}
	tmpl, err := template.New("invoice.html").Funcs(funcs).ParseFS(templatesFS, "templates/invoice.html")
	if err != nil {
		return nil, fmt.Errorf("請求書テンプレートの読み込みに失敗: %w", err)
	}
	return &HTMLRenderer{brand: brand, tmpl: tmpl}, nil
}

// RenderHTML は HTML を生成する
func (h *HTMLRenderer) RenderHTML(inv *Invoice) ([]byte, error) {
	if inv == nil {
		return nil, ErrMissingReferenceData
	}
	var buf bytes.Buffer
	data := templateData{Brand: h.brand, TaxRate: TaxRatePercent(), Invoice: inv}
	if err := h.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("請求書のレンダリングに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// Render は HTML 文書を返す
func (h *HTMLRenderer) Render(_ context.Context, inv *Invoice) (*Document, error) {
	html, err := h.RenderHTML(inv)
	if err != nil {
		return nil, err
	}
	return &Document{
		Filename:    Filename(inv.ReservationID, h.Extension()),
		ContentType: ContentTypeHTML,
		Data:        html,
	}, nil
}

func (h *HTMLRenderer) Extension() string { return "html" }

var _ Renderer = (*HTMLRenderer)(nil)

// PDFRenderer は HTML を PDF に変換して返す
type PDFRenderer struct {
	html      *HTMLRenderer
	converter Converter
}

// NewPDFRenderer は新しい PDFRenderer を作成する
func NewPDFRenderer(html *HTMLRenderer, converter Converter) *PDFRenderer {
	return &PDFRenderer{html: html, converter: converter}
}

func (p *PDFRenderer) Extension() string { return "pdf" }

// Render は PDF 文書を返す
func (p *PDFRenderer) Render(ctx context.Context, inv *Invoice) (*Document, error) {
	html, err := p.html.RenderHTML(inv)
	if err != nil {
		return nil, err
	}
	pdf, err := p.converter.ToPDF(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("PDF変換に失敗: %w", err)
	}
	return &Document{
		Filename:    Filename(inv.ReservationID, p.Extension()),
		ContentType: ContentTypePDF,
		Data:        pdf,
	}, nil
}

var _ Renderer = (*PDFRenderer)(nil)
