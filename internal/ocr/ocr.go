// Package ocr holds the document-conversion collaborators: PDF to text for
// the text extraction path and PDF to page images for the vision path. Both
// are consumed by the extraction agents through the narrow interfaces below.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/jglaspey/supplement-cli/internal/config"
)

// TextExtractor extracts text content from PDF files.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// PageImage is one rendered document page.
type PageImage struct {
	Page      int    // 1-indexed
	MediaType string // "image/png" or "image/jpeg"
	Data      []byte
}

// ImageOptions controls page rendering for the vision path.
type ImageOptions struct {
	Resolution int    // DPI, default 150
	Format     string // "png" (default) or "jpeg"
	Quality    int    // jpeg quality 1-100, default 85
	MaxPages   int    // 0 = all pages
}

func (o ImageOptions) withDefaults() ImageOptions {
	if o.Resolution <= 0 {
		o.Resolution = 150
	}
	if o.Format == "" {
		o.Format = "png"
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 85
	}
	return o
}

// MediaType returns the MIME type for the configured format.
func (o ImageOptions) MediaType() string {
	if o.Format == "jpeg" || o.Format == "jpg" {
		return "image/jpeg"
	}
	return "image/png"
}

// ImageConverter renders PDF pages as images.
type ImageConverter interface {
	ConvertToImages(ctx context.Context, pdfPath string, opts ImageOptions) ([]PageImage, error)
}

// NewTextExtractor creates a TextExtractor based on config.
func NewTextExtractor(cfg config.OCRConfig) (TextExtractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
