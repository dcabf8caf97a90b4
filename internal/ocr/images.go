package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PdfToImages renders PDF pages via the pdftoppm CLI tool. pdfcpu validates
// the document and counts pages up front so unreadable input fails fast
// instead of producing a partial page set.
type PdfToImages struct {
	binPath string
}

// NewPdfToImages creates a PdfToImages converter. If binPath is empty,
// "pdftoppm" is used.
func NewPdfToImages(binPath string) *PdfToImages {
	if binPath == "" {
		binPath = "pdftoppm"
	}
	return &PdfToImages{binPath: binPath}
}

// ConvertToImages renders each page of the PDF to an image.
func (p *PdfToImages) ConvertToImages(ctx context.Context, pdfPath string, opts ImageOptions) ([]PageImage, error) {
	opts = opts.withDefaults()

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: open PDF %s", pdfPath)
	}
	pageCount, err := pdfapi.PageCount(f, nil)
	f.Close()
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: unreadable PDF %s", pdfPath)
	}
	if opts.MaxPages > 0 && pageCount > opts.MaxPages {
		zap.L().Debug("ocr: truncating page render",
			zap.String("pdf", pdfPath),
			zap.Int("pages", pageCount),
			zap.Int("max_pages", opts.MaxPages),
		)
		pageCount = opts.MaxPages
	}

	tmpDir, err := os.MkdirTemp("", "supplement-pages-*")
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create temp dir")
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck

	prefix := filepath.Join(tmpDir, "page")
	args := []string{
		"-r", fmt.Sprintf("%d", opts.Resolution),
		"-f", "1",
		"-l", fmt.Sprintf("%d", pageCount),
	}
	ext := ".png"
	if opts.Format == "jpeg" || opts.Format == "jpg" {
		args = append(args, "-jpeg", "-jpegopt", fmt.Sprintf("quality=%d", opts.Quality))
		ext = ".jpg"
	} else {
		args = append(args, "-png")
	}
	args = append(args, pdfPath, prefix)

	cmd := exec.CommandContext(ctx, p.binPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "ocr: pdftoppm failed for %s: %s", pdfPath, stderr.String())
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read rendered pages")
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			names = append(names, e.Name())
		}
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(names)

	images := make([]PageImage, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(tmpDir, name))
		if err != nil {
			return nil, eris.Wrapf(err, "ocr: read page image %s", name)
		}
		images = append(images, PageImage{
			Page:      i + 1,
			MediaType: opts.MediaType(),
			Data:      data,
		})
	}

	if len(images) == 0 {
		return nil, eris.Errorf("ocr: no pages rendered for %s", pdfPath)
	}
	return images, nil
}
