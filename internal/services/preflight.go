package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PreflightPayload rejects obviously broken documents before they consume a
// slot in the rate-limited batch. PDFs are structurally validated; image
// payloads only need to be non-empty, the model tolerates those. A preflight
// failure is a non-retryable error for the item.
func PreflightPayload(data []byte, mimeType string) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	if !strings.EqualFold(mimeType, "application/pdf") {
		return nil
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	pageCount, err := api.PageCount(bytes.NewReader(data), cfg)
	if err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	if pageCount == 0 {
		return fmt.Errorf("invalid PDF: no pages")
	}
	return nil
}
