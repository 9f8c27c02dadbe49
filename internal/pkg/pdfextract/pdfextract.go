// Package pdfextract pulls plain text out of PDF attachments so their
// content can be embedded into a model prompt.
package pdfextract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// ExtractText returns the plain text of the PDF read from r. A PDF with no
// extractable text yields an empty string and no error.
func ExtractText(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf failed: %w", err)
	}
	if len(raw) == 0 {
		return "", nil
	}

	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("parse pdf failed: %w", err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text failed: %w", err)
	}

	var out bytes.Buffer
	if _, err := io.Copy(&out, plain); err != nil {
		return "", fmt.Errorf("extract pdf text failed: %w", err)
	}
	return out.String(), nil
}
