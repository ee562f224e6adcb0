package loader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/kestrel-labs/docqa/internal/domain"
)

// extractPDF pulls plain text from a PDF byte slice.
// Encrypted or corrupted files surface as ErrParse.
func extractPDF(data []byte) (string, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", domain.ErrParse, err)
	}

	plain, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extract pdf text: %v", domain.ErrParse, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", domain.ErrParse, err)
	}
	return buf.String(), nil
}
