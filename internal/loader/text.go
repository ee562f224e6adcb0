package loader

import (
	"fmt"
	"unicode/utf8"

	"github.com/kestrel-labs/docqa/internal/domain"
)

// extractPlainText validates and returns a text file's content.
func extractPlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: file is not valid UTF-8 text", domain.ErrParse)
	}
	return string(data), nil
}
