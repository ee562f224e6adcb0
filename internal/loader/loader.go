// Package loader extracts raw text from uploaded documents and web pages.
package loader

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrel-labs/docqa/internal/domain"
)

// Source is one ingestion input: either an uploaded file or a URL.
type Source struct {
	Name string // file name; empty for URLs
	URL  string // fetch target; empty for files
	Data []byte // file content; nil for URLs
}

// Kind reports whether the source is a file or a URL.
func (s Source) Kind() domain.SourceKind {
	if s.URL != "" {
		return domain.SourceURL
	}
	return domain.SourceFile
}

// Loader turns a Source into a Document.
type Loader struct {
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// New creates a Loader. fetchTimeout bounds URL downloads.
func New(fetchTimeout time.Duration, maxBytes int64, logger *zap.Logger) *Loader {
	return &Loader{
		client:   &http.Client{Timeout: fetchTimeout},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Load extracts text from the source. Format dispatch is by file extension
// for uploads; URLs are fetched and stripped of HTML markup.
func (l *Loader) Load(ctx context.Context, src Source) (domain.Document, error) {
	if src.URL != "" {
		return l.loadURL(ctx, src.URL)
	}

	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(src.Name)); ext {
	case ".pdf":
		text, err = extractPDF(src.Data)
	case ".txt", ".text", ".md":
		text, err = extractPlainText(src.Data)
	case ".docx":
		text, err = extractDOCX(src.Data)
	default:
		return domain.Document{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return domain.Document{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Document{}, fmt.Errorf("%w: no text in %s: %w", domain.ErrParse, src.Name, domain.ErrEmptyDocument)
	}

	l.logger.Debug("Document loaded",
		zap.String("source", src.Name),
		zap.Int("bytes", len(src.Data)),
		zap.Int("text_len", len(text)),
	)

	return domain.Document{
		ID:     uuid.New().String(),
		Source: src.Name,
		Kind:   domain.SourceFile,
		Text:   text,
	}, nil
}
