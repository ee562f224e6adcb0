package domain

// SourceKind distinguishes uploaded files from fetched URLs.
type SourceKind string

const (
	// SourceFile is an uploaded document.
	SourceFile SourceKind = "file"
	// SourceURL is a fetched web page.
	SourceURL SourceKind = "url"
)

// Document is the raw text extracted from one ingested source.
// It exists only between loading and splitting and is not persisted.
type Document struct {
	ID     string
	Source string // file name or URL
	Kind   SourceKind
	Text   string
}

// Chunk is a contiguous piece of a Document, the unit of embedding
// and retrieval. Immutable after creation.
type Chunk struct {
	Source string // back-reference to the Document source
	Index  int    // ordinal position within the Document
	Offset int    // byte offset of the chunk start in the Document text
	Text   string
}
