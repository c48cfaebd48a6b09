// Package ingest converts book files into chunk collections.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrIngestion wraps every per-document failure.
	ErrIngestion         = errors.New("ingestion failed")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrNoText            = errors.New("no text extracted")
	// ErrDuplicateOutput marks a document whose chunk file name was already
	// produced by an earlier document in the same run.
	ErrDuplicateOutput = errors.New("chunk file already written in this run")
)

// Document is a raw source file.
type Document struct {
	Name string // file name or repository-relative path
	Data []byte
}

// Section is a run of text that shares one chapter heading.
type Section struct {
	Heading string // empty when the section has no heading of its own
	Text    string
	HTML    string // original markup, when the source was HTML
}

// Extracted is the format-independent result of reading a document.
type Extracted struct {
	Title    string
	Sections []Section
}

// Extractor reads one document format.
type Extractor interface {
	Extract(doc Document) (*Extracted, error)
}

// registry maps lower-case file extensions to extractors.
var registry = map[string]Extractor{
	".txt":      textExtractor{},
	".text":     textExtractor{},
	".md":       newMarkdownExtractor(),
	".markdown": newMarkdownExtractor(),
	".html":     htmlExtractor{},
	".htm":      htmlExtractor{},
	".xhtml":    htmlExtractor{},
	".epub":     epubExtractor{},
	".pdf":      pdfExtractor{},
}

// Supported reports whether name has an extension the ingestor can read.
func Supported(name string) bool {
	_, ok := registry[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extensions lists the supported extensions in sorted order.
func Extensions() []string {
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func extractorFor(name string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(name))
	e, ok := registry[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return e, nil
}
