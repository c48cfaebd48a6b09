package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
)

var errBadContainer = errors.New("invalid epub container")

type epubExtractor struct{}

// Extract walks the spine of the first rootfile, one section per XHTML item.
func (epubExtractor) Extract(doc Document) (*Extracted, error) {
	book, err := epub.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadContainer, err)
	}
	if len(book.Rootfiles) == 0 {
		return nil, fmt.Errorf("%w: %w", errBadContainer, epub.ErrNoRootfile)
	}
	pkg := book.Rootfiles[0]

	ex := &Extracted{Title: strings.TrimSpace(pkg.Title)}
	for _, ref := range pkg.Spine.Itemrefs {
		if ref.Item == nil || !isXHTML(ref.MediaType) {
			continue
		}
		data, err := readItem(ref.Item)
		if err != nil {
			return nil, err
		}
		page, err := parseHTML(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", ref.HREF, err)
		}
		if strings.TrimSpace(page.section.Text) == "" {
			continue
		}
		ex.Sections = append(ex.Sections, page.section)
	}
	return ex, nil
}

func isXHTML(mediaType string) bool {
	return mediaType == "application/xhtml+xml" || mediaType == "text/html"
}

func readItem(item *epub.Item) ([]byte, error) {
	rc, err := item.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", item.HREF, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
