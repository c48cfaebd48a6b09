package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FileSuffix is appended to a source document's stem to name its chunk file.
const FileSuffix = "_rag.json"

// ErrEmptyCollection is returned when asked to persist a collection with no chunks.
var ErrEmptyCollection = errors.New("collection has no chunks")

// Store persists one JSON file per source document in a directory.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore returns a store rooted at dir. The directory is created on first write.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{dir: dir, logger: logger.With().Str("component", "chunk_store").Logger()}
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor returns the chunk file path for a source document name.
func (s *Store) PathFor(source string) string {
	return filepath.Join(s.dir, Stem(source)+FileSuffix)
}

// Stem strips directories and the final extension from a source name.
func Stem(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Write persists c for the given source document, replacing any previous file.
func (s *Store) Write(source string, c *Collection) (string, error) {
	if c == nil || len(c.Chunks) == 0 {
		return "", ErrEmptyCollection
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create chunk dir: %w", err)
	}

	c.TotalChunks = len(c.Chunks)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode collection: %w", err)
	}

	path := s.PathFor(source)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("replace %s: %w", path, err)
	}

	s.logger.Debug().Str("path", path).Int("chunks", c.TotalChunks).Msg("Wrote chunk file")
	return path, nil
}

// LoadAll reads every chunk file in lexical file-name order.
// A missing directory yields no collections. Files that cannot be read or
// parsed, or that hold no usable chunks, are skipped with a warning.
func (s *Store) LoadAll() ([]Collection, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Str("dir", s.dir).Msg("Chunk directory not found")
			return nil, nil
		}
		return nil, fmt.Errorf("read chunk dir: %w", err)
	}

	var collections []Collection
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(s.dir, name)

		c, err := s.readFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Skipping chunk file")
			continue
		}
		collections = append(collections, *c)
	}

	s.logger.Info().Int("files", len(collections)).Str("dir", s.dir).Msg("Loaded chunk files")
	return collections, nil
}

func (s *Store) readFile(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	kept := c.Chunks[:0]
	for _, ch := range c.Chunks {
		if strings.TrimSpace(ch.Content) == "" {
			continue
		}
		if ch.Metadata.BookTitle == "" {
			ch.Metadata.BookTitle = c.BookTitle
		}
		if ch.Metadata.Chapter == "" {
			ch.Metadata.Chapter = DefaultChapter
		}
		kept = append(kept, ch)
	}
	c.Chunks = kept
	if len(c.Chunks) == 0 {
		return nil, ErrEmptyCollection
	}

	if c.TotalChunks != len(c.Chunks) {
		s.logger.Warn().
			Str("path", path).
			Int("declared", c.TotalChunks).
			Int("actual", len(c.Chunks)).
			Msg("total_chunks disagrees with chunk list")
		c.TotalChunks = len(c.Chunks)
	}
	return &c, nil
}
