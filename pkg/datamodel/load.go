package datamodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a data model document.
type Format string

// Supported document formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath returns the document format matching the file extension. JSON is the default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes a data model document. Unknown fields are rejected.
func Parse(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("couldn't parse YAML data model: %v", err)
		}
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("couldn't parse JSON data model: %v", err)
		}
	default:
		return nil, fmt.Errorf("unsupported data model format %q", format)
	}
	return &doc, nil
}

// LoadFile reads a single data model document. Its packages are not expanded.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read data model: %w", err)
	}

	doc, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.source = path
	for i := range doc.Models {
		doc.Models[i].source = path
	}
	return doc, nil
}

// Load reads the project data model at path, expands its package patterns and compiles the merged schema.
//
// Package patterns are doublestar globs relative to the project document directory.
func Load(path string) (*Schema, error) {
	root, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	docs := []*Document{root}
	baseDir := filepath.Dir(path)
	seen := map[string]struct{}{filepath.Clean(path): {}}

	for _, pattern := range root.Packages {
		matches, err := doublestar.Glob(os.DirFS(baseDir), filepath.ToSlash(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid package pattern %q: %v", pattern, err)
		}
		if len(matches) == 0 {
			slog.Warn("Package pattern matched no data model", "pattern", pattern, "dir", baseDir)
		}
		slices.Sort(matches)

		for _, m := range matches {
			p := filepath.Join(baseDir, filepath.FromSlash(m))
			if _, ok := seen[filepath.Clean(p)]; ok {
				continue
			}
			seen[filepath.Clean(p)] = struct{}{}

			doc, err := LoadFile(p)
			if err != nil {
				return nil, err
			}
			if len(doc.Packages) > 0 {
				slog.Warn("Nested packages are ignored in package data models", "file", p)
			}
			slog.Debug("Loaded package data model", "file", p, "models", len(doc.Models))
			docs = append(docs, doc)
		}
	}

	return Merge(docs...)
}

// Merge merges documents into a compiled Schema.
//
// Model names and table names must be unique across all documents.
func Merge(docs ...*Document) (*Schema, error) {
	s := &Schema{byName: make(map[string]*Model)}
	tables := make(map[string]*Model)

	for _, doc := range docs {
		for _, decl := range doc.Models {
			m := decl
			m.Attributes = slices.Clone(decl.Attributes)
			m.Relationships = slices.Clone(decl.Relationships)
			if m.source == "" {
				m.source = doc.source
			}

			if prev, ok := s.byName[m.Name]; ok {
				return nil, fmt.Errorf("%w: %q declared in %s and %s", ErrDuplicateModel, m.Name, sourceName(prev), sourceName(&m))
			}
			if m.Table == "" {
				m.Table = SnakeCase(m.Name)
			}
			if prev, ok := tables[m.Table]; ok {
				return nil, fmt.Errorf("%w: table %q used by %q (%s) and %q (%s)", ErrDuplicateModel, m.Table, prev.Name, sourceName(prev), m.Name, sourceName(&m))
			}

			s.models = append(s.models, &m)
			s.byName[m.Name] = &m
			tables[m.Table] = &m
		}
	}

	if err := s.compile(); err != nil {
		return nil, err
	}
	return s, nil
}

func sourceName(m *Model) string {
	if m.source == "" {
		return "<inline>"
	}
	return m.source
}

// compile normalizes and validates every model of the schema.
func (s *Schema) compile() error {
	var errs []error
	for _, m := range s.models {
		if err := s.normalize(m); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, m := range s.models {
		if err := s.normalizeRelationships(m); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, m := range s.models {
		if err := s.validate(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
