package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/storage"
)

// Document is the YAML fixture format:
//
//	files:
//	  - id: f1
//	    name: main.go
//	dependencies:
//	  - dependency: P1
//	    dependent: P2
//	versions:
//	  - file: f1
//	    md5hash: deadbeef
type Document struct {
	Files        []FileFixture           `yaml:"files"`
	Dependencies []collab.DependencyEdge `yaml:"dependencies"`
	Versions     []VersionFixture        `yaml:"versions"`
}

// FileFixture declares a file record
type FileFixture struct {
	ID   collab.FileID `yaml:"id"`
	Name string        `yaml:"name"`
}

// VersionFixture declares a pre-existing file version
type VersionFixture struct {
	File collab.FileID      `yaml:"file"`
	Hash collab.ContentHash `yaml:"md5hash"`
}

// Writer is the storage surface fixtures are written through
type Writer interface {
	storage.EdgeWriter
	storage.FileRepository
	storage.VersionRepository
}

// Result counts what an import touched and how much of it was new
type Result struct {
	Files            int `json:"files"`
	Edges            int `json:"edges"`
	EdgesInserted    int `json:"edges_inserted"`
	Versions         int `json:"versions"`
	VersionsInserted int `json:"versions_inserted"`
}

// Parse decodes a fixture document. Unknown keys are rejected.
func Parse(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks that every record carries its identifiers
func (d *Document) Validate() error {
	for i, f := range d.Files {
		if f.ID == "" {
			return fmt.Errorf("files[%d]: id is required", i)
		}
	}
	for i, e := range d.Dependencies {
		if e.Dependency == "" || e.Dependent == "" {
			return fmt.Errorf("dependencies[%d]: dependency and dependent are required", i)
		}
	}
	for i, v := range d.Versions {
		if v.File == "" || v.Hash == "" {
			return fmt.Errorf("versions[%d]: file and md5hash are required", i)
		}
	}
	return nil
}

// Apply writes the document: files, then edges, then versions. Every write
// is idempotent, so applying the same document twice changes nothing.
func Apply(ctx context.Context, doc *Document, w Writer) (Result, error) {
	var res Result

	for _, f := range doc.Files {
		if err := w.CreateFile(ctx, &collab.File{ID: f.ID, Name: f.Name}); err != nil {
			return res, fmt.Errorf("failed to create file %s: %w", f.ID, err)
		}
		res.Files++
	}

	for _, e := range doc.Dependencies {
		inserted, err := w.InsertEdgeIfAbsent(ctx, e)
		if err != nil {
			return res, fmt.Errorf("failed to insert edge %s -> %s: %w", e.Dependent, e.Dependency, err)
		}
		res.Edges++
		if inserted {
			res.EdgesInserted++
		}
	}

	for _, v := range doc.Versions {
		inserted, err := w.InsertVersionIfAbsent(ctx, &collab.FileVersion{File: v.File, Hash: v.Hash})
		if err != nil {
			return res, fmt.Errorf("failed to insert version %s: %w", collab.VersionRef{File: v.File, Hash: v.Hash}, err)
		}
		res.Versions++
		if inserted {
			res.VersionsInserted++
		}
	}

	return res, nil
}

// LoadFile parses path and applies it to w
func LoadFile(ctx context.Context, path string, w Writer) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read fixtures: %w", err)
	}

	doc, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	return Apply(ctx, doc, w)
}
