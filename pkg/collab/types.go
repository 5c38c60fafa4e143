package collab

import (
	"fmt"
	"strings"
	"time"
)

// EntityID identifies any record that participates in dependency relationships
type EntityID string

// FileID identifies a file record
type FileID string

// ContentHash is an opaque caller-supplied token naming one version of a file's content
type ContentHash string

// DependencyEdge means Dependent requires Dependency
type DependencyEdge struct {
	Dependency EntityID `json:"dependency" yaml:"dependency"`
	Dependent  EntityID `json:"dependent" yaml:"dependent"`
}

// IsSelfLoop reports whether the edge points back at its own endpoint
func (e DependencyEdge) IsSelfLoop() bool {
	return e.Dependency == e.Dependent
}

// File is a file record. Versions can only attach to existing files.
type File struct {
	ID        FileID    `json:"id" yaml:"id"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// FileVersion is unique per (File, Hash) and permanent once stored
type FileVersion struct {
	File      FileID      `json:"file"`
	Hash      ContentHash `json:"md5hash"`
	CreatedAt time.Time   `json:"created_at"`
}

// VersionRef names a version by its (file, hash) pair. It is comparable
// and can be used as a map key directly.
type VersionRef struct {
	File FileID
	Hash ContentHash
}

// Key is a string form of r that is distinct for distinct pairs, even when
// the file id or hash contain the separator.
func (r VersionRef) Key() string {
	return fmt.Sprintf("%d:%s/%s", len(r.File), r.File, r.Hash)
}

func (r VersionRef) String() string {
	return fmt.Sprintf("%s@%s", r.File, r.Hash)
}

// VersionKey returns the key a version is cached and locked under
func VersionKey(file FileID, hash ContentHash) string {
	return VersionRef{File: file, Hash: hash}.Key()
}

// ParseEntityIDs splits comma separated id lists, dropping blanks and
// surrounding whitespace. Order is preserved.
func ParseEntityIDs(values ...string) []EntityID {
	ids := make([]EntityID, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			ids = append(ids, EntityID(part))
		}
	}
	return ids
}
