// Package artifact reads and writes library artifacts: packaged sets of
// encoded classes that live on a classpath.
//
// Three layouts are supported, chosen by the location:
//
//   - *.tlib: a CBOR archive (canonical encoding)
//   - *.tdb:  a SQLite database with a single classes table
//   - a directory of *.tclass files laid out by package
package artifact

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
)

// Extensions of the supported file layouts.
const (
	ArchiveExt  = ".tlib"
	DatabaseExt = ".tdb"
	ClassExt    = ".tclass"
)

// ErrNotFound is returned by Load for classes the artifact does not contain.
var ErrNotFound = errors.New("class not in artifact")

// Artifact is an opened library artifact.
type Artifact interface {
	// Load returns the encoded class, or an error wrapping ErrNotFound.
	Load(name string) ([]byte, error)
	// Names lists the contained classes in sorted order.
	Names() ([]string, error)
	// Location is the path the artifact was opened from.
	Location() string
	Close() error
}

// Source is anything that can enumerate and return encoded classes, such as
// a compiled unit.
type Source interface {
	Names() iter.Seq[string]
	Get(name string) ([]byte, error)
}

// Open opens the artifact at path.
func Open(path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	if info.IsDir() {
		return openDir(path), nil
	}
	switch filepath.Ext(path) {
	case ArchiveExt:
		return openArchive(path)
	case DatabaseExt:
		return openDatabase(path)
	}
	return nil, fmt.Errorf("artifact %s: unknown layout (want %s, %s or a directory)", path, ArchiveExt, DatabaseExt)
}

// Write stores every class of src at path, choosing the layout from the
// extension. A path without a known extension is written as a directory.
func Write(path string, src Source) error {
	classes := make(map[string][]byte)
	for name := range src.Names() {
		data, err := src.Get(name)
		if err != nil {
			return fmt.Errorf("artifact %s: read %s: %w", path, name, err)
		}
		classes[name] = data
	}
	switch filepath.Ext(path) {
	case ArchiveExt:
		return writeArchive(path, classes)
	case DatabaseExt:
		return writeDatabase(path, classes)
	}
	return writeDir(path, classes)
}
