package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// archiveVersion is the current archive layout version.
const archiveVersion uint16 = 1

// archive is the CBOR document stored in a .tlib file.
type archive struct {
	Version uint16            `cbor:"1,keyasint"`
	Classes map[string][]byte `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type archiveArtifact struct {
	path    string
	classes map[string][]byte
}

func openArchive(path string) (*archiveArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	var a archive
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("artifact %s: unmarshal archive: %w", path, err)
	}
	if a.Version > archiveVersion {
		return nil, fmt.Errorf("artifact %s: archive version %d is newer than supported version %d", path, a.Version, archiveVersion)
	}
	if a.Classes == nil {
		a.Classes = map[string][]byte{}
	}
	return &archiveArtifact{path: path, classes: a.Classes}, nil
}

func (a *archiveArtifact) Load(name string) ([]byte, error) {
	data, ok := a.classes[name]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", name, a.path, ErrNotFound)
	}
	return slices.Clone(data), nil
}

func (a *archiveArtifact) Names() ([]string, error) {
	names := make([]string, 0, len(a.classes))
	for name := range a.classes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (a *archiveArtifact) Location() string { return a.path }

func (a *archiveArtifact) Close() error { return nil }

// writeArchive encodes the classes and replaces path atomically.
func writeArchive(path string, classes map[string][]byte) error {
	data, err := cborEncMode.Marshal(&archive{Version: archiveVersion, Classes: classes})
	if err != nil {
		return fmt.Errorf("artifact %s: marshal archive: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tlib-*")
	if err != nil {
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	return nil
}
