package stdlib

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/xyproto/env/v2"

	"github.com/chazu/tern/artifact"
)

// EnvRuntime names the environment variable that points at a prebuilt
// runtime artifact, bypassing the cache.
const EnvRuntime = "TERN_RUNTIME"

var log = commonlog.GetLogger("tern.stdlib")

var buildMu sync.Mutex

// Locate returns the location of the runtime artifact. TERN_RUNTIME wins
// when set; otherwise the artifact for the current sources is taken from
// the user cache directory, and built there first if missing.
func Locate() (string, error) {
	// env caches the environment; pick up variables set since the last call.
	env.Load()
	if path := env.Str(EnvRuntime); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%s: %w", EnvRuntime, err)
		}
		return path, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate runtime: %w", err)
	}
	return LocateIn(filepath.Join(dir, "tern"))
}

// LocateIn returns the runtime artifact for the current sources inside dir,
// building it when it does not exist yet.
func LocateIn(dir string) (string, error) {
	path := filepath.Join(dir, "std-"+Hash()[:16]+artifact.ArchiveExt)

	buildMu.Lock()
	defer buildMu.Unlock()

	_, err := os.Stat(path)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("locate runtime: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("locate runtime: %w", err)
	}

	if err := Build(path); err != nil {
		return "", err
	}
	log.Debugf("cached runtime artifact at %s", path)
	return path, nil
}
