package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the canonical runtime folder layout under the DB path.
type Paths struct {
	Store     string
	State     string
	Crash     string
	Abort     string
	Retention string
}

// PathsVar is populated by Init during startup.
var PathsVar Paths

// Init derives and creates the runtime folder layout under dbPath. Paths
// must not be symlinks and are created with restrictive permissions.
func Init(dbPath string) error {
	p := Paths{
		Store:     filepath.Join(dbPath, "store"),
		State:     filepath.Join(dbPath, "state"),
		Crash:     filepath.Join(dbPath, "state", "crash"),
		Abort:     filepath.Join(dbPath, "state", "abort"),
		Retention: filepath.Join(dbPath, "state", "retention"),
	}
	for _, dir := range []string{p.Store, p.Crash, p.Abort, p.Retention} {
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", dir, err)
		}
	}
	PathsVar = p
	return nil
}
