// Package workspace provides per-request scratch directories.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Prefix is the name prefix of every workspace directory.
const Prefix = "voice-transfer-"

// active holds the directories of workspaces that are not closed yet.
var active sync.Map

// InUse reports whether dir belongs to a workspace of this process that has
// not been closed.
func InUse(dir string) bool {
	_, ok := active.Load(filepath.Clean(dir))
	return ok
}

// Workspace is a temporary directory owned by a single request.
type Workspace struct {
	dir string
}

// New creates a workspace under root. An empty root uses os.TempDir.
func New(root string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, Prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	active.Store(filepath.Clean(dir), struct{}{})
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the workspace directory. Any directory components in
// name are dropped so callers cannot escape the workspace.
func (w *Workspace) Path(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		name = "file"
	}
	return filepath.Join(w.dir, name)
}

// Close removes the workspace and everything in it. It is safe to call more
// than once.
func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	err := os.RemoveAll(w.dir)
	active.Delete(filepath.Clean(w.dir))
	w.dir = ""
	return err
}
