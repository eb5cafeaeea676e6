package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// File is a named piece of content to stage into a workspace.
type File struct {
	Name    string
	Content string
}

// Workspace is an isolated per-run directory holding staged source files.
// It exists for the duration of one subprocess and is removed by Close.
type Workspace struct {
	dir    string
	closed bool
}

// NewWorkspace creates a uniquely named directory under root (or the OS temp
// directory when root is empty) and writes each file into it verbatim.
// On any failure the partially created directory is removed and an error is
// returned; the caller must not launch a subprocess in that case.
func NewWorkspace(root, prefix string, files []File) (*Workspace, error) {
	dir, err := os.MkdirTemp(root, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating directory: %w", ErrWorkspace, err)
	}

	ws := &Workspace{dir: dir}
	for _, f := range files {
		name := filepath.Base(f.Name) // staged files never escape the workspace
		if err := os.WriteFile(filepath.Join(dir, name), []byte(f.Content), 0o600); err != nil {
			ws.Close()
			return nil, fmt.Errorf("%w: writing %s: %w", ErrWorkspace, name, err)
		}
	}

	return ws, nil
}

// Path returns the workspace directory, used as the subprocess working directory.
func (w *Workspace) Path() string {
	return w.dir
}

// Close removes the workspace and everything in it. Removal is best-effort:
// a failure is logged but never propagated, so Close is safe to defer on
// every exit path. Calling Close more than once is a no-op.
func (w *Workspace) Close() error {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true

	if err := os.RemoveAll(w.dir); err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("workspace cleanup failed")
		return err
	}
	return nil
}
