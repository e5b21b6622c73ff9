package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lemonhall/radioscribe/internal/errors"
)

// Entry describes one directory member returned by ListDir.
type Entry struct {
	Name string
	Dir  bool
}

// Workspace is a namespaced file store rooted at a single directory. All
// paths are workspace-relative with forward slashes; nothing outside the
// root is ever touched.
type Workspace interface {
	// Exists reports whether rel names an existing file or directory.
	Exists(rel string) bool
	ReadFile(rel string) ([]byte, error)
	// WriteFile writes data, creating parent directories as needed.
	WriteFile(rel string, data []byte) error
	// WriteFileAtomic writes data via a temp file and rename so readers
	// never observe a partial document.
	WriteFileAtomic(rel string, data []byte) error
	MkdirAll(rel string) error
	ListDir(rel string) ([]Entry, error)
	Remove(rel string) error
	// Path resolves rel to an absolute filesystem path, for handing to
	// components that need direct file access (audio upload).
	Path(rel string) string
}

type dirWorkspace struct {
	root string
}

// NewDir opens a workspace rooted at dir, creating it if absent.
func NewDir(dir string) (Workspace, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing workspace root")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create workspace root")
	}
	return &dirWorkspace{root: dir}, nil
}

func (w *dirWorkspace) Path(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

func (w *dirWorkspace) Exists(rel string) bool {
	_, err := os.Stat(w.Path(rel))
	return err == nil
}

func (w *dirWorkspace) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(w.Path(rel))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read "+rel)
	}
	return data, nil
}

func (w *dirWorkspace) WriteFile(rel string, data []byte) error {
	abs := w.Path(rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create parent dir for "+rel)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to write "+rel)
	}
	return nil
}

func (w *dirWorkspace) WriteFileAtomic(rel string, data []byte) error {
	abs := w.Path(rel)
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create parent dir for "+rel)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create temp file for "+rel)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeInternal, "failed to write temp file for "+rel)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeInternal, "failed to close temp file for "+rel)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeInternal, "failed to replace "+rel)
	}
	return nil
}

func (w *dirWorkspace) MkdirAll(rel string) error {
	if err := os.MkdirAll(w.Path(rel), 0o755); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create dir "+rel)
	}
	return nil
}

func (w *dirWorkspace) ListDir(rel string) ([]Entry, error) {
	items, err := os.ReadDir(w.Path(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to list "+rel)
	}
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		out = append(out, Entry{Name: it.Name(), Dir: it.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (w *dirWorkspace) Remove(rel string) error {
	if err := os.Remove(w.Path(rel)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CodeInternal, "failed to remove "+rel)
	}
	return nil
}
