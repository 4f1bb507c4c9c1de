// Package fsutil abstracts the filesystem calls made when grids, previews
// and reports are read or written, so those paths run in memory in tests.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Permissions for files and directories created by WriteFileAll.
const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// FileSystem is the subset of os used by grid import/export and renderers.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
}

// OSFileSystem is the real filesystem.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (OSFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// WriteFileAll writes data to name, creating missing parent directories.
func WriteFileAll(fsys FileSystem, name string, data []byte) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := fsys.MkdirAll(dir, dirPerm); err != nil {
			return err
		}
	}
	return fsys.WriteFile(name, data, filePerm)
}

// entry is a stored file, or a directory when dir is set.
type entry struct {
	data []byte
	mode os.FileMode
	dir  bool
}

// MemoryFileSystem keeps files in a map keyed by cleaned path. Parent
// directories are not required to exist before a write.
type MemoryFileSystem struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemoryFileSystem returns an empty in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{entries: make(map[string]entry)}
}

func (m *MemoryFileSystem) lookup(op, name string) (string, entry, error) {
	name = filepath.Clean(name)
	e, ok := m.entries[name]
	if !ok {
		return name, entry{}, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return name, e, nil
}

// ReadFile returns a copy of the file contents.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, e, err := m.lookup("read", name)
	if err != nil {
		return nil, err
	}
	if e.dir {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return append([]byte(nil), e.data...), nil
}

// WriteFile stores a copy of data under name.
func (m *MemoryFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[filepath.Clean(name)] = entry{data: append([]byte{}, data...), mode: perm}
	return nil
}

// Stat describes a file or directory.
func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, e, err := m.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return fileInfo{name: filepath.Base(name), entry: e}, nil
}

// MkdirAll records path and each of its parents as directories.
func (m *MemoryFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dirs []string
	for p := filepath.Clean(path); p != "." && p != string(filepath.Separator); p = filepath.Dir(p) {
		if e, ok := m.entries[p]; ok && !e.dir {
			return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
		}
		dirs = append(dirs, p)
	}
	for _, p := range dirs {
		m.entries[p] = entry{dir: true, mode: fs.ModeDir | perm}
	}
	return nil
}

// Exists reports whether a file or directory is stored at name.
func (m *MemoryFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[filepath.Clean(name)]
	return ok
}

type fileInfo struct {
	name string
	entry
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return int64(len(i.data)) }
func (i fileInfo) Mode() os.FileMode  { return i.mode }
func (i fileInfo) ModTime() time.Time { return time.Time{} }
func (i fileInfo) IsDir() bool        { return i.dir }
func (i fileInfo) Sys() any           { return nil }

var (
	_ FileSystem = OSFileSystem{}
	_ FileSystem = (*MemoryFileSystem)(nil)
)
