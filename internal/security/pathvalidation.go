package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidGridName is returned for grid names the engine will not accept.
var ErrInvalidGridName = errors.New("invalid grid name")

// maxGridNameLen bounds grid names, including any temporary suffix.
const maxGridNameLen = 128

// ValidateGridName checks that name is a legal grid name: it starts with an
// ASCII letter and contains only ASCII letters, digits, dot, underscore or
// dash.
func ValidateGridName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidGridName)
	}
	if len(name) > maxGridNameLen {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidGridName, name, maxGridNameLen)
	}
	for i, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && ((r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-'):
		default:
			return fmt.Errorf("%w: %q has illegal character %q at %d", ErrInvalidGridName, name, r, i)
		}
	}
	return nil
}

// canonicalPath resolves symlinks in path. When path does not exist yet the
// nearest existing parent is resolved and the remainder re-attached, so a
// symlinked parent cannot be used to escape.
func canonicalPath(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	for check := absPath; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, absPath)
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}

// ValidatePathWithinDirectory checks if a file path is within a safe directory.
// It prevents path traversal, including through symlinks.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath(absPath))
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// ValidatePathWithinAllowedDirs checks if a file path is within any of the allowed directories.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("path must be within one of the allowed directories: %v", allowedDirs)
}

// ValidateOutputPath validates a path the CLI is about to write (exports,
// previews, reports). With no configured directories the temp directory and
// the current working directory are allowed.
func ValidateOutputPath(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		allowedDirs = []string{os.TempDir(), cwd}
	}
	return ValidatePathWithinAllowedDirs(filePath, allowedDirs)
}
