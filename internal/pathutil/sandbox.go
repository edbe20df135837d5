// Package pathutil confines file arguments received over the MCP server to a
// set of directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/cdnet/internal/constants"
)

// ErrOutsideSandbox is returned for paths that resolve outside every root.
var ErrOutsideSandbox = errors.New("path is outside the allowed directories")

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.cdnet/config.yaml" becomes ".../.cdnet/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// Sandbox resolves tool-supplied paths. Relative paths are taken against the
// working directory; the result must lie inside one of the roots once
// symlinks are resolved.
type Sandbox struct {
	workDir string
	roots   []string
}

// NewSandbox builds a sandbox over roots. Roots are resolved once; a root
// that does not exist yet is resolved through its deepest existing ancestor.
func NewSandbox(workDir string, roots ...string) (*Sandbox, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("sandbox needs at least one root")
	}
	wd, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	s := &Sandbox{workDir: wd}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", RedactPath(root), err)
		}
		resolved, err := resolveExisting(abs)
		if err != nil {
			return nil, err
		}
		s.roots = append(s.roots, resolved)
	}
	return s, nil
}

// DefaultSandbox allows the working directory and the cdnet config directory.
func DefaultSandbox(workDir string) (*Sandbox, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewSandbox(workDir, workDir, filepath.Join(home, constants.ConfigDirName))
}

// Roots returns the resolved root directories.
func (s *Sandbox) Roots() []string {
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// Resolve returns the absolute, symlink-free form of path, or an error if it
// escapes the sandbox. The file itself need not exist.
func (s *Sandbox) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path contains null byte")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.workDir, abs)
	}
	abs = filepath.Clean(abs)

	// Only the parent is resolved so that paths for new files work.
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(dir, filepath.Base(abs))
	if info, err := os.Lstat(resolved); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err = filepath.EvalSymlinks(resolved); err != nil {
			return "", fmt.Errorf("resolve %s: %w", RedactPath(path), err)
		}
	}

	for _, root := range s.roots {
		if within(resolved, root) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideSandbox, RedactPath(abs))
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of dir
// and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// within reports whether path is base or lies below it.
func within(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(base, string(os.PathSeparator))+string(os.PathSeparator))
}
