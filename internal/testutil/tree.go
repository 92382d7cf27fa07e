package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates a file (and its parents) under root with the given
// contents and returns its absolute path.
func WriteFile(t *testing.T, root, rel, contents string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error = %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
	return path
}

// WriteSymlink creates a symlink (and its parents) under root pointing
// at target and returns its absolute path.
func WriteSymlink(t *testing.T, root, rel, target string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error = %v", filepath.Dir(path), err)
	}
	if err := os.Symlink(target, path); err != nil {
		t.Fatalf("Symlink(%s -> %s) error = %v", path, target, err)
	}
	return path
}

// ReadFile returns the contents of the file at path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(data)
}

// CanonicalDir returns t.TempDir() with symlinks resolved, so paths
// derived from it compare cleanly on systems where the temp dir is
// itself a symlink (e.g. /tmp on macOS).
func CanonicalDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks(TempDir) error = %v", err)
	}
	return dir
}
