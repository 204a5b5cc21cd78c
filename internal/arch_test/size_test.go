package arch_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	maxFilesPerPackage = 20
	maxLinesPerFile    = 400
)

// TestPackageFileCount keeps packages small enough to read in one sitting.
func TestPackageFileCount(t *testing.T) {
	t.Parallel()
	dir := internalDirPath(t)
	for _, pkg := range internalPackages(t) {
		if n := len(goFilesIn(t, filepath.Join(dir, filepath.FromSlash(pkg)))); n > maxFilesPerPackage {
			t.Errorf("package %s has %d .go files (limit %d); consider splitting", pkg, n, maxFilesPerPackage)
		}
	}
}

// TestFileLineCount applies maxLinesPerFile to every .go file under
// internal/, tests included. Generated files are skipped.
func TestFileLineCount(t *testing.T) {
	t.Parallel()
	dir := internalDirPath(t)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if bytes.HasPrefix(data, []byte("// Code generated")) {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		if n := bytes.Count(data, []byte("\n")); n > maxLinesPerFile {
			t.Errorf("%s has %d lines (limit %d); consider decomposing", filepath.ToSlash(rel), n, maxLinesPerFile)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking %s: %v", dir, err)
	}
}
