package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNoTestFiles = errors.New("no test files were selected")

var skippedDirs = map[string]bool{
	"vendor":       true,
	"testdata":     true,
	"node_modules": true,
}

// SelectFiles walks cfg.RootPath and returns the absolute paths of test files
// whose base name matches TestFileMatch and whose path contains at least one
// PathMatch fragment (all files when PathMatch is empty). Fragments come from
// the command line relative to the working directory, so both the
// working-directory-relative and the root-relative path are tried.
func SelectFiles(ctx context.Context, cfg ResolvedConfig) ([]string, error) {
	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	var selected []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (skippedDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesAny(cfg.TestFileMatch, d.Name()) {
			return nil
		}
		if !matchesPath(path, []string{cwd, root}, cfg.PathMatch) {
			return nil
		}
		selected = append(selected, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select test files: %w", err)
	}
	if len(selected) == 0 {
		return nil, ErrNoTestFiles
	}
	sort.Strings(selected)
	return selected, nil
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func matchesPath(path string, bases []string, fragments []string) bool {
	if len(fragments) == 0 {
		return true
	}
	for _, base := range bases {
		rel, err := filepath.Rel(base, path)
		if err != nil {
			continue
		}
		if containsAny(filepath.ToSlash(rel), fragments) {
			return true
		}
	}
	return false
}

func containsAny(rel string, fragments []string) bool {
	if len(fragments) == 0 {
		return true
	}
	for _, fragment := range fragments {
		fragment = strings.TrimPrefix(filepath.ToSlash(fragment), "./")
		if fragment == "" || fragment == "." || strings.Contains(rel, fragment) {
			return true
		}
	}
	return false
}

// packageDirs groups selected files by directory, keeping first-seen order.
func packageDirs(files []string) []string {
	seen := make(map[string]bool)
	dirs := make([]string, 0)
	for _, file := range files {
		dir := filepath.Dir(file)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}
