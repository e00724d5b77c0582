package engine

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

var testFunc = regexp.MustCompile(`(?m)^func (Test[^\s(]*)\(`)

// DeclaredTests lists the top-level test functions file declares, TestMain
// excluded. Unreadable files declare nothing.
func DeclaredTests(file string) []string {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	var names []string
	for _, match := range testFunc.FindAllSubmatch(data, -1) {
		if name := string(match[1]); name != "TestMain" {
			names = append(names, name)
		}
	}
	return names
}

// ImportPath derives the import path of the package in dir from the nearest
// enclosing go.mod.
func ImportPath(dir string) (string, bool) {
	for current := dir; ; {
		data, err := os.ReadFile(filepath.Join(current, "go.mod"))
		if err == nil {
			module := modfile.ModulePath(data)
			if module == "" {
				return "", false
			}
			rel, err := filepath.Rel(current, dir)
			if err != nil {
				return "", false
			}
			if rel == "." {
				return module, true
			}
			return module + "/" + filepath.ToSlash(rel), true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// unselectedTests returns the top-level tests go test would run in dirs that
// the selected files do not declare. go test builds every _test.go file of a
// package, so a package with only some files selected needs them skipped.
func unselectedTests(files []string, dirs []string) []string {
	selected := make(map[string]bool, len(files))
	keep := make(map[string]bool)
	for _, file := range files {
		selected[file] = true
		for _, name := range DeclaredTests(file) {
			keep[name] = true
		}
	}

	skip := make(map[string]bool)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, "_test.go") || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				continue
			}
			path := filepath.Join(dir, name)
			if selected[path] {
				continue
			}
			for _, test := range DeclaredTests(path) {
				if !keep[test] {
					skip[test] = true
				}
			}
		}
	}

	names := make([]string, 0, len(skip))
	for name := range skip {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SkipPattern anchors names as a top-level -skip pattern.
func SkipPattern(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return "^(" + strings.Join(names, "|") + ")$"
}
