package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, file := range files {
		path := filepath.Join(root, filepath.FromSlash(file))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("package x\n"), 0o644))
	}
}

func TestSelectFilesMatchesTestFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"a/b_test.go",
		"a/b.go",
		"c/d_test.go",
		"vendor/v/v_test.go",
		"testdata/t_test.go",
		".hidden/h_test.go",
	)

	files, err := SelectFiles(context.Background(), Resolve(ResolveOptions{ConfigFile: FileConfig{RootPath: root}}))
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "a", "b_test.go"),
		filepath.Join(root, "c", "d_test.go"),
	}, files)
}

func TestSelectFilesFiltersByPathMatch(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/b_test.go", "a/c_test.go", "d/e_test.go")

	cfg := Resolve(ResolveOptions{
		ConfigFile: FileConfig{RootPath: root},
		PathMatch:  []string{"a/c", "d/"},
	})
	files, err := SelectFiles(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "a", "c_test.go"),
		filepath.Join(root, "d", "e_test.go"),
	}, files)
}

func TestSelectFilesMatchesWorkingDirectoryRelativePaths(t *testing.T) {
	cwd, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	writeTree(t, cwd, "sub/calc/a_test.go", "sub/calc/b_test.go")
	chdirForTest(t, cwd)

	cfg := Resolve(ResolveOptions{
		ConfigFile: FileConfig{RootPath: filepath.Join(cwd, "sub")},
		PathMatch:  []string{filepath.FromSlash("sub/calc/a_test.go")},
	})
	files, err := SelectFiles(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(cwd, "sub", "calc", "a_test.go")}, files)
}

func TestSelectFilesNothingSelected(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/b_test.go")

	cfg := Resolve(ResolveOptions{ConfigFile: FileConfig{RootPath: root}, PathMatch: []string{"zzz"}})
	_, err := SelectFiles(context.Background(), cfg)
	require.ErrorIs(t, err, ErrNoTestFiles)
}

func TestPackageDirsKeepsFirstSeenOrder(t *testing.T) {
	dirs := packageDirs([]string{
		filepath.FromSlash("/r/b/x_test.go"),
		filepath.FromSlash("/r/a/y_test.go"),
		filepath.FromSlash("/r/b/z_test.go"),
	})
	require.Equal(t, []string{filepath.FromSlash("/r/b"), filepath.FromSlash("/r/a")}, dirs)
}
