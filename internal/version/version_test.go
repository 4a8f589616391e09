package version

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeModuleVersionIsDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("world"), 0o644))

	h := New()
	v1, err := h.ComputeModuleVersion(dir, []string{"a.txt", "b.txt"}, map[string]string{"dep": "v1"})
	require.NoError(t, err)
	v2, err := h.ComputeModuleVersion(dir, []string{"b.txt", "a.txt"}, map[string]string{"dep": "v1"})
	require.NoError(t, err)

	require.Equal(t, v1.VersionString, v2.VersionString)
}

func TestComputeModuleVersionChangesWithFileContents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	h := New()
	v1, err := h.ComputeModuleVersion(dir, []string{"a.txt"}, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("goodbye"), 0o644))
	v2, err := h.ComputeModuleVersion(dir, []string{"a.txt"}, nil)
	require.NoError(t, err)

	require.NotEqual(t, v1.VersionString, v2.VersionString)
}

func TestComputeModuleVersionChangesWithDependencyVersion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	h := New()
	v1, err := h.ComputeModuleVersion(dir, []string{"a.txt"}, map[string]string{"dep": "v1"})
	require.NoError(t, err)
	v2, err := h.ComputeModuleVersion(dir, []string{"a.txt"}, map[string]string{"dep": "v2"})
	require.NoError(t, err)

	require.NotEqual(t, v1.VersionString, v2.VersionString)
}

func TestFileSetHonoursIncludeOutsideGitRepo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))

	h := New()
	files, err := h.FileSet(dir, nil, []string{"src/**"}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"src/main.go"}, files)
}
