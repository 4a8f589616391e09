package module

import (
	"io"
	"os"
	"path/filepath"

	"github.com/grove-run/grove/internal/model"
)

// buildStagingDir returns <cacheRoot>/build/<module>, where
// build-dependency copies are staged ahead of version computation.
func buildStagingDir(cacheRoot, moduleName string) string {
	return filepath.Join(cacheRoot, "build", moduleName)
}

// stageCopies copies every build.dependencies[i].copy entry from its
// dependency's resolved path into m's build staging directory, since
// the version hasher must hash post-copy contents for
// dependency-triggered invalidation to work at all.
func stageCopies(cacheRoot string, m model.ModuleConfig, resolvedDepPaths map[string]string) error {
	dest := buildStagingDir(cacheRoot, m.Name)
	for _, dep := range m.Build.Dependencies {
		if len(dep.Copy) == 0 {
			continue
		}
		depPath, ok := resolvedDepPaths[dep.Name]
		if !ok {
			continue
		}
		for _, entry := range dep.Copy {
			if err := copyPath(filepath.Join(depPath, entry.Source), filepath.Join(dest, entry.Target)); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(src, dst)
	}
	return copyFile(src, dst, info.Mode())
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyPath(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
