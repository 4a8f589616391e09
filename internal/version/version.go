// Package version implements the content-addressed module version
// hasher: enumerate in-scope files, hash their bytes, sort, fold in
// dependency versions, and render a short stable digest. It is pure and
// memoizable by (modulePath, depVersions, fileSet).
package version

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"

	git "github.com/go-git/go-git/v5"

	"github.com/grove-run/grove/internal/model"
	"github.com/grove-run/grove/pkg/ignore"
)

// versionStringLength truncates the digest to a short alphanumeric
// identifier, matching how content-addressed tools keep version strings
// display-friendly without weakening collision resistance materially
// for this use case.
const versionStringLength = 16

// FileLister enumerates the VCS-tracked files under root, relative to
// root, slash-separated. Implementations must be deterministic for a
// given repository state.
type FileLister interface {
	TrackedFiles(root string) ([]string, error)
}

// GitFileLister lists files tracked by a git repository, reading the
// index through go-git without touching the worktree.
type GitFileLister struct{}

// TrackedFiles returns every path the VCS index tracks under root, or
// falls back to a full filesystem walk when root is not inside a git
// repository, so version hashing still works for module paths outside
// any repository (e.g. plain temp directories in tests).
func (GitFileLister) TrackedFiles(root string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return walkAll(root)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return walkAll(root)
	}

	idx, err := repo.Storer.Index()
	if err != nil {
		return walkAll(root)
	}

	relRoot, err := filepath.Rel(wt.Filesystem.Root(), root)
	if err != nil {
		relRoot = ""
	}
	relRoot = filepath.ToSlash(relRoot)

	var files []string
	for _, entry := range idx.Entries {
		name := filepath.ToSlash(entry.Name)
		if relRoot != "" && relRoot != "." {
			prefix := relRoot + "/"
			if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
				continue
			}
			name = name[len(prefix):]
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

func walkAll(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Hasher computes module versions.
type Hasher struct {
	Lister FileLister
}

// New returns a Hasher backed by go-git's tracked-file listing.
func New() *Hasher {
	return &Hasher{Lister: GitFileLister{}}
}

// FileSet intersects VCS-tracked files with include, then subtracts
// exclude and dotignore patterns.
func (h *Hasher) FileSet(root string, dotIgnoreLines, include, exclude []string) ([]string, error) {
	tracked, err := h.Lister.TrackedFiles(root)
	if err != nil {
		return nil, err
	}

	matcher, err := ignore.New(dotIgnoreLines, include, exclude)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, f := range tracked {
		ok, err := matcher.Match(f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ComputeModuleVersion hashes each in-scope file's bytes, sorts by
// path, and folds the result with sorted dependency versions into a
// truncated digest.
func (h *Hasher) ComputeModuleVersion(root string, files []string, dependencyVersions map[string]string) (model.ModuleVersion, error) {
	hasher := sha256.New()

	sortedFiles := append([]string(nil), files...)
	sort.Strings(sortedFiles)
	for _, f := range sortedFiles {
		contents, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f)))
		if err != nil {
			return model.ModuleVersion{}, err
		}
		sum := sha256.Sum256(contents)
		hasher.Write([]byte(f))
		hasher.Write(sum[:])
	}

	depNames := make([]string, 0, len(dependencyVersions))
	for name := range dependencyVersions {
		depNames = append(depNames, name)
	}
	sort.Strings(depNames)
	for _, name := range depNames {
		hasher.Write([]byte(name))
		hasher.Write([]byte(dependencyVersions[name]))
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if len(digest) > versionStringLength {
		digest = digest[:versionStringLength]
	}

	return model.ModuleVersion{
		VersionString:      digest,
		DependencyVersions: dependencyVersions,
		Files:              sortedFiles,
	}, nil
}

// ExtendVersion folds extraNames (a test's or task's own declared
// dependency names) into base's version string, producing a new,
// distinct ModuleVersion that still carries base's files and dependency
// versions for round-tripping.
func ExtendVersion(base model.ModuleVersion, extraNames []string) model.ModuleVersion {
	hasher := sha256.New()
	hasher.Write([]byte(base.VersionString))

	sortedExtra := append([]string(nil), extraNames...)
	sort.Strings(sortedExtra)
	for _, name := range sortedExtra {
		hasher.Write([]byte(name))
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if len(digest) > versionStringLength {
		digest = digest[:versionStringLength]
	}

	return model.ModuleVersion{
		VersionString:      digest,
		DependencyVersions: base.DependencyVersions,
		Files:              base.Files,
	}
}

// ComputeDependencyVersions resolves the version of every named build
// dependency via resolve, producing the dependencyVersions map the
// hasher folds in. resolve is supplied by the caller since it needs
// access to the full module set to recurse.
func ComputeDependencyVersions(names []string, resolve func(name string) (string, error)) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := resolve(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
