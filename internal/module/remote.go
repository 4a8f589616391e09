package module

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"

	"github.com/grove-run/grove/internal/store"
)

// remoteCachePath derives the checkout directory for a remote module:
// sources/module/<name>--<urlhash>/.
func remoteCachePath(cacheRoot, name, url string) string {
	return filepath.Join(cacheRoot, "sources", "module", name+"--"+hashURL(url))
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:12]
}

// resolveModulePath resolves where a module's sources actually live: a
// user-linked local path recorded in the config store overrides the
// cache; otherwise a repositoryUrl module is checked out into its cache
// path (cloning if absent, pulling if present) and treated as local
// from then on.
func resolveModulePath(st *store.Store, cacheRoot, name, repositoryURL, localPath string) (string, error) {
	if repositoryURL == "" {
		return localPath, nil
	}
	if linked, ok := st.LinkedSource(name); ok {
		return linked, nil
	}

	dest := remoteCachePath(cacheRoot, name, repositoryURL)
	if _, err := os.Stat(dest); err == nil {
		if err := refreshCheckout(dest); err != nil {
			return "", err
		}
		return dest, nil
	}

	if _, err := git.PlainClone(dest, false, &git.CloneOptions{URL: repositoryURL}); err != nil {
		return "", err
	}
	return dest, nil
}

func refreshCheckout(dest string) error {
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Pull(&git.PullOptions{}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}
