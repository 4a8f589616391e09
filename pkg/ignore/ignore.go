// Package ignore composes the file-set filtering rules the version
// hasher and module configurator both need: VCS-style dotignore files
// plus include/exclude glob lists. A gitignore-style matcher is paired
// with a doublestar glob matcher since stdlib path/filepath.Match has
// no "**" support.
package ignore

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher combines dotignore patterns (e.g. .gardenignore) with
// include/exclude glob lists. A path is in scope when it matches
// include (a nil include means "everything", an empty non-nil include
// means "nothing"), does not match exclude, and is not ignored by any
// dotignore file.
type Matcher struct {
	ignore  *gitignore.GitIgnore
	include []string
	exclude []string
}

// New builds a Matcher. include=nil means "everything is included";
// include=[]string{} (non-nil, empty) means "nothing is included".
func New(dotIgnoreLines []string, include, exclude []string) (*Matcher, error) {
	var compiled *gitignore.GitIgnore
	if len(dotIgnoreLines) > 0 {
		compiled = gitignore.CompileIgnoreLines(dotIgnoreLines...)
	}
	return &Matcher{ignore: compiled, include: include, exclude: exclude}, nil
}

// Match reports whether relPath (slash-separated, relative to the
// module root) is in scope.
func (m *Matcher) Match(relPath string) (bool, error) {
	if m.include != nil {
		if len(m.include) == 0 {
			return false, nil
		}
		matched, err := matchesAny(m.include, relPath)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}

	if len(m.exclude) > 0 {
		matched, err := matchesAny(m.exclude, relPath)
		if err != nil {
			return false, err
		}
		if matched {
			return false, nil
		}
	}

	if m.ignore != nil && m.ignore.MatchesPath(relPath) {
		return false, nil
	}

	return true, nil
}

func matchesAny(patterns []string, relPath string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(filepath.ToSlash(pattern), filepath.ToSlash(relPath))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
