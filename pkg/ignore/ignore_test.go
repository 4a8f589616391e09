package ignore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchHonoursIncludeExclude(t *testing.T) {
	t.Parallel()

	m, err := New(nil, []string{"src/**/*.go"}, []string{"**/*_test.go"})
	require.NoError(t, err)

	ok, err := m.Match("src/main.go")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Match("src/main_test.go")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.Match("README.md")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMatchEmptyIncludeMeansNoSources(t *testing.T) {
	t.Parallel()

	m, err := New(nil, []string{}, nil)
	require.NoError(t, err)

	ok, err := m.Match("anything.go")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMatchAppliesDotIgnore(t *testing.T) {
	t.Parallel()

	m, err := New([]string{"*.log", "tmp/"}, nil, nil)
	require.NoError(t, err)

	ok, err := m.Match("debug.log")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.Match("main.go")
	require.NoError(t, err)
	require.True(t, ok)
}
