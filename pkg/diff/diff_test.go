package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileListDiffIdenticalListsReturnsEmpty(t *testing.T) {
	t.Parallel()

	files := []string{"garden.yml", "src/main.go"}
	require.Empty(t, FileListDiff(files, files, "previous", "current"))
}

func TestFileListDiffMarksAddedAndRemovedFiles(t *testing.T) {
	t.Parallel()

	previous := []string{"garden.yml", "src/main.go", "src/old.go"}
	current := []string{"garden.yml", "src/main.go", "src/new.go"}

	out := FileListDiff(previous, current, "previous", "current")
	require.Contains(t, out, "--- previous")
	require.Contains(t, out, "+++ current")
	require.Contains(t, out, "-src/old.go")
	require.Contains(t, out, "+src/new.go")
	require.Contains(t, out, " src/main.go")
}

func TestFileListDiffFromEmptyList(t *testing.T) {
	t.Parallel()

	out := FileListDiff(nil, []string{"src/main.go"}, "previous", "current")
	require.Contains(t, out, "+src/main.go")
}

func TestFileListDiffTruncatesLongOutput(t *testing.T) {
	t.Parallel()

	var previous, current []string
	for i := 0; i < 3000; i++ {
		previous = append(previous, fmt.Sprintf("src/file-%04d.go", i))
		current = append(current, fmt.Sprintf("src/file-%04d.go", i+3000))
	}

	out := FileListDiff(previous, current, "previous", "current")
	require.Contains(t, out, "truncated")
	require.LessOrEqual(t, strings.Count(out, "\n"), maxDiffLines+4)
}
