package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSecretRoundTripsAndOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config-store.json")
	s, err := Open(path)
	require.NoError(t, err)

	now := time.Unix(0, 0)
	require.NoError(t, s.SetSecret("docker", "token", "v1", now))
	val, ok := s.GetSecret("docker", "token")
	require.True(t, ok)
	require.Equal(t, "v1", val)

	require.NoError(t, s.SetSecret("docker", "token", "v2", now))
	val, ok = s.GetSecret("docker", "token")
	require.True(t, ok)
	require.Equal(t, "v2", val)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config-store.json")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.LinkSource("my-module", "/home/user/my-module"))

	s2, err := Open(path)
	require.NoError(t, err)
	p, ok := s2.LinkedSource("my-module")
	require.True(t, ok)
	require.Equal(t, "/home/user/my-module", p)
}

func TestDeleteSecretRemovesEntry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config-store.json")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.SetSecret("docker", "token", "v1", time.Now()))
	require.NoError(t, s.DeleteSecret("docker", "token"))
	_, ok := s.GetSecret("docker", "token")
	require.False(t, ok)
}
