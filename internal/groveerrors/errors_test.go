package groveerrors

import (
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigurationErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("unexpected token")
	err := NewConfigurationError("garden.yml:12", "bad apiVersion", underlying)

	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "garden.yml:12")
	require.Equal(t, KindConfiguration, err.Kind)
}

func TestCircularReferenceErrorNamesTrail(t *testing.T) {
	t.Parallel()

	err := NewCircularReferenceError("providers.test-a.foo", []string{"test-a", "test-b", "test-a"})
	require.Contains(t, err.Error(), "test-a <- test-b <- test-a")
}

func TestUnresolvedRuntimeReferenceErrorMatchesContract(t *testing.T) {
	t.Parallel()

	err := NewUnresolvedRuntimeReferenceError("service-a", []string{"${runtime.services.service-b.outputs.foo}"})
	require.Contains(t, err.Error(),
		"Unable to resolve one or more runtime template values for service 'service-a': ${runtime.services.service-b.outputs.foo}")
}

func TestIsComparesByKind(t *testing.T) {
	t.Parallel()

	a := NewNotReadyError("kubernetes")
	b := NewNotReadyError("docker")
	require.True(t, stdErrors.Is(a, b))

	c := NewCancelledError("build.a")
	require.False(t, stdErrors.Is(a, c))
}

func TestHintIsAppended(t *testing.T) {
	t.Parallel()

	err := NewMissingPluginError("kubernetes").WithHint("declare it under providers in garden.yml")
	require.Contains(t, err.Error(), "declare it under providers")
}
