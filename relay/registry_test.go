package relay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultRegistry(t *testing.T) {
	registry := DefaultRegistry()
	require.NotEmpty(t, registry.Relays)
	require.Equal(t, registry, DefaultRegistry())

	seen := make(map[string]struct{})
	for _, relay := range registry.Relays {
		require.NotEmpty(t, relay.Name)
		require.NotEmpty(t, relay.URL)
		require.False(t, relay.Disabled)
		_, dup := seen[relay.Name]
		require.False(t, dup, "duplicate relay %s", relay.Name)
		seen[relay.Name] = struct{}{}
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relays.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relays:
  - name: flashbots
    url: https://relay.flashbots.net
  - name: staging
    url: https://staging.example.org
    disabled: true
`), 0o600))

	registry, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, registry.Relays, 2)
	require.Equal(t, "flashbots", registry.Relays[0].Name)
	require.True(t, registry.Relays[1].Disabled)

	enabled := registry.Enabled()
	require.Len(t, enabled, 1)
	require.Equal(t, "flashbots", enabled[0].Name)
}

func TestLoadRegistryRejectsIncompleteEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relays.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relays:
  - name: nameless
`), 0o600))

	_, err := LoadRegistry(path)
	require.ErrorIs(t, err, ErrInvalidRelay)
}

func TestBuildExecutorsFollowsRegistryOrder(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	registry := Registry{Relays: []Endpoint{
		{Name: "a", URL: "https://a.example.org"},
		{Name: "b", URL: "https://b.example.org", Disabled: true},
		{Name: "c", URL: "https://c.example.org"},
	}}

	executors := BuildExecutors(registry, key, zap.NewNop())
	require.Len(t, executors, 2)
	require.Equal(t, "relay-a", executors[0].Name())
	require.Equal(t, "relay-c", executors[1].Name())
}
