// Package relay maintains the registry of block-builder endpoints and the
// executors that race bundle submissions across them.
package relay

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"

	"github.com/kestrel-mev/kestrel/mevshare"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrInvalidRelay = errors.New("invalid relay entry")

// Endpoint is one relay/builder the searcher submits to.
type Endpoint struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Disabled bool   `yaml:"disabled"`
}

// Registry is the ordered, immutable list of relays. Order determines
// executor construction and task spawn order; it carries no priority.
type Registry struct {
	Relays []Endpoint `yaml:"relays"`
}

// DefaultRegistry returns the built-in relay set. An operator-supplied file
// replaces it wholesale, see LoadRegistry.
func DefaultRegistry() Registry {
	return Registry{Relays: []Endpoint{
		{Name: "flashbots", URL: "https://relay.flashbots.net"},
		{Name: "builder0x69", URL: "https://builder0x69.io"},
		{Name: "edennetwork", URL: "https://api.edennetwork.io/v1/bundle"},
		{Name: "beaverbuild", URL: "https://rpc.beaverbuild.org"},
		{Name: "lightspeedbuilder", URL: "https://rpc.lightspeedbuilder.info"},
		{Name: "eth-builder", URL: "https://eth-builder.com"},
		{Name: "ultrasound", URL: "https://relay.ultrasound.money"},
		{Name: "agnostic-relay", URL: "https://agnostic-relay.net"},
		{Name: "relayooor", URL: "https://relayooor.wtf"},
		{Name: "rsync-builder", URL: "https://rsync-builder.xyz"},
		{Name: "titan", URL: "https://rpc.titanbuilder.xyz"},
		{Name: "penguinbuild", URL: "https://rpc.penguinbuild.org"},
	}}
}

// LoadRegistry parses a relay registry from a yaml file.
func LoadRegistry(file string) (Registry, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Registry{}, err
	}
	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return Registry{}, err
	}
	for _, relay := range registry.Relays {
		if relay.Name == "" || relay.URL == "" {
			return Registry{}, fmt.Errorf("%w: %+v", ErrInvalidRelay, relay)
		}
	}
	return registry, nil
}

// Enabled returns the enabled endpoints in registry order.
func (r Registry) Enabled() []Endpoint {
	enabled := make([]Endpoint, 0, len(r.Relays))
	for _, relay := range r.Relays {
		if relay.Disabled {
			continue
		}
		enabled = append(enabled, relay)
	}
	return enabled
}

// BuildExecutors constructs one submit executor per enabled relay, each with
// its own signing client bound to the shared searcher identity. Construction
// is eager and deterministic: same registry in, same executors out, in the
// same order.
func BuildExecutors(registry Registry, signerKey *ecdsa.PrivateKey, log *zap.Logger, opts ...ExecutorOption) []*Executor {
	enabled := registry.Enabled()
	executors := make([]*Executor, 0, len(enabled))
	for _, relay := range enabled {
		client := mevshare.NewSigningClient(relay.Name, relay.URL, signerKey)
		executors = append(executors, NewExecutor(log, client, opts...))
	}
	return executors
}
