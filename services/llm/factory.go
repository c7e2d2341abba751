package llm

import (
	"os"

	"github.com/attestor-io/strata/container"
)

// Environment variables the factory reads.
const (
	// EnvAPIKey holds the Anthropic API key. Without it the factory
	// reports unavailable and the container resolves the service as
	// absent.
	EnvAPIKey = "ANTHROPIC_API_KEY"
	// EnvModel optionally overrides the model identifier.
	EnvModel = "ANTHROPIC_MODEL"
)

// Factory creates the Anthropic-backed client from the environment.
type Factory struct {
	// Options overrides the adapter defaults. Options.Model takes
	// precedence over EnvModel.
	Options Options
}

// CanCreate implements container.Factory.
func (f *Factory) CanCreate() bool {
	return os.Getenv(EnvAPIKey) != ""
}

// Create implements container.Factory.
func (f *Factory) Create() (any, error) {
	opts := f.Options
	if opts.Model == "" {
		opts.Model = os.Getenv(EnvModel)
	}
	return NewAnthropicFromAPIKey(os.Getenv(EnvAPIKey), opts)
}

// Register installs the environment-backed factory as the llm singleton.
func Register(c *container.Container) {
	c.Register(ServiceName, &Factory{}, container.Singleton)
}

// Resolve fetches the llm client from the container. ok is false when the
// service is unregistered or unavailable.
func Resolve(c *container.Container) (Client, bool, error) {
	return container.Get[Client](c, ServiceName)
}

// Verify Factory implements container.Factory.
var _ container.Factory = (*Factory)(nil)
