package provider

import (
	"fmt"
	"sync"

	"github.com/terrapin-dev/terrapin/pkg/provider"
	"github.com/terrapin-dev/terrapin/pkg/schema"
	"github.com/terrapin-dev/terrapin/providers/aws"
	"github.com/terrapin-dev/terrapin/providers/docker"
	"github.com/terrapin-dev/terrapin/providers/null"
)

// Registry manages the lifecycle of providers. Providers are built in and
// statically registered; loading one also contributes its resource schemas
// to the schema registry.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Interface
	schemas   *schema.Registry
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]provider.Interface),
		schemas:   schema.NewRegistry(),
	}
}

// Schemas returns the schema registry populated by loaded providers.
func (r *Registry) Schemas() *schema.Registry {
	return r.schemas
}

// LoadProvider initializes and registers a provider by name.
func (r *Registry) LoadProvider(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p provider.Interface
	switch name {
	case "null":
		p = null.New()
	case "docker":
		p = docker.New()
	case "aws":
		p = aws.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.providers[name] = p
	r.schemas.Register(p.Schemas()...)
	return nil
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (provider.Interface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
