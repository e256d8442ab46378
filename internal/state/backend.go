package state

import (
	"context"
	"fmt"

	"github.com/terrapin-dev/terrapin/internal/eval"
	"github.com/terrapin-dev/terrapin/internal/ir"
)

// Backend defines the get/put/lock contract for state storage backends.
type Backend interface {
	// Read loads the state from the backend.
	Read(ctx context.Context) (*ir.State, error)

	// Write saves the state to the backend.
	Write(ctx context.Context, st *ir.State) error

	// Lock acquires an exclusive lock on the state. A held lock surfaces
	// as *LockConflictError.
	Lock() error

	// Unlock releases the lock on the state.
	Unlock() error
}

// BackendConfig holds configuration for a state backend.
type BackendConfig struct {
	Type   string            `yaml:"type"` // "local" or "s3"
	Config map[string]string `yaml:"config"`
}

// NewBackend creates a state backend from configuration. The evaluator is
// needed for backends that must parse PKL state content.
func NewBackend(cfg *BackendConfig, evaluator *eval.Evaluator) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		return nil, fmt.Errorf("use state.Manager for local backend")
	case "s3":
		return newS3Backend(cfg.Config, evaluator)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
