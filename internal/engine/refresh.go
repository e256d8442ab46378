package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/terrapin-dev/terrapin/internal/logging"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

// Refresh re-reads every state record from its provider and reconciles
// drift back into the state: outputs are updated in place, and records
// whose remote resource no longer exists are dropped.
func (e *Engine) Refresh(ctx context.Context, st *ir.State) (*ir.State, error) {
	var kept []*ir.ResourceState

	for _, rec := range st.Resources {
		if err := e.registry.LoadProvider(rec.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", rec.Provider, err)
		}
		prov, err := e.registry.Get(rec.Provider)
		if err != nil {
			return nil, err
		}

		var currentJSON []byte
		if rec.Outputs != nil {
			currentJSON, _ = json.Marshal(rec.Outputs)
		}
		var id string
		if v, ok := rec.Outputs["id"]; ok {
			id = fmt.Sprintf("%v", v)
		}

		resp, err := prov.Read(ctx, &pp.ReadRequest{
			Type:    rec.Type,
			ID:      id,
			Current: currentJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("refresh failed for %s: %w", rec.Addr(), err)
		}

		if !resp.Exists {
			logging.Info("resource no longer exists, dropping from state", "address", rec.Addr())
			continue
		}

		if len(resp.NewState) > 0 {
			var outputs map[string]any
			if err := json.Unmarshal(resp.NewState, &outputs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal refreshed state for %s: %w", rec.Addr(), err)
			}
			rec.Outputs = outputs
		}
		kept = append(kept, rec)
	}

	st.Resources = kept
	st.Serial++
	return st, nil
}
