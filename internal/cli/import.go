package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/terrapin-dev/terrapin/internal/ir"
	"github.com/terrapin-dev/terrapin/internal/provider"
	"github.com/terrapin-dev/terrapin/internal/state"
	pp "github.com/terrapin-dev/terrapin/pkg/provider"
)

var importCmd = &cobra.Command{
	Use:   "import <address> <id>",
	Short: "Adopt an existing remote resource into state",
	Long: `Reads an existing resource from its provider and records it in state
under the given address, so subsequent plans manage it instead of
creating a duplicate.

The address is <type>.<name>, e.g. aws.s3.Bucket.logs.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	proj, err := loadProject(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if err := proj.backend.Lock(); err != nil {
		return err
	}
	defer proj.backend.Unlock()

	s, err := proj.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	registry := provider.NewRegistry()
	rec, err := importResource(ctx, registry, s, args[0], args[1])
	if err != nil {
		return err
	}

	s.Serial++
	if err := proj.backend.Write(ctx, s); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("Resource %s imported (id %v). Run plan to reconcile its configuration.\n", rec.Addr(), rec.Outputs["id"])
	return nil
}

// importResource reads the remote resource through its provider and commits
// a record for it. The caller holds the state lock and persists the state
// afterwards.
func importResource(ctx context.Context, registry *provider.Registry, st *ir.State, address, id string) (*ir.ResourceState, error) {
	typ, name, err := splitAddress(address)
	if err != nil {
		return nil, err
	}

	for _, res := range st.Resources {
		if res.Addr() == address {
			return nil, fmt.Errorf("resource %s is already managed", address)
		}
	}

	provName := strings.SplitN(typ, ".", 2)[0]
	if err := registry.LoadProvider(provName); err != nil {
		return nil, fmt.Errorf("failed to load provider %s: %w", provName, err)
	}
	prov, err := registry.Get(provName)
	if err != nil {
		return nil, err
	}

	resp, err := prov.Read(ctx, &pp.ReadRequest{
		Type:    typ,
		ID:      id,
		Current: json.RawMessage(`{}`),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %q: %w", typ, id, err)
	}
	if !resp.Exists {
		return nil, fmt.Errorf("no %s with id %q exists remotely", typ, id)
	}

	outputs := map[string]any{}
	if len(resp.NewState) > 0 {
		if err := json.Unmarshal(resp.NewState, &outputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal remote state for %s: %w", address, err)
		}
	}
	if v, ok := outputs["id"]; !ok || v == "" {
		outputs["id"] = id
	}

	rec := &ir.ResourceState{
		Type:     typ,
		Name:     name,
		Provider: provName,
		Outputs:  outputs,
	}
	state.NewStore(st).Commit(rec)
	return rec, nil
}

// splitAddress separates <type>.<name> at the final dot.
func splitAddress(address string) (typ, name string, err error) {
	i := strings.LastIndex(address, ".")
	if i <= 0 || i == len(address)-1 {
		return "", "", fmt.Errorf("invalid resource address %q, want <type>.<name>", address)
	}
	return address[:i], address[i+1:], nil
}
