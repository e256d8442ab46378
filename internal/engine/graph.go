package engine

import (
	"fmt"
	"strings"

	"github.com/terrapin-dev/terrapin/internal/ir"
)

// CycleError reports a dependency cycle in the resource graph. It is fatal
// and surfaced before planning.
type CycleError struct {
	Cycle []string // resource addresses forming the cycle, in order
}

func (e *CycleError) Error() string {
	if len(e.Cycle) == 0 {
		return "dependency cycle detected in resource graph"
	}
	return fmt.Sprintf("dependency cycle detected: %s -> %s",
		strings.Join(e.Cycle, " -> "), e.Cycle[0])
}

// DAG represents a directed acyclic graph of resources for dependency ordering.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type dagNode struct {
	addr     string
	edges    []string // resources this node depends on
	revEdges []string // resources that depend on this node
}

// BuildDAG constructs a dependency graph from resources.
// It resolves both explicit dependsOn and implicit ref:// references.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range resources {
		dag.nodes[res.Addr()] = &dagNode{addr: res.Addr()}
	}

	// Edges from dependsOn and ref:// references
	for _, res := range resources {
		node := dag.nodes[res.Addr()]

		for _, dep := range res.DependsOn {
			if _, ok := dag.nodes[dep]; ok {
				node.edges = append(node.edges, dep)
			}
		}

		for _, ref := range ExtractRefs(res.Properties) {
			depAddr := RefToAddr(ref)
			if depAddr == "" || depAddr == res.Addr() {
				continue
			}
			if _, ok := dag.nodes[depAddr]; ok {
				node.edges = append(node.edges, depAddr)
			}
		}
	}

	return dag.finish()
}

// BuildDAGFromState constructs a dependency graph from state records
// (used for destroy, where no configuration exists).
func BuildDAGFromState(resources []*ir.ResourceState) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range resources {
		node := &dagNode{addr: res.Addr()}
		node.edges = append(node.edges, res.Dependencies...)
		dag.nodes[res.Addr()] = node
	}

	// Records may reference dependencies that were already destroyed.
	for _, node := range dag.nodes {
		for _, dep := range node.edges {
			if _, ok := dag.nodes[dep]; !ok {
				dag.nodes[dep] = &dagNode{addr: dep}
			}
		}
	}

	return dag.finish()
}

// finish builds reverse edges and both orderings, failing on cycles.
func (d *DAG) finish() (*DAG, error) {
	for addr, node := range d.nodes {
		for _, dep := range node.edges {
			d.nodes[dep].revEdges = append(d.nodes[dep].revEdges, addr)
		}
	}

	order, err := d.topoSort()
	if err != nil {
		return nil, err
	}
	d.order = order

	d.revOrder = make([]string, len(order))
	for i, addr := range order {
		d.revOrder[len(order)-1-i] = addr
	}

	return d, nil
}

// CreationOrder returns resources in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns resources in reverse dependency order (safe for deletion).
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Dependencies returns the direct dependencies of a given address.
func (d *DAG) Dependencies(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// TransitiveDeps returns every address the given address depends on,
// directly or indirectly.
func (d *DAG) TransitiveDeps(addr string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(a string) {
		node, ok := d.nodes[a]
		if !ok {
			return
		}
		for _, dep := range node.edges {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
				walk(dep)
			}
		}
	}
	walk(addr)
	return out
}

// topoSort performs Kahn's algorithm for topological sorting.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int)
	for addr, node := range d.nodes {
		inDegree[addr] = len(node.edges)
	}

	var queue []string
	for addr, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, addr)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		for _, dependent := range d.nodes[node].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, &CycleError{Cycle: d.findCycle()}
	}

	return sorted, nil
}

// findCycle recovers a concrete cycle path via depth-first search so the
// error can name the resources involved.
func (d *DAG) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cycle []string

	var visit func(string) bool
	visit = func(addr string) bool {
		visited[addr] = true
		onStack[addr] = true
		stack = append(stack, addr)

		for _, dep := range d.nodes[addr].edges {
			if onStack[dep] {
				// Slice the stack from the first occurrence of dep
				for i, a := range stack {
					if a == dep {
						cycle = append(cycle, stack[i:]...)
						return true
					}
				}
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}

		onStack[addr] = false
		stack = stack[:len(stack)-1]
		return false
	}

	for addr := range d.nodes {
		if !visited[addr] && visit(addr) {
			break
		}
	}
	return cycle
}

// ExtractRefs extracts all ref:// references from a property value.
func ExtractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "ref://") {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case map[any]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	}
	return refs
}

// RefToAddr converts a ref:// reference to a resource address.
// ref://aws.ec2.Vpc/my-vpc/id -> aws.ec2.Vpc.my-vpc
func RefToAddr(ref string) string {
	if !strings.HasPrefix(ref, "ref://") {
		return ""
	}
	path := ref[len("ref://"):]
	// Format: type/name/attribute
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return fmt.Sprintf("%s.%s", parts[0], parts[1])
}
