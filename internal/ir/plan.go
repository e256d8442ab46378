package ir

// Plan represents a calculated execution plan. A plan is immutable once
// computed; apply consumes it and discards it.
type Plan struct {
	Metadata *PlanMetadata     `json:"metadata"`
	Changes  []*ResourceChange `json:"changes"`
	Summary  *PlanSummary      `json:"summary"`
	Outputs  map[string]any    `json:"outputs,omitempty"`
}

type PlanMetadata struct {
	Timestamp      string `json:"timestamp"`
	ConfigHash     string `json:"configHash,omitempty"`
	PriorStateHash string `json:"priorStateHash,omitempty"`
}

type ResourceChange struct {
	Address string                   `json:"address"`
	Action  string                   `json:"action"` // "CREATE", "UPDATE", "REPLACE", "DELETE", "NOOP"
	Desired *Resource                `json:"desired,omitempty"`
	Prior   *Resource                `json:"prior,omitempty"`
	Diff    map[string]*PropertyDiff `json:"diff,omitempty"`
}

type PropertyDiff struct {
	Before            any    `json:"before,omitempty"`
	After             any    `json:"after,omitempty"`
	Sensitive         bool   `json:"sensitive,omitempty"`
	ForcesReplacement bool   `json:"forcesReplacement,omitempty"`
	Action            string `json:"action"` // "create", "update", "delete", "noop"
}

type PlanSummary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Delete  int `json:"delete"`
	Replace int `json:"replace"`
	NoOp    int `json:"noop"`
}

// IsEmpty reports whether the plan proposes no changes.
func (p *Plan) IsEmpty() bool {
	return len(p.Changes) == 0
}
