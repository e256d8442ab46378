package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/terrapin-dev/terrapin/internal/ir"
)

// ExpandForEach flattens count and forEach resources into concrete instances
// before planning. Count yields name[0]..name[n-1] with ${count.index}
// interpolated; forEach yields name["key"] per entry with ${each.key} and
// ${each.value}. Resources with neither pass through untouched.
func ExpandForEach(resources []*ir.Resource) []*ir.Resource {
	expanded := make([]*ir.Resource, 0, len(resources))

	for _, res := range resources {
		switch {
		case res.Count > 0:
			for i := 0; i < res.Count; i++ {
				expanded = append(expanded, expandInstance(res,
					fmt.Sprintf("%s[%d]", res.Name, i),
					map[string]string{"${count.index}": strconv.Itoa(i)},
				))
			}
		case len(res.ForEach) > 0:
			for key, val := range res.ForEach {
				expanded = append(expanded, expandInstance(res,
					fmt.Sprintf("%s[%q]", res.Name, key),
					map[string]string{
						"${each.key}":   key,
						"${each.value}": fmt.Sprintf("%v", val),
					},
				))
			}
		default:
			expanded = append(expanded, res)
		}
	}

	return expanded
}

// expandInstance clones the template resource under its instance name with
// the iteration variables substituted into every string property. Nothing in
// the clone aliases the template.
func expandInstance(res *ir.Resource, name string, vars map[string]string) *ir.Resource {
	inst := &ir.Resource{
		Type:      res.Type,
		Name:      name,
		Provider:  res.Provider,
		Timeout:   res.Timeout,
		DependsOn: append([]string(nil), res.DependsOn...),
	}

	if res.Lifecycle != nil {
		lc := *res.Lifecycle
		lc.IgnoreChanges = append([]string(nil), res.Lifecycle.IgnoreChanges...)
		inst.Lifecycle = &lc
	}

	if res.Properties != nil {
		props, _ := interpolate(res.Properties, vars).(map[string]any)
		inst.Properties = props
	}

	return inst
}

// interpolate deep-copies a property value, substituting iteration variables
// in every string it encounters.
func interpolate(v any, vars map[string]string) any {
	switch val := v.(type) {
	case string:
		out := val
		for pattern, repl := range vars {
			out = strings.ReplaceAll(out, pattern, repl)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = interpolate(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolate(item, vars)
		}
		return out
	default:
		return v
	}
}
