package schema

import "strings"

// PlatformOrder is the partial order over platform identifiers the matcher
// consults. It is loaded once from config at process start and never
// mutated, so reads need no locking.
type PlatformOrder struct {
	// descendants[ancestor] is the set of platforms that satisfy a
	// requirement for ancestor, including ancestor itself, computed as the
	// transitive closure of the configured edges.
	descendants map[string]map[string]struct{}
}

// NewPlatformOrder builds the transitive closure of the configured
// [ancestor, descendant] edges once, at startup, so Satisfies is O(1).
func NewPlatformOrder(edges [][2]string) *PlatformOrder {
	direct := make(map[string][]string)
	nodes := make(map[string]struct{})
	for _, e := range edges {
		ancestor, descendant := strings.ToLower(e[0]), strings.ToLower(e[1])
		direct[ancestor] = append(direct[ancestor], descendant)
		nodes[ancestor] = struct{}{}
		nodes[descendant] = struct{}{}
	}

	closure := make(map[string]map[string]struct{}, len(nodes))
	for n := range nodes {
		closure[n] = transitiveDescendants(n, direct)
	}

	return &PlatformOrder{descendants: closure}
}

func transitiveDescendants(start string, direct map[string][]string) map[string]struct{} {
	visited := map[string]struct{}{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, d := range direct[n] {
			if _, ok := visited[d]; ok {
				continue
			}
			visited[d] = struct{}{}
			queue = append(queue, d)
		}
	}
	return visited
}

// Satisfies reports whether a resource offering the given platform can run
// work that requires required: true iff offered equals required or is one
// of its transitive descendants. Unknown platforms satisfy only themselves;
// unrelated families never match across.
func (o *PlatformOrder) Satisfies(required, offered string) bool {
	required = strings.ToLower(required)
	offered = strings.ToLower(offered)
	if required == offered {
		return true
	}
	if o == nil {
		return false
	}
	set, ok := o.descendants[required]
	if !ok {
		return false
	}
	_, ok = set[offered]
	return ok
}
