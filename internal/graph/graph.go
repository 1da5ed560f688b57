// Package graph implements the engine's pure dependency-graph algorithms:
// cycle detection before an edge is inserted, and the set of tasks a
// completion should cascade-unblock. It holds no state of its own — the
// store package supplies the current edge set from within its own
// transaction so the check and the insert stay atomic.
package graph

// HasPath reports whether a path exists from -> to in edges (task_id ->
// depends_on adjacency, i.e. edges[t] are the ids t depends on). Adding a new
// edge from->to would create a cycle exactly when a path already exists
// to->from, so callers check HasPath(edges, to, from) before inserting
// from->to.
func HasPath(edges map[string][]string, from, to string) bool {
	if from == to {
		return true
	}
	visited := make(map[string]bool)
	var walk func(n string) bool
	walk = func(n string) bool {
		if n == to {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, next := range edges[n] {
			if walk(next) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// WouldCycle reports whether inserting the edge from->to (from depends on
// to) would create a cycle given the existing edge set.
func WouldCycle(edges map[string][]string, from, to string) bool {
	return HasPath(edges, to, from)
}

// Unblocked returns, from a candidate set of tasks that depend (directly or
// transitively doesn't matter, only direct edges are stored) on completed,
// the subset whose every dependency is now in the done set. Callers pass the
// direct dependents of completed and the task->dependencies map for those
// dependents.
func Unblocked(dependents []string, dependenciesOf map[string][]string, done map[string]bool) []string {
	var ready []string
	for _, t := range dependents {
		allDone := true
		for _, dep := range dependenciesOf[t] {
			if !done[dep] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, t)
		}
	}
	return ready
}

// CriticalPath returns the task ids on the longest chain by estimated hours
// ending at root, walking depends_on edges. hours[id] is the task's own
// estimate, defaulting to 1 when a task has none recorded;
// edges[id] are its dependencies. When two dependency chains tie on total
// weight, rank picks the winner by priority (higher first) then id
// (lexicographically first).
func CriticalPath(root string, edges map[string][]string, hours map[string]float64, rank func(id string) (priority int, ok bool)) ([]string, float64) {
	memo := make(map[string]chainResult)
	hourOf := func(id string) float64 {
		if h, ok := hours[id]; ok {
			return h
		}
		return 1
	}
	var walk func(n string) chainResult
	walk = func(n string) chainResult {
		if c, ok := memo[n]; ok {
			return c
		}
		best := chainResult{path: []string{n}, total: hourOf(n)}
		for _, dep := range edges[n] {
			c := walk(dep)
			total := c.total + hourOf(n)
			candidate := chainResult{path: append([]string{n}, c.path...), total: total}
			if betterChain(candidate, best, rank) {
				best = candidate
			}
		}
		memo[n] = best
		return best
	}
	out := walk(root)
	return out.path, out.total
}

type chainResult struct {
	path  []string
	total float64
}

func betterChain(a, b chainResult, rank func(id string) (priority int, ok bool)) bool {
	if a.total != b.total {
		return a.total > b.total
	}
	ap, aok := rank(a.path[len(a.path)-1])
	bp, bok := rank(b.path[len(b.path)-1])
	if aok && bok && ap != bp {
		return ap > bp
	}
	return a.path[len(a.path)-1] < b.path[len(b.path)-1]
}
