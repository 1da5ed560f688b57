package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPath(t *testing.T) {
	// b depends on a, c depends on b
	edges := map[string][]string{"c": {"b"}, "b": {"a"}}
	assert.True(t, HasPath(edges, "c", "a"))
	assert.True(t, HasPath(edges, "c", "b"))
	assert.False(t, HasPath(edges, "a", "c"))
	assert.True(t, HasPath(edges, "a", "a"))
}

func TestWouldCycle(t *testing.T) {
	// c -> b -> a (c depends on b, b depends on a)
	edges := map[string][]string{"c": {"b"}, "b": {"a"}}
	// a depending on c would close the loop a -> c -> b -> a
	assert.True(t, WouldCycle(edges, "a", "c"))
	// a depending on a fresh node is fine
	assert.False(t, WouldCycle(edges, "a", "d"))
}

func TestUnblocked(t *testing.T) {
	dependents := []string{"b", "c"}
	deps := map[string][]string{
		"b": {"a"},
		"c": {"a", "z"},
	}
	done := map[string]bool{"a": true}
	ready := Unblocked(dependents, deps, done)
	assert.Equal(t, []string{"b"}, ready)
}

func TestUnblocked_AllDependenciesSatisfied(t *testing.T) {
	dependents := []string{"b"}
	deps := map[string][]string{"b": {"a1", "a2"}}
	done := map[string]bool{"a1": true, "a2": true}
	assert.Equal(t, []string{"b"}, Unblocked(dependents, deps, done))
}

func TestCriticalPath_LinearChain(t *testing.T) {
	// c depends on b, b depends on a
	edges := map[string][]string{"c": {"b"}, "b": {"a"}}
	hours := map[string]float64{"a": 2, "b": 3, "c": 1}
	path, total := CriticalPath("c", edges, hours, nil)
	assert.Equal(t, []string{"c", "b", "a"}, path)
	assert.Equal(t, 6.0, total)
}

func TestCriticalPath_MissingEstimateDefaultsToOne(t *testing.T) {
	edges := map[string][]string{"b": {"a"}}
	path, total := CriticalPath("b", edges, map[string]float64{}, nil)
	assert.Equal(t, []string{"b", "a"}, path)
	assert.Equal(t, 2.0, total)
}

func TestCriticalPath_TieBreakByPriorityThenID(t *testing.T) {
	// root depends on both x and y, each independently weighted equally.
	edges := map[string][]string{"root": {"x", "y"}}
	hours := map[string]float64{"root": 0, "x": 5, "y": 5}
	rank := func(id string) (int, bool) {
		switch id {
		case "x":
			return 1, true
		case "y":
			return 2, true
		}
		return 0, false
	}
	path, _ := CriticalPath("root", edges, hours, rank)
	assert.Equal(t, []string{"root", "y"}, path)
}

func TestCriticalPath_TieBreakByIDWhenNoRank(t *testing.T) {
	edges := map[string][]string{"root": {"x", "y"}}
	hours := map[string]float64{"root": 0, "x": 5, "y": 5}
	path, _ := CriticalPath("root", edges, hours, func(string) (int, bool) { return 0, false })
	assert.Equal(t, []string{"root", "x"}, path)
}
