package table

import (
	"container/heap"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// Violation records a package declared before one of its dependencies.
type Violation struct {
	Package    string
	Dependency string // Owning package of the offending edge.
}

func (v Violation) String() string {
	return fmt.Sprintf("%s is declared before its dependency %s", v.Package, v.Dependency)
}

// Order returns the packages in build order for the given mode.
//
// OrderDeclared returns the declared sequence unchanged and trusts it to
// respect the table. OrderTopological sorts the table so that every package
// follows the packages it depends on; among packages that are ready at the
// same time the one declared first is built first.
func (t *Table) Order(mode string) ([]types.Package, error) {
	switch mode {
	case types.OrderDeclared:
		return t.Packages(), nil
	case types.OrderTopological:
		return t.topological()
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownOrder, mode)
	}
}

// Violations lists every edge that the declared order does not respect.
func (t *Table) Violations() []Violation {
	var out []Violation
	for i, p := range t.packages {
		for _, j := range t.dependencies(i) {
			if j > i {
				out = append(out, Violation{Package: p.Path, Dependency: t.packages[j].Path})
			}
		}
	}
	return out
}

// dependencies returns the indices of the packages owning p's edges, once
// each, in first-seen order. Edges into p's own tree are ignored.
func (t *Table) dependencies(i int) []int {
	var out []int
	seen := map[int]bool{i: true}
	for _, dep := range t.packages[i].DependsOn {
		owner, ok := t.Owner(dep)
		if !ok {
			continue
		}
		j := t.index[owner.Path]
		if seen[j] {
			continue
		}
		seen[j] = true
		out = append(out, j)
	}
	return out
}

func (t *Table) topological() ([]types.Package, error) {
	n := len(t.packages)
	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i := range t.packages {
		for _, j := range t.dependencies(i) {
			dependents[j] = append(dependents[j], i)
			indegree[i]++
		}
	}

	ready := &intMinHeap{}
	for i := range n {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]types.Package, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, t.packages[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	if len(order) != n {
		var stuck []string
		for i, p := range t.packages {
			if indegree[i] > 0 {
				stuck = append(stuck, p.Path)
			}
		}
		return nil, fmt.Errorf("%w among: %s", types.ErrDependencyCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}

// intMinHeap orders ready packages by declared position.
type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *intMinHeap) Push(x any) { *h = append(*h, x.(int)) }

func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
