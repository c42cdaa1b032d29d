package orchestrator

import (
	"errors"
	"slices"
)

// Chain holds an acyclic set of steps and their deterministic traversal orders.
// A Chain is immutable once built and safe for concurrent use.
type Chain struct {
	steps []Step // declaration order
	index map[string]int
	order []int // forward (provisioning) order, as indexes into steps
}

// NewChain validates the steps and computes the provisioning order.
//
// It fails with *DuplicateStepError, *UnknownDependencyError or *CyclicDependencyError
// before any capability is touched.
func NewChain(steps ...Step) (*Chain, error) {
	c := &Chain{
		steps: make([]Step, 0, len(steps)),
		index: make(map[string]int, len(steps)),
	}

	for _, s := range steps {
		if s.Name == "" {
			return nil, errors.New("step name cannot be empty")
		}
		if _, exists := c.index[s.Name]; exists {
			return nil, &DuplicateStepError{Name: s.Name}
		}
		s.DependsOn = dedupe(s.DependsOn)
		c.index[s.Name] = len(c.steps)
		c.steps = append(c.steps, s)
	}

	for _, s := range c.steps {
		for _, dep := range s.DependsOn {
			if _, ok := c.index[dep]; !ok {
				return nil, &UnknownDependencyError{Step: s.Name, Dependency: dep}
			}
		}
	}

	order, err := c.topoSort()
	if err != nil {
		return nil, err
	}
	c.order = order
	return c, nil
}

// topoSort runs Kahn's algorithm. Among steps that are ready at the same time the
// one declared first is emitted first, so the order is reproducible.
func (c *Chain) topoSort() ([]int, error) {
	inDegree := make([]int, len(c.steps))
	dependents := make([][]int, len(c.steps))
	for i, s := range c.steps {
		inDegree[i] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			d := c.index[dep]
			dependents[d] = append(dependents[d], i)
		}
	}

	ready := make([]int, 0, len(c.steps))
	for i, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(c.steps))
	for len(ready) > 0 {
		// ready is kept sorted, so the head is the earliest declared step
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, next := range dependents[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				pos, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, pos, next)
			}
		}
	}

	if len(order) != len(c.steps) {
		return nil, &CyclicDependencyError{Path: c.findCycle(inDegree)}
	}
	return order, nil
}

// findCycle walks dependency edges among the steps Kahn's algorithm could not emit
// and returns the first cycle it closes.
func (c *Chain) findCycle(inDegree []int) []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(c.steps))
	var stack []int

	var visit func(i int) []string
	visit = func(i int) []string {
		state[i] = onStack
		stack = append(stack, i)
		for _, dep := range c.steps[i].DependsOn {
			d := c.index[dep]
			switch state[d] {
			case onStack:
				start := slices.Index(stack, d)
				path := make([]string, 0, len(stack)-start+1)
				for _, idx := range stack[start:] {
					path = append(path, c.steps[idx].Name)
				}
				return append(path, c.steps[d].Name)
			case unvisited:
				if p := visit(d); p != nil {
					return p
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		return nil
	}

	for i := range c.steps {
		if inDegree[i] > 0 && state[i] == unvisited {
			if p := visit(i); p != nil {
				return p
			}
		}
	}
	return nil
}

// Len returns the number of steps.
func (c *Chain) Len() int {
	return len(c.steps)
}

// Steps returns the steps in declaration order.
func (c *Chain) Steps() []Step {
	return slices.Clone(c.steps)
}

// Step returns the named step.
func (c *Chain) Step(name string) (Step, bool) {
	i, ok := c.index[name]
	if !ok {
		return Step{}, false
	}
	return c.steps[i], true
}

// ForwardOrder returns the steps in provisioning order: every step comes after
// all of its dependencies.
func (c *Chain) ForwardOrder() []Step {
	out := make([]Step, len(c.order))
	for i, idx := range c.order {
		out[i] = c.steps[idx]
	}
	return out
}

// ReverseOrder returns the exact reverse of ForwardOrder, so every resource is torn
// down before the resources it depends on.
func (c *Chain) ReverseOrder() []Step {
	out := c.ForwardOrder()
	slices.Reverse(out)
	return out
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
