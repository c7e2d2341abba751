package plan

import "sort"

// DAG is a dependency graph over artifact ids. Edges point from an
// artifact to the artifacts it depends on. Ids referenced as
// dependencies but never declared become leaf nodes; the planner
// rejects those separately so the executor only ever sees a closed
// graph.
type DAG struct {
	deps       map[string][]string
	dependents map[string][]string
}

// NewDAG builds a graph from a dependency map. Dependency lists are
// de-duplicated and sorted; iteration over the graph is deterministic.
func NewDAG(deps map[string][]string) *DAG {
	d := &DAG{
		deps:       make(map[string][]string, len(deps)),
		dependents: make(map[string][]string),
	}
	for id, list := range deps {
		d.deps[id] = dedupSorted(list)
	}
	// Dependencies that are not declared ids still participate as nodes.
	for _, list := range d.deps {
		for _, dep := range list {
			if _, ok := d.deps[dep]; !ok {
				d.deps[dep] = nil
			}
		}
	}
	for id, list := range d.deps {
		for _, dep := range list {
			d.dependents[dep] = append(d.dependents[dep], id)
		}
	}
	for dep := range d.dependents {
		sort.Strings(d.dependents[dep])
	}
	return d
}

// Len returns the node count.
func (d *DAG) Len() int { return len(d.deps) }

// IDs returns all node ids, sorted.
func (d *DAG) IDs() []string {
	ids := make([]string, 0, len(d.deps))
	for id := range d.deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependencies returns the ids the given id depends on, sorted.
func (d *DAG) Dependencies(id string) []string { return d.deps[id] }

// Dependents returns the ids that depend on the given id, sorted.
func (d *DAG) Dependents(id string) []string { return d.dependents[id] }

// Validate reports a CycleError if the graph is not acyclic. The
// reported cycle is deterministic for a given graph.
func (d *DAG) Validate() error {
	_, err := d.TopologicalOrder()
	return err
}

// TopologicalOrder returns all ids in an order where every id appears
// after its dependencies. Ready ids are emitted in sorted order, so the
// result is deterministic.
func (d *DAG) TopologicalOrder() ([]string, error) {
	sorter := d.Sorter()
	order := make([]string, 0, len(d.deps))
	for sorter.IsActive() {
		ready := sorter.Ready()
		if len(ready) == 0 {
			return nil, &CycleError{Cycle: d.findCycle()}
		}
		for _, id := range ready {
			order = append(order, id)
			sorter.Done(id)
		}
	}
	return order, nil
}

// findCycle walks dependency edges from the smallest unvisitable node
// until an id repeats, then trims the walk to the cycle itself.
func (d *DAG) findCycle() []string {
	// Nodes that survive a full Kahn pass all sit on or behind a cycle.
	inDegree := make(map[string]int, len(d.deps))
	for id, list := range d.deps {
		inDegree[id] = len(list)
	}
	queue := make([]string, 0, len(d.deps))
	for _, id := range d.IDs() {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range d.dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	remaining := make(map[string]bool)
	var start string
	for _, id := range d.IDs() {
		if inDegree[id] > 0 {
			remaining[id] = true
			if start == "" {
				start = id
			}
		}
	}
	if start == "" {
		return nil
	}

	// Follow the first remaining dependency from each node until a
	// repeat closes the cycle.
	seen := map[string]int{}
	var walk []string
	current := start
	for {
		if at, ok := seen[current]; ok {
			cycle := append([]string{}, walk[at:]...)
			return append(cycle, current)
		}
		seen[current] = len(walk)
		walk = append(walk, current)
		next := ""
		for _, dep := range d.deps[current] {
			if remaining[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			return walk
		}
		current = next
	}
}

// Sorter returns a fresh topological iterator over the graph.
func (d *DAG) Sorter() *Sorter {
	s := &Sorter{
		dag:      d,
		inDegree: make(map[string]int, len(d.deps)),
		pending:  len(d.deps),
	}
	for id, list := range d.deps {
		s.inDegree[id] = len(list)
	}
	return s
}

// Sorter iterates a DAG in dependency order. Ready returns each id
// exactly once, when all of its dependencies have been reported done;
// the caller reports completion (or skip) via Done. Not safe for
// concurrent use; the executor serialises access on its coordinator.
type Sorter struct {
	dag      *DAG
	inDegree map[string]int
	emitted  map[string]bool
	pending  int
}

// Ready returns the sorted ids whose dependencies are all done and that
// have not been returned before. An empty result while IsActive means
// everything runnable is in flight.
func (s *Sorter) Ready() []string {
	var ready []string
	for id, deg := range s.inDegree {
		if deg == 0 && !s.emitted[id] {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	if len(ready) > 0 {
		if s.emitted == nil {
			s.emitted = make(map[string]bool)
		}
		for _, id := range ready {
			s.emitted[id] = true
		}
	}
	return ready
}

// Done records that id finished (in any terminal state) and unblocks
// its dependents.
func (s *Sorter) Done(id string) {
	deg, ok := s.inDegree[id]
	if !ok || deg < 0 {
		return
	}
	s.inDegree[id] = -1
	s.pending--
	for _, dep := range s.dag.dependents[id] {
		if s.inDegree[dep] > 0 {
			s.inDegree[dep]--
		}
	}
}

// IsActive reports whether any id has not yet been reported done.
func (s *Sorter) IsActive() bool { return s.pending > 0 }

func dedupSorted(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, id := range list {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
