package plan

import (
	"errors"
	"reflect"
	"testing"
)

func TestDAG_TopologicalOrder(t *testing.T) {
	d := NewDAG(map[string][]string{
		"load":     nil,
		"scan":     {"load"},
		"classify": {"scan"},
		"merge":    {"scan", "load"},
	})

	order, err := d.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("order = %v, want 4 ids", order)
	}
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	if pos["load"] > pos["scan"] || pos["scan"] > pos["classify"] || pos["scan"] > pos["merge"] {
		t.Errorf("order %v violates dependencies", order)
	}
}

func TestDAG_ValidateCycle(t *testing.T) {
	d := NewDAG(map[string][]string{
		"x": {"y"},
		"y": {"x"},
	})

	err := d.Validate()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error type = %T, want *CycleError", err)
	}
	if len(cycleErr.Cycle) < 3 {
		t.Errorf("cycle = %v, want a closed walk", cycleErr.Cycle)
	}
}

func TestDAG_ValidateIndirectCycle(t *testing.T) {
	d := NewDAG(map[string][]string{
		"a": nil,
		"b": {"a", "d"},
		"c": {"b"},
		"d": {"c"},
	})
	var cycleErr *CycleError
	if !errors.As(d.Validate(), &cycleErr) {
		t.Fatal("indirect cycle not detected")
	}
}

func TestDAG_UndeclaredDependencyBecomesNode(t *testing.T) {
	d := NewDAG(map[string][]string{
		"scan": {"ghost"},
	})
	if d.Len() != 2 {
		t.Errorf("Len = %d, want 2 (ghost becomes a node)", d.Len())
	}
	if got := d.Dependents("ghost"); len(got) != 1 || got[0] != "scan" {
		t.Errorf("Dependents(ghost) = %v, want [scan]", got)
	}
}

func TestSorter_ReadyBatches(t *testing.T) {
	d := NewDAG(map[string][]string{
		"a": nil,
		"b": nil,
		"c": {"a", "b"},
		"d": {"c"},
	})
	s := d.Sorter()

	if got := s.Ready(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("first Ready = %v, want [a b]", got)
	}
	// Everything runnable is in flight; nothing new is ready.
	if got := s.Ready(); len(got) != 0 {
		t.Fatalf("second Ready = %v, want empty while in flight", got)
	}

	s.Done("a")
	if got := s.Ready(); len(got) != 0 {
		t.Fatalf("Ready after one of two deps = %v, want empty", got)
	}

	s.Done("b")
	if got := s.Ready(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("Ready = %v, want [c]", got)
	}
	s.Done("c")
	if got := s.Ready(); !reflect.DeepEqual(got, []string{"d"}) {
		t.Fatalf("Ready = %v, want [d]", got)
	}

	if !s.IsActive() {
		t.Fatal("sorter inactive with d still pending")
	}
	s.Done("d")
	if s.IsActive() {
		t.Fatal("sorter active after all done")
	}
}

func TestSorter_DoneWithoutReady(t *testing.T) {
	// Resume marks prior-run terminal artifacts done without dispatching.
	d := NewDAG(map[string][]string{
		"a": nil,
		"b": {"a"},
	})
	s := d.Sorter()
	s.Done("a")

	if got := s.Ready(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("Ready = %v, want [b]", got)
	}
	s.Done("b")
	if s.IsActive() {
		t.Error("sorter active after all done")
	}

	// Duplicate and unknown ids are ignored.
	s.Done("b")
	s.Done("nope")
	if s.IsActive() {
		t.Error("duplicate Done corrupted pending count")
	}
}
