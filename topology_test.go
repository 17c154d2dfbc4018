package lysergic

import (
	"reflect"
	"testing"
)

func newTestTopology(units int) *Topology {
	topo := NewTopology(NewHeap())
	for i := 0; i < units; i++ {
		topo.AddUnit(UnitOptions{Activation: ActivationLogisticSigmoid})
	}
	return topo
}

func intsEqual(a, b []int) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func TestAdjacencySets(t *testing.T) {
	topo := newTestTopology(4)
	topo.AddConnection(0, 2, 0.1)
	topo.AddConnection(1, 2, 0.2)
	topo.AddConnection(2, 2, 0.3)
	topo.AddConnection(2, 3, 0.4)
	topo.AddConnection(0, 2, 0.9) // duplicate, must be ignored
	topo.AddGate(0, 2, 3)
	topo.AddGate(1, 2, 3)
	topo.AddGate(1, 2, 0) // (1,2) already gated, must be ignored

	if got := topo.inputsOf[2]; !intsEqual(got, []int{0, 1, 2}) {
		t.Errorf("inputsOf[2] = %v", got)
	}
	if got := topo.inputSet[2]; !intsEqual(got, []int{0, 1}) {
		t.Errorf("inputSet[2] = %v", got)
	}
	if got := topo.projectedBy[2]; !intsEqual(got, []int{2, 3}) {
		t.Errorf("projectedBy[2] = %v", got)
	}
	if got := topo.gatersOf[2]; !intsEqual(got, []int{3}) {
		t.Errorf("gatersOf[2] = %v", got)
	}
	if got := topo.gatedBy[3]; !intsEqual(got, []int{2}) {
		t.Errorf("gatedBy[3] = %v", got)
	}
	if got := topo.inputsOfGatedBy[2][3]; !intsEqual(got, []int{0, 1}) {
		t.Errorf("inputsOfGatedBy[2][3] = %v", got)
	}
	if len(topo.connections) != 4 {
		t.Errorf("duplicate connection was recorded: %v", topo.connections)
	}
	if len(topo.gates) != 2 {
		t.Errorf("duplicate gate was recorded: %v", topo.gates)
	}
}

func TestDerivativeTermFlag(t *testing.T) {
	topo := newTestTopology(3)
	topo.AddConnection(1, 1, 1) // self-connection
	topo.AddConnection(0, 1, 0.5)
	topo.AddGate(1, 1, 2) // unit 2 gates unit 1's self-connection
	topo.AddGate(0, 1, 2)

	if !topo.derivativeTerm[1][2] {
		t.Error("derivativeTerm[1][2] should be set: 2 gates 1's self-connection")
	}
	if topo.derivativeTerm[1][0] {
		t.Error("derivativeTerm[1][0] should be clear")
	}
	if got := topo.inputsOfGatedBy[1][2]; !intsEqual(got, []int{1, 0}) {
		t.Errorf("inputsOfGatedBy[1][2] = %v", got)
	}
}

func TestDownstreamSets(t *testing.T) {
	topo := newTestTopology(5)
	// Unit 2 projects both upstream and downstream.
	topo.AddConnection(2, 0, 0.1)
	topo.AddConnection(2, 4, 0.2)
	// Unit 2 gates connections into a lower and a higher unit.
	topo.AddConnection(3, 1, 0.3)
	topo.AddConnection(3, 4, 0.4)
	topo.AddGate(3, 1, 2)
	topo.AddGate(3, 4, 2)

	if got := topo.projectedBy[2]; !intsEqual(got, []int{0, 4}) {
		t.Errorf("projectedBy[2] = %v", got)
	}
	if got := topo.projectionSet[2]; !intsEqual(got, []int{4}) {
		t.Errorf("projectionSet[2] = %v, want only downstream units", got)
	}
	if got := topo.gatedBy[2]; !intsEqual(got, []int{1, 4}) {
		t.Errorf("gatedBy[2] = %v", got)
	}
	if got := topo.gateSet[2]; !intsEqual(got, []int{4}) {
		t.Errorf("gateSet[2] = %v, want only downstream units", got)
	}
	for u := 0; u < topo.Units(); u++ {
		for _, k := range topo.projectionSet[u] {
			if k <= u {
				t.Errorf("projectionSet[%d] contains %d", u, k)
			}
		}
		for _, k := range topo.gateSet[u] {
			if k <= u {
				t.Errorf("gateSet[%d] contains %d", u, k)
			}
		}
	}
}

func TestSelfConnectionWeight(t *testing.T) {
	topo := newTestTopology(2)
	topo.AddConnection(1, 1, 0.42)
	c, err := topo.heap.Get(MakeKey(CellWeight, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Initial(); v != 1 {
		t.Errorf("self-connection weight = %v, want 1", v)
	}
}

func TestBiasGateNoop(t *testing.T) {
	topo := NewTopology(NewHeap())
	bias := topo.AddBiasUnit()
	x := topo.AddUnit(UnitOptions{Activation: ActivationLogisticSigmoid, Bias: true})
	gater := topo.AddUnit(UnitOptions{Activation: ActivationLogisticSigmoid})

	before := len(topo.gates)
	topo.AddGate(bias, x, gater)
	if len(topo.gates) != before {
		t.Error("gating a bias connection must be a no-op")
	}
	gain, err := topo.heap.Get(MakeKey(CellGain, x, bias))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := gain.Initial(); v != 1 {
		t.Errorf("bias connection gain = %v, want 1", v)
	}
	weight, err := topo.heap.Get(MakeKey(CellWeight, x, bias))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := weight.Initial(); v != 1 {
		t.Errorf("bias connection weight = %v, want 1", v)
	}
}

func TestBiasUnitActivation(t *testing.T) {
	topo := NewTopology(NewHeap())
	bias := topo.AddBiasUnit()
	c, err := topo.heap.Get(MakeKey(CellActivation, bias))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Initial(); v != 1 {
		t.Errorf("bias activation = %v, want fixed 1", v)
	}
}

func TestExtendedTraceInitialization(t *testing.T) {
	topo := newTestTopology(4)
	topo.AddConnection(0, 3, 0.5) // j=3 gets input i=0
	topo.AddConnection(1, 2, 0.5)
	topo.AddGate(1, 2, 3) // j=3 gates k=2

	key := MakeKey(CellExtendedElegibilityTrace, 3, 0, 2)
	c, err := topo.heap.Get(key)
	if err != nil {
		t.Fatalf("extended trace cell missing: %v", err)
	}
	if v, ok := c.Initial(); !ok || v != 0 {
		t.Errorf("extended trace cell not zero-initialized: %v, %v", v, ok)
	}
}

func TestTrackIdempotent(t *testing.T) {
	topo := newTestTopology(3)
	topo.AddConnection(0, 2, 0.5)
	topo.AddConnection(1, 2, 0.5)
	before := make([]int, len(topo.inputsOf[2]))
	copy(before, topo.inputsOf[2])

	topo.track(2)
	topo.track(2)
	if !intsEqual(topo.inputsOf[2], before) {
		t.Errorf("track is not idempotent: %v != %v", topo.inputsOf[2], before)
	}
}

func TestNormalize(t *testing.T) {
	topo := newTestTopology(3)
	topo.Normalize()
	for u := 0; u < 3; u++ {
		if topo.inputsOf[u] == nil || topo.projectionSet[u] == nil {
			t.Fatalf("unit %d has nil adjacency slots after Normalize", u)
		}
		for v := 0; v < 3; v++ {
			if topo.inputsOfGatedBy[u][v] == nil {
				t.Fatalf("inputsOfGatedBy[%d][%d] is nil after Normalize", u, v)
			}
		}
	}
}
