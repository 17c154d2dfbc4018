package lysergic

// A Connection is an ordered pair of units.
// At most one connection exists per ordered pair.
type Connection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// A Gate records that a unit's activation multiplicatively
// modulates an existing connection's effective weight.
type Gate struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Gater int `json:"gater"`
}

// UnitOptions configures a new unit.
type UnitOptions struct {
	// Activation selects the unit's activation function.
	Activation ActivationKind

	// Bias connects the unit from the bias unit, when one
	// exists, with weight fixed at 1.
	Bias bool
}

// A Topology owns the unit/connection/gate graph and keeps,
// per unit, the derived adjacency sets the learning equations
// need.
// Every mutation re-derives the sets of the units it touches
// from the full connection and gate lists; the sets are always
// consistent once the mutating call returns.
type Topology struct {
	heap *Heap

	units    int
	biasUnit int

	connections        []Connection
	gates              []Gate
	layers             [][]int
	activationFunction []ActivationKind

	inputsOf    [][]int
	projectedBy [][]int
	gatersOf    [][]int
	gatedBy     [][]int

	inputsOfGatedBy [][][]int
	derivativeTerm  [][]bool

	inputSet      [][]int
	projectionSet [][]int
	gateSet       [][]int
}

// NewTopology returns an empty topology allocating its cells
// on heap.
func NewTopology(heap *Heap) *Topology {
	return &Topology{heap: heap, biasUnit: -1}
}

// Units returns the number of units added so far.
func (t *Topology) Units() int {
	return t.units
}

// BiasUnit returns the designated bias unit, or -1.
func (t *Topology) BiasUnit() int {
	return t.biasUnit
}

// Layers returns the ordered layer list.
func (t *Topology) Layers() [][]int {
	return t.layers
}

// Activation returns the activation kind of a unit.
func (t *Topology) Activation(unit int) ActivationKind {
	return t.activationFunction[unit]
}

// AddBiasUnit creates the designated bias unit: fixed
// activation 1, never gateable through its outgoing
// connections.
func (t *Topology) AddBiasUnit() int {
	id := t.AddUnit(UnitOptions{Activation: ActivationIdentity})
	t.heap.AllocateValue(MakeKey(CellActivation, id), 1)
	t.biasUnit = id
	return id
}

// AddUnit creates a unit with the next sequential id and
// zero-initializes all of its per-unit heap cells.
func (t *Topology) AddUnit(opts UnitOptions) int {
	id := t.units
	t.units++
	t.activationFunction = append(t.activationFunction, opts.Activation)

	t.heap.AllocateValue(MakeKey(CellState, id), 0)
	t.heap.AllocateValue(MakeKey(CellActivation, id), 0)
	t.heap.AllocateValue(MakeKey(CellDerivative, id), 0)
	t.heap.AllocateValue(MakeKey(CellErrorResponsibility, id), 0)
	t.heap.AllocateValue(MakeKey(CellProjectedError, id), 0)
	t.heap.AllocateValue(MakeKey(CellGatedError, id), 0)
	t.heap.AllocateValue(MakeKey(CellGain, id, id), 1)
	t.heap.AllocateValue(MakeKey(CellElegibilityTrace, id, id), 0)

	t.inputsOf = append(t.inputsOf, nil)
	t.projectedBy = append(t.projectedBy, nil)
	t.gatersOf = append(t.gatersOf, nil)
	t.gatedBy = append(t.gatedBy, nil)
	t.inputSet = append(t.inputSet, nil)
	t.projectionSet = append(t.projectionSet, nil)
	t.gateSet = append(t.gateSet, nil)

	for i := range t.inputsOfGatedBy {
		t.inputsOfGatedBy[i] = append(t.inputsOfGatedBy[i], nil)
		t.derivativeTerm[i] = append(t.derivativeTerm[i], false)
	}
	t.inputsOfGatedBy = append(t.inputsOfGatedBy, make([][]int, t.units))
	t.derivativeTerm = append(t.derivativeTerm, make([]bool, t.units))

	if opts.Bias && t.biasUnit >= 0 {
		t.AddConnection(t.biasUnit, id, 1)
	}
	return id
}

// AddConnection connects from into to.
// Re-adding an existing pair is a silent no-op so callers can
// assert topologies declaratively.
// A self-connection's weight is fixed at 1 regardless of the
// supplied weight.
func (t *Topology) AddConnection(from, to int, weight float64) {
	if t.Connected(from, to) {
		return
	}
	t.connections = append(t.connections, Connection{From: from, To: to})
	t.heap.AllocateValue(MakeKey(CellGain, to, from), 1)
	if from == to {
		weight = 1
	}
	t.heap.AllocateValue(MakeKey(CellWeight, to, from), weight)
	t.heap.AllocateValue(MakeKey(CellElegibilityTrace, to, from), 0)
	t.track(to)
	t.track(from)
}

// AddGate puts the connection (from, to) under control of
// gater's activation.
// Gating an already gated connection, or a connection leaving
// the bias unit, is a silent no-op.
func (t *Topology) AddGate(from, to, gater int) {
	if t.Gated(from, to) || from == t.biasUnit {
		return
	}
	t.gates = append(t.gates, Gate{From: from, To: to, Gater: gater})
	t.track(to)
	t.track(from)
	t.track(gater)
}

// AddLayer creates size units and records them as the next
// ordered layer.
func (t *Topology) AddLayer(size int, opts UnitOptions) []int {
	layer := make([]int, size)
	for i := range layer {
		layer[i] = t.AddUnit(opts)
	}
	t.layers = append(t.layers, layer)
	return layer
}

// Connected reports whether the ordered pair (from, to) is
// connected.
func (t *Topology) Connected(from, to int) bool {
	for _, c := range t.connections {
		if c.From == from && c.To == to {
			return true
		}
	}
	return false
}

// Gated reports whether the connection (from, to) is gated.
func (t *Topology) Gated(from, to int) bool {
	for _, g := range t.gates {
		if g.From == from && g.To == to {
			return true
		}
	}
	return false
}

// SelfConnected reports whether unit connects to itself.
func (t *Topology) SelfConnected(unit int) bool {
	return t.Connected(unit, unit)
}

// track re-derives every adjacency set of unit from the full
// connection and gate lists.
// Full re-derivation trades asymptotic cost for correctness:
// the sets can never drift from the lists they are derived
// from.
func (t *Topology) track(unit int) {
	var inputs, projected, gaters, gated []int
	for _, c := range t.connections {
		if c.To == unit {
			inputs = append(inputs, c.From)
		}
		if c.From == unit {
			projected = append(projected, c.To)
		}
	}
	for _, g := range t.gates {
		if g.To == unit {
			gaters = append(gaters, g.Gater)
		}
		if g.Gater == unit {
			gated = append(gated, g.To)
		}
	}
	t.inputsOf[unit] = dedupe(inputs)
	t.projectedBy[unit] = dedupe(projected)
	t.gatersOf[unit] = dedupe(gaters)
	t.gatedBy[unit] = dedupe(gated)

	t.inputSet[unit] = exclude(t.inputsOf[unit], unit)
	t.projectionSet[unit] = downstream(t.projectedBy[unit], unit)
	t.gateSet[unit] = downstream(t.gatedBy[unit], unit)

	// unit as gater
	for _, k := range t.gatedBy[unit] {
		t.trackGatedPair(k, unit)
	}
	// unit as gated target
	for _, j := range t.gatersOf[unit] {
		t.trackGatedPair(unit, j)
	}

	// Zero-initialize every extended trace cell newly implied
	// by the updated sets, covering the unit's three possible
	// roles.
	for _, i := range t.inputsOf[unit] {
		for _, k := range t.gatedBy[unit] {
			t.initExtendedTrace(unit, i, k)
		}
	}
	for _, j := range t.projectedBy[unit] {
		for _, k := range t.gatedBy[j] {
			t.initExtendedTrace(j, unit, k)
		}
	}
	for _, j := range t.gatersOf[unit] {
		for _, i := range t.inputsOf[j] {
			t.initExtendedTrace(j, i, unit)
		}
	}
}

// trackGatedPair re-derives the Big Parenthesis index set and
// the derivative-term flag for the (target k, gater j) pair.
func (t *Topology) trackGatedPair(k, j int) {
	var inputs []int
	term := false
	for _, g := range t.gates {
		if g.To != k || g.Gater != j {
			continue
		}
		inputs = append(inputs, g.From)
		if g.From == k {
			term = true
		}
	}
	t.inputsOfGatedBy[k][j] = dedupe(inputs)
	t.derivativeTerm[k][j] = term
}

func (t *Topology) initExtendedTrace(j, i, k int) {
	key := MakeKey(CellExtendedElegibilityTrace, j, i, k)
	if !t.heap.Has(key) {
		t.heap.AllocateValue(key, 0)
	}
}

// Normalize converts every nil adjacency slot into an empty
// slice so the compiler can index without nil checks.
func (t *Topology) Normalize() {
	for u := 0; u < t.units; u++ {
		t.inputsOf[u] = nonNil(t.inputsOf[u])
		t.projectedBy[u] = nonNil(t.projectedBy[u])
		t.gatersOf[u] = nonNil(t.gatersOf[u])
		t.gatedBy[u] = nonNil(t.gatedBy[u])
		t.inputSet[u] = nonNil(t.inputSet[u])
		t.projectionSet[u] = nonNil(t.projectionSet[u])
		t.gateSet[u] = nonNil(t.gateSet[u])
		for v := 0; v < t.units; v++ {
			t.inputsOfGatedBy[u][v] = nonNil(t.inputsOfGatedBy[u][v])
		}
	}
}

func dedupe(units []int) []int {
	var out []int
	seen := map[int]bool{}
	for _, u := range units {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func exclude(units []int, unit int) []int {
	var out []int
	for _, u := range units {
		if u != unit {
			out = append(out, u)
		}
	}
	return out
}

// downstream keeps the units strictly greater than unit, so
// each ordered pair is processed exactly once during
// back-propagation.
func downstream(units []int, unit int) []int {
	var out []int
	for _, u := range units {
		if u > unit {
			out = append(out, u)
		}
	}
	return out
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
