package lysergic

import "fmt"

// Compile walks the topology's layers in order and emits the
// activate and propagate routines as labeled expression-tree
// blocks over heap cells.
//
// Referencing a cell the tracker never allocated surfaces as
// ErrUndeclaredVariable: the derived sets disagree with the
// connection and gate lists, which is a build-time invariant
// violation, not a recoverable condition.
func Compile(topo *Topology, heap *Heap) (*Document, error) {
	topo.Normalize()
	c := &compiler{topo: topo, heap: heap}

	activate := &Function{Name: "activate"}
	propagate := &Function{Name: "propagate"}

	c.tagInputs()
	c.buildActivate(activate)
	c.tagOutputs()
	c.buildPropagate(propagate)

	if c.err != nil {
		return nil, c.err
	}
	return &Document{Funcs: []*Function{activate, propagate}}, nil
}

type compiler struct {
	topo *Topology
	heap *Heap
	err  error
}

// cell resolves an existing heap cell, recording the first
// failure and returning a placeholder so emission can keep
// going; Compile reports the recorded error.
func (c *compiler) cell(kind CellKind, indices ...int) *Cell {
	key := MakeKey(kind, indices...)
	cell, err := c.heap.Get(key)
	if err != nil {
		if c.err == nil {
			c.err = err
		}
		return &Cell{key: key}
	}
	return cell
}

func (c *compiler) tagInputs() {
	layers := c.topo.Layers()
	if len(layers) == 0 {
		return
	}
	for _, u := range layers[0] {
		c.heap.SetTag(c.cell(CellActivation, u), TagInput)
	}
}

func (c *compiler) tagOutputs() {
	layers := c.topo.Layers()
	if len(layers) < 2 {
		return
	}
	for _, u := range layers[len(layers)-1] {
		c.heap.SetTag(c.cell(CellActivation, u), TagOutput)
	}
}

func (c *compiler) buildActivate(f *Function) {
	layers := c.topo.Layers()
	for l := 1; l < len(layers); l++ {
		layer := layers[l]
		for _, u := range layer {
			if !c.topo.Activation(u).pooling() {
				c.buildComputeState(f, l, u)
			}
		}
		for _, u := range layer {
			c.buildActivation(f, l, u)
		}
		c.buildWholeLayer(f, l, layer)
		for _, u := range layer {
			c.buildDerivative(f, l, u)
		}
		for _, u := range layer {
			if !c.topo.Activation(u).pooling() {
				c.buildTraces(f, l, u)
			}
		}
	}
}

// buildComputeState emits the forward weighted sum for unit j:
// the self-connection term carries over the previous state,
// and every gated input multiplies its gain.
func (c *compiler) buildComputeState(f *Function, layer, j int) {
	b := f.block(fmt.Sprintf("ComputeState %d:%d", layer, j))
	state := c.cell(CellState, j)
	if c.topo.SelfConnected(j) {
		carry := Expr(ref(c.cell(CellWeight, j, j)))
		if c.topo.Gated(j, j) {
			carry = mul(ref(c.cell(CellGain, j, j)), carry)
		}
		b.assign(state, AssignMul, carry)
	} else {
		b.assign(state, AssignSet, number(0))
	}
	for _, i := range c.topo.inputSet[j] {
		term := mul(ref(c.cell(CellWeight, j, i)), ref(c.cell(CellActivation, i)))
		if c.topo.Gated(i, j) {
			term = mul(ref(c.cell(CellGain, j, i)), term)
		}
		b.assign(state, AssignAdd, term)
	}
}

func (c *compiler) buildActivation(f *Function, layer, j int) {
	kind := c.topo.Activation(j)
	fwd := activationForward(kind, ref(c.cell(CellState, j)))
	if fwd == nil {
		return
	}
	b := f.block(fmt.Sprintf("Activation %d:%d", layer, j))
	b.assign(c.cell(CellActivation, j), AssignSet, fwd)
}

func (c *compiler) buildDerivative(f *Function, layer, j int) {
	kind := c.topo.Activation(j)
	d := activationDerivative(kind, ref(c.cell(CellState, j)), ref(c.cell(CellActivation, j)))
	if d == nil {
		return
	}
	b := f.block(fmt.Sprintf("Derivative %d:%d", layer, j))
	b.assign(c.cell(CellDerivative, j), AssignSet, d)
}

// buildWholeLayer buckets the layer's units by whole-layer
// kind and emits one shared block per kind present.
func (c *compiler) buildWholeLayer(f *Function, layer int, units []int) {
	buckets := map[ActivationKind][]int{}
	var order []ActivationKind
	for _, u := range units {
		kind := c.topo.Activation(u)
		if !kind.WholeLayer() {
			continue
		}
		if _, ok := buckets[kind]; !ok {
			order = append(order, kind)
		}
		buckets[kind] = append(buckets[kind], u)
	}
	for _, kind := range order {
		switch kind {
		case ActivationSoftmax:
			c.buildSoftmax(f, layer, buckets[kind])
		case ActivationMaxPooling:
			c.buildMaxPooling(f, layer, buckets[kind])
		default:
			if c.err == nil {
				c.err = fmt.Errorf("no whole-layer builder for %v", kind)
			}
		}
	}
}

// buildSoftmax emits the numerically stable shared softmax
// computation for one bucket, then the full Jacobian
// diagonal-minus-outer-product derivative contraction.
func (c *compiler) buildSoftmax(f *Function, layer int, units []int) {
	b := f.block(fmt.Sprintf("Softmax %d", layer))
	maximum := c.heap.AllocateValue(MakeKey(CellMaximum, layer), 0)
	denominator := c.heap.AllocateValue(MakeKey(CellDenominator, layer), 0)

	b.assign(maximum, AssignSet, ref(c.cell(CellState, units[0])))
	for _, u := range units[1:] {
		b.assign(maximum, AssignSet, max2(ref(maximum), ref(c.cell(CellState, u))))
	}
	for _, u := range units {
		b.assign(c.cell(CellActivation, u), AssignSet,
			exp(sub(ref(c.cell(CellState, u)), ref(maximum))))
	}
	b.assign(denominator, AssignSet, number(0))
	for _, u := range units {
		b.assign(denominator, AssignAdd, ref(c.cell(CellActivation, u)))
	}
	for _, u := range units {
		act := c.cell(CellActivation, u)
		b.assign(act, AssignSet, div(ref(act), ref(denominator)))
	}
	for _, i := range units {
		acti := ref(c.cell(CellActivation, i))
		deriv := c.cell(CellDerivative, i)
		b.assign(deriv, AssignSet, mul(acti, sub(number(1), acti)))
		for _, j := range units {
			if j == i {
				continue
			}
			b.assign(deriv, AssignAdd, neg(mul(ref(c.cell(CellActivation, j)), acti)))
		}
	}
}

// buildMaxPooling emits one shared block where each pooling
// unit takes the maximum of its inputs' activations and every
// input's contribution weight becomes the Kronecker delta of
// matching that maximum.
// Ties deliberately leave weight 1 on every maximal input.
func (c *compiler) buildMaxPooling(f *Function, layer int, units []int) {
	b := f.block(fmt.Sprintf("MaxPooling %d", layer))
	for _, j := range units {
		inputs := c.topo.inputSet[j]
		if len(inputs) == 0 {
			continue
		}
		act := c.cell(CellActivation, j)
		b.assign(act, AssignSet, ref(c.cell(CellActivation, inputs[0])))
		for _, i := range inputs[1:] {
			b.assign(act, AssignSet, max2(ref(act), ref(c.cell(CellActivation, i))))
		}
		for _, i := range inputs {
			delta := ternary(
				binary(BinaryEq, ref(c.cell(CellActivation, i)), ref(act)),
				number(1), number(0))
			b.assign(c.cell(CellWeight, j, i), AssignSet, delta)
		}
		b.assign(c.cell(CellDerivative, j), AssignSet, number(1))
	}
}

// buildTraces emits the eligibility trace update, the extended
// eligibility trace update for every unit gated by j, and the
// gain propagation of j's gates.
func (c *compiler) buildTraces(f *Function, layer, j int) {
	b := f.block(fmt.Sprintf("ElegibilityTrace %d:%d", layer, j))
	selfConnected := c.topo.SelfConnected(j)
	selfGated := c.topo.Gated(j, j)

	for _, i := range c.topo.inputSet[j] {
		trace := c.cell(CellElegibilityTrace, j, i)
		input := Expr(ref(c.cell(CellActivation, i)))
		if c.topo.Gated(i, j) {
			input = mul(ref(c.cell(CellGain, j, i)), input)
		}
		switch {
		case selfConnected && selfGated:
			carry := mul(ref(c.cell(CellGain, j, j)), mul(ref(c.cell(CellWeight, j, j)), ref(trace)))
			b.assign(trace, AssignSet, add(carry, input))
		case selfConnected:
			carry := mul(ref(c.cell(CellWeight, j, j)), ref(trace))
			b.assign(trace, AssignSet, add(carry, input))
		default:
			b.assign(trace, AssignSet, input)
		}

		for _, k := range c.topo.gatedBy[j] {
			xtrace := c.cell(CellExtendedElegibilityTrace, j, i, k)
			influence := mul(ref(c.cell(CellDerivative, j)),
				mul(ref(trace), c.bigParenthesisTerm(k, j)))
			switch {
			case c.topo.SelfConnected(k) && c.topo.Gated(k, k):
				carry := mul(ref(c.cell(CellGain, k, k)), mul(ref(c.cell(CellWeight, k, k)), ref(xtrace)))
				b.assign(xtrace, AssignSet, add(carry, influence))
			case c.topo.SelfConnected(k):
				carry := mul(ref(c.cell(CellWeight, k, k)), ref(xtrace))
				b.assign(xtrace, AssignSet, add(carry, influence))
			default:
				b.assign(xtrace, AssignSet, influence)
			}
		}
	}

	for _, g := range c.topo.gates {
		if g.Gater != j {
			continue
		}
		b.assign(c.cell(CellGain, g.To, g.From), AssignSet, ref(c.cell(CellActivation, j)))
	}
}

// bigParenthesisTerm builds the shared per-(target k, gater j)
// sum: the gated target's other inputs weighted by their
// connection weights, seeded with state[k] when j gates k's
// own self-connection.
func (c *compiler) bigParenthesisTerm(k, j int) Expr {
	var sum Expr
	if c.topo.derivativeTerm[k][j] {
		sum = ref(c.cell(CellState, k))
	}
	for _, a := range c.topo.inputsOfGatedBy[k][j] {
		if a == k {
			continue
		}
		sum = add(sum, mul(ref(c.cell(CellWeight, k, a)), ref(c.cell(CellActivation, a))))
	}
	if sum == nil {
		sum = number(0)
	}
	return sum
}

func (c *compiler) buildPropagate(f *Function) {
	layers := c.topo.Layers()
	if len(layers) < 2 {
		return
	}
	output := layers[len(layers)-1]
	for idx := len(output) - 1; idx >= 0; idx-- {
		j := output[idx]
		l := len(layers) - 1
		b := f.block(fmt.Sprintf("ErrorResponsibility %d:%d", l, j))
		target := c.heap.AllocateValue(MakeKey(CellTarget, j), 0)
		c.heap.SetTag(target, TagTarget)
		err := c.cell(CellErrorResponsibility, j)
		b.assign(err, AssignSet, sub(ref(target), ref(c.cell(CellActivation, j))))
		b.assign(c.cell(CellProjectedError, j), AssignSet, ref(err))
		c.buildWeightUpdate(f, l, j, true)
	}
	for l := len(layers) - 2; l >= 1; l-- {
		layer := layers[l]
		for idx := len(layer) - 1; idx >= 0; idx-- {
			j := layer[idx]
			c.buildHiddenError(f, l, j)
			c.buildWeightUpdate(f, l, j, false)
		}
	}
}

// buildHiddenError emits the projected and gated error
// responsibilities of a hidden unit and their sum.
func (c *compiler) buildHiddenError(f *Function, layer, j int) {
	b := f.block(fmt.Sprintf("ErrorResponsibility %d:%d", layer, j))
	derivative := ref(c.cell(CellDerivative, j))
	projected := c.topo.projectionSet[j]
	gated := c.topo.gateSet[j]

	if len(projected) > 0 {
		var sum Expr
		for _, k := range projected {
			weighted := Expr(ref(c.cell(CellWeight, k, j)))
			if c.topo.Gated(j, k) {
				weighted = mul(ref(c.cell(CellGain, k, j)), weighted)
			}
			sum = add(sum, mul(ref(c.cell(CellErrorResponsibility, k)), weighted))
		}
		b.assign(c.cell(CellProjectedError, j), AssignSet, mul(derivative, sum))
	}
	if len(gated) > 0 {
		var sum Expr
		for _, k := range gated {
			sum = add(sum, mul(ref(c.cell(CellErrorResponsibility, k)), c.bigParenthesisTerm(k, j)))
		}
		b.assign(c.cell(CellGatedError, j), AssignSet, mul(derivative, sum))
	}

	err := c.cell(CellErrorResponsibility, j)
	switch {
	case len(projected) > 0 && len(gated) > 0:
		b.assign(err, AssignSet, add(ref(c.cell(CellProjectedError, j)), ref(c.cell(CellGatedError, j))))
	case len(projected) > 0:
		b.assign(err, AssignSet, ref(c.cell(CellProjectedError, j)))
	case len(gated) > 0:
		b.assign(err, AssignSet, ref(c.cell(CellGatedError, j)))
	}
}

// buildWeightUpdate emits the learning-rate-scaled update of
// every incoming weight of j from its eligibility and extended
// eligibility traces.
// Max-pooling units carry no trainable weights and are skipped.
func (c *compiler) buildWeightUpdate(f *Function, layer, j int, isOutput bool) {
	if c.topo.Activation(j).pooling() {
		return
	}
	hasProjected := isOutput || len(c.topo.projectionSet[j]) > 0
	gated := c.topo.gateSet[j]
	if !hasProjected && len(gated) == 0 {
		return
	}
	b := f.block(fmt.Sprintf("WeightUpdate %d:%d", layer, j))
	rate := c.cell(CellLearningRate)
	for _, i := range c.topo.inputSet[j] {
		var delta Expr
		if hasProjected {
			delta = mul(ref(c.cell(CellProjectedError, j)),
				ref(c.cell(CellElegibilityTrace, j, i)))
		}
		for _, k := range gated {
			delta = add(delta, mul(ref(c.cell(CellErrorResponsibility, k)),
				ref(c.cell(CellExtendedElegibilityTrace, j, i, k))))
		}
		b.assign(c.cell(CellWeight, j, i), AssignAdd, mul(ref(rate), delta))
	}
}
