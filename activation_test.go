package lysergic

import (
	"math"
	"testing"

	"github.com/unixpickle/autofunc"
	"github.com/unixpickle/num-analysis/linalg"
)

// evalActivation evaluates the table's forward and derivative
// expressions for a single state value.
func evalActivation(kind ActivationKind, state float64) (fwd, deriv float64) {
	stateCell := &Cell{id: 0, key: MakeKey(CellState, 0)}
	actCell := &Cell{id: 1, key: MakeKey(CellActivation, 0)}
	mem := linalg.Vector{state, 0}
	in := &Interpreter{memory: mem}

	f := activationForward(kind, ref(stateCell))
	mem[1] = in.eval(f)
	d := activationDerivative(kind, ref(stateCell), ref(actCell))
	return mem[1], in.eval(d)
}

func TestActivationTable(t *testing.T) {
	sigmoid := func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	cases := []struct {
		name       string
		kind       ActivationKind
		state      float64
		fwd, deriv float64
	}{
		{"Identity", ActivationIdentity, 0.7, 0.7, 1},
		{"Logistic", ActivationLogisticSigmoid, 0.6, sigmoid(0.6), sigmoid(0.6) * (1 - sigmoid(0.6))},
		{"Tanh", ActivationTanh, 0.3, math.Tanh(0.3), 1 - math.Tanh(0.3)*math.Tanh(0.3)},
		{"ReluPositive", ActivationRelu, 1.5, 1.5, 1},
		{"ReluNegative", ActivationRelu, -1.5, 0, 0},
		{"ReluZero", ActivationRelu, 0, 0, 1},
		{"LeakyRelu", ActivationLeakyRelu, -2, -0.02, 0.01},
		{"Softplus", ActivationSoftplus, 0.4, math.Log(1 + math.Exp(0.4)), sigmoid(0.4)},
		{"Softsign", ActivationSoftsign, -0.5, -0.5 / 1.5, 1 / (1.5 * 1.5)},
		{"Exponential", ActivationExponential, 0.2, math.Exp(0.2), math.Exp(0.2)},
		{"Power", ActivationPower, 3, 9, 6},
		{"Gaussian", ActivationGaussian, 0.5, math.Exp(-0.25), -2 * 0.5 * math.Exp(-0.25)},
		{"InverseIdentity", ActivationInverseIdentity, 4, 0.25, -1.0 / 16},
		{"StepPositive", ActivationStep, 0.1, 1, 0},
		{"StepNegative", ActivationStep, -0.1, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fwd, deriv := evalActivation(c.kind, c.state)
			if math.Abs(fwd-c.fwd) > 1e-9 {
				t.Errorf("forward = %v, want %v", fwd, c.fwd)
			}
			if math.Abs(deriv-c.deriv) > 1e-9 {
				t.Errorf("derivative = %v, want %v", deriv, c.deriv)
			}
		})
	}
}

// TestLogisticAgainstAutofunc checks the emitted logistic
// expressions against autofunc's sigmoid and its gradient.
func TestLogisticAgainstAutofunc(t *testing.T) {
	for _, state := range []float64{-2, -0.5, 0, 0.6, 3} {
		fwd, deriv := evalActivation(ActivationLogisticSigmoid, state)

		inVar := &autofunc.Variable{Vector: linalg.Vector{state}}
		sig := autofunc.Sigmoid{}
		res := sig.Apply(inVar)
		if math.Abs(fwd-res.Output()[0]) > 1e-9 {
			t.Errorf("state %v: forward %v, autofunc %v", state, fwd, res.Output()[0])
		}

		grad := autofunc.NewGradient([]*autofunc.Variable{inVar})
		res.PropagateGradient(linalg.Vector{1}, grad)
		if math.Abs(deriv-grad[inVar][0]) > 1e-9 {
			t.Errorf("state %v: derivative %v, autofunc %v", state, deriv, grad[inVar][0])
		}
	}
}

func TestWholeLayerKinds(t *testing.T) {
	wholeLayer := []ActivationKind{
		ActivationSoftmax, ActivationMaxPooling, ActivationMaxout,
		ActivationAveragePooling, ActivationBatchNorm, ActivationSharpen,
	}
	for _, kind := range wholeLayer {
		if !kind.WholeLayer() {
			t.Errorf("%v should carry the whole-layer tag", kind)
		}
		if activationForward(kind, number(0)) != nil {
			t.Errorf("%v forward should be nil", kind)
		}
		if activationDerivative(kind, number(0), number(0)) != nil {
			t.Errorf("%v derivative should be nil", kind)
		}
	}
	perUnit := []ActivationKind{
		ActivationIdentity, ActivationLogisticSigmoid, ActivationTanh,
		ActivationRelu, ActivationStep,
	}
	for _, kind := range perUnit {
		if kind.WholeLayer() {
			t.Errorf("%v should not carry the whole-layer tag", kind)
		}
	}
	if !ActivationMaxPooling.pooling() || ActivationSoftmax.pooling() {
		t.Error("pooling classification is wrong")
	}
}
