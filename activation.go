package lysergic

// An ActivationKind selects a unit's activation function.
// Whole-layer kinds share a tag bit and are compiled by the
// cross-unit builders instead of the per-unit table.
type ActivationKind int

// activationWholeLayer tags kinds whose output depends jointly
// on multiple units in the same layer.
const activationWholeLayer ActivationKind = 1 << 8

const (
	ActivationIdentity ActivationKind = iota
	ActivationLogisticSigmoid
	ActivationTanh
	ActivationRelu
	ActivationLeakyRelu
	ActivationSoftplus
	ActivationSoftsign
	ActivationExponential
	ActivationPower
	ActivationGaussian
	ActivationInverseIdentity
	ActivationStep
)

const (
	ActivationSoftmax ActivationKind = activationWholeLayer + iota
	ActivationMaxPooling
	ActivationMaxout
	ActivationAveragePooling
	ActivationBatchNorm
	ActivationSharpen
)

// WholeLayer reports whether the kind requires cross-unit
// computation.
func (k ActivationKind) WholeLayer() bool {
	return k&activationWholeLayer != 0
}

// pooling reports whether the kind derives its output purely
// from input activations, bypassing state, traces and weight
// updates.
func (k ActivationKind) pooling() bool {
	switch k {
	case ActivationMaxPooling, ActivationAveragePooling, ActivationMaxout:
		return true
	}
	return false
}

var activationKindNames = map[ActivationKind]string{
	ActivationIdentity:        "identity",
	ActivationLogisticSigmoid: "logistic",
	ActivationTanh:            "tanh",
	ActivationRelu:            "relu",
	ActivationLeakyRelu:       "leakyRelu",
	ActivationSoftplus:        "softplus",
	ActivationSoftsign:        "softsign",
	ActivationExponential:     "exponential",
	ActivationPower:           "power",
	ActivationGaussian:        "gaussian",
	ActivationInverseIdentity: "inverseIdentity",
	ActivationStep:            "step",
	ActivationSoftmax:         "softmax",
	ActivationMaxPooling:      "maxPooling",
	ActivationMaxout:          "maxout",
	ActivationAveragePooling:  "averagePooling",
	ActivationBatchNorm:       "batchNorm",
	ActivationSharpen:         "sharpen",
}

func (k ActivationKind) String() string {
	if s, ok := activationKindNames[k]; ok {
		return s
	}
	return "unknown"
}

const leakyReluSlope = 0.01

// activationForward returns the closed-form forward expression
// for a per-unit kind in terms of the unit's state, or nil for
// whole-layer kinds.
func activationForward(kind ActivationKind, state Expr) Expr {
	switch kind {
	case ActivationIdentity:
		return state
	case ActivationLogisticSigmoid:
		return div(number(1), add(number(1), exp(neg(state))))
	case ActivationTanh:
		// (e^2x - 1) / (e^2x + 1)
		e2x := exp(mul(number(2), state))
		return div(sub(e2x, number(1)), add(e2x, number(1)))
	case ActivationRelu:
		return max2(state, number(0))
	case ActivationLeakyRelu:
		return ternary(binary(BinaryGt, state, number(0)), state, mul(number(leakyReluSlope), state))
	case ActivationSoftplus:
		return unary(UnaryLog, add(number(1), exp(state)))
	case ActivationSoftsign:
		return div(state, add(number(1), unary(UnaryAbs, state)))
	case ActivationExponential:
		return exp(state)
	case ActivationPower:
		return mul(state, state)
	case ActivationGaussian:
		return exp(neg(mul(state, state)))
	case ActivationInverseIdentity:
		return div(number(1), state)
	case ActivationStep:
		return ternary(binary(BinaryGt, state, number(0)), number(1), number(0))
	}
	return nil
}

// activationDerivative returns the derivative expression for a
// per-unit kind in terms of the unit's state and already
// computed activation, or nil for whole-layer kinds.
// Step has zero gradient everywhere by convention.
func activationDerivative(kind ActivationKind, state, activation Expr) Expr {
	switch kind {
	case ActivationIdentity:
		return number(1)
	case ActivationLogisticSigmoid:
		return mul(activation, sub(number(1), activation))
	case ActivationTanh:
		return sub(number(1), mul(activation, activation))
	case ActivationRelu:
		return ternary(binary(BinaryGte, state, number(0)), number(1), number(0))
	case ActivationLeakyRelu:
		return ternary(binary(BinaryGt, state, number(0)), number(1), number(leakyReluSlope))
	case ActivationSoftplus:
		return div(number(1), add(number(1), exp(neg(state))))
	case ActivationSoftsign:
		d := add(number(1), unary(UnaryAbs, state))
		return div(number(1), mul(d, d))
	case ActivationExponential:
		return activation
	case ActivationPower:
		return mul(number(2), state)
	case ActivationGaussian:
		return mul(number(-2), mul(state, activation))
	case ActivationInverseIdentity:
		return neg(div(number(1), mul(state, state)))
	case ActivationStep:
		return number(0)
	}
	return nil
}
