package lysergic

import (
	"fmt"
	"math"

	"github.com/unixpickle/num-analysis/linalg"
)

// An Interpreter executes a Document by walking its expression
// trees directly against the memory buffer.
type Interpreter struct {
	doc    *Document
	memory linalg.Vector
}

// NewInterpreter returns an interpreter over doc and memory.
func NewInterpreter(doc *Document, memory linalg.Vector) (Backend, error) {
	if doc.Func("activate") == nil || doc.Func("propagate") == nil {
		return nil, fmt.Errorf("document is missing activate or propagate")
	}
	return &Interpreter{doc: doc, memory: memory}, nil
}

// Activate runs the document's activate function.
func (in *Interpreter) Activate() error {
	return in.Run("activate")
}

// Propagate runs the document's propagate function.
func (in *Interpreter) Propagate() error {
	return in.Run("propagate")
}

// Run executes the named top-level function.
func (in *Interpreter) Run(name string) error {
	f := in.doc.Func(name)
	if f == nil {
		return fmt.Errorf("no such function: %s", name)
	}
	for _, b := range f.Body {
		for _, s := range b.Stmts {
			in.exec(s)
		}
	}
	return nil
}

func (in *Interpreter) exec(s *Assign) {
	v := in.eval(s.Value)
	id := s.Target.Cell.ID()
	switch s.Op {
	case AssignSet:
		in.memory[id] = v
	case AssignAdd:
		in.memory[id] += v
	case AssignMul:
		in.memory[id] *= v
	}
}

func (in *Interpreter) eval(e Expr) float64 {
	switch e := e.(type) {
	case *Number:
		return e.Value
	case *Ref:
		return in.memory[e.Cell.ID()]
	case *Unary:
		x := in.eval(e.X)
		switch e.Op {
		case UnaryNeg:
			return -x
		case UnaryExp:
			return math.Exp(x)
		case UnaryLog:
			return math.Log(x)
		case UnaryAbs:
			return math.Abs(x)
		}
	case *Binary:
		x, y := in.eval(e.X), in.eval(e.Y)
		switch e.Op {
		case BinaryAdd:
			return x + y
		case BinarySub:
			return x - y
		case BinaryMul:
			return x * y
		case BinaryDiv:
			return x / y
		case BinaryMax:
			return math.Max(x, y)
		case BinaryGt:
			return indicator(x > y)
		case BinaryGte:
			return indicator(x >= y)
		case BinaryEq:
			return indicator(x == y)
		}
	case *Ternary:
		if in.eval(e.Cond) != 0 {
			return in.eval(e.Then)
		}
		return in.eval(e.Else)
	}
	panic(fmt.Sprintf("unknown expression node: %T", e))
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
