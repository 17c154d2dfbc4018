package lysergic

import (
	"bytes"
	"fmt"
	"strconv"
)

// An Expr is a node in an emitted expression tree.
// Leaves are numeric literals and heap references; interior
// nodes are operators grouped by arity.
type Expr interface {
	exprNode()
}

// A Number is a floating point literal.
type Number struct {
	Value float64
}

// A Ref reads a heap cell.
// The same cell may be referenced by any number of Refs; the
// cell itself is owned by the Heap, not the tree.
type Ref struct {
	Cell *Cell
}

// A UnaryOp identifies a single-operand operator.
type UnaryOp int

const (
	UnaryNeg UnaryOp = iota
	UnaryExp
	UnaryLog
	UnaryAbs
)

// A Unary applies a UnaryOp to one operand.
type Unary struct {
	Op UnaryOp
	X  Expr
}

// A BinaryOp identifies a two-operand operator.
// Comparison operators evaluate to 1 or 0.
type BinaryOp int

const (
	BinaryAdd BinaryOp = iota
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryMax
	BinaryGt
	BinaryGte
	BinaryEq
)

// A Binary applies a BinaryOp to two operands.
type Binary struct {
	Op   BinaryOp
	X, Y Expr
}

// A Ternary selects between two branches on a condition.
// The condition is true when it evaluates to a non-zero value.
type Ternary struct {
	Cond, Then, Else Expr
}

func (*Number) exprNode()  {}
func (*Ref) exprNode()     {}
func (*Unary) exprNode()   {}
func (*Binary) exprNode()  {}
func (*Ternary) exprNode() {}

// An AssignOp identifies how an Assign combines its value
// with the target cell.
type AssignOp int

const (
	AssignSet AssignOp = iota
	AssignAdd
	AssignMul
)

// An Assign is a statement writing an expression's value
// into a heap cell.
type Assign struct {
	Target *Ref
	Op     AssignOp
	Value  Expr
}

// A Block is an ordered statement list with a debug label
// of the form "<Phase> <layer>:<unit>".
type Block struct {
	Label string
	Stmts []*Assign
}

func (b *Block) assign(target *Cell, op AssignOp, value Expr) {
	b.Stmts = append(b.Stmts, &Assign{Target: &Ref{Cell: target}, Op: op, Value: value})
}

// A Function is a named sequence of blocks.
type Function struct {
	Name   string
	Params []string
	Body   []*Block
}

func (f *Function) block(label string) *Block {
	b := &Block{Label: label}
	f.Body = append(f.Body, b)
	return b
}

// A Document is an ordered list of top-level functions, the
// unit handed to an execution backend.
type Document struct {
	Funcs []*Function
}

// Func returns the function with the given name, or nil.
func (d *Document) Func(name string) *Function {
	for _, f := range d.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Expression constructors used by the compiler.

func number(v float64) *Number {
	return &Number{Value: v}
}

func ref(c *Cell) *Ref {
	return &Ref{Cell: c}
}

func unary(op UnaryOp, x Expr) *Unary {
	return &Unary{Op: op, X: x}
}

func binary(op BinaryOp, x, y Expr) *Binary {
	return &Binary{Op: op, X: x, Y: y}
}

func add(x, y Expr) Expr {
	if x == nil {
		return y
	}
	return binary(BinaryAdd, x, y)
}

func sub(x, y Expr) Expr  { return binary(BinarySub, x, y) }
func mul(x, y Expr) Expr  { return binary(BinaryMul, x, y) }
func div(x, y Expr) Expr  { return binary(BinaryDiv, x, y) }
func max2(x, y Expr) Expr { return binary(BinaryMax, x, y) }
func exp(x Expr) Expr     { return unary(UnaryExp, x) }
func neg(x Expr) Expr     { return unary(UnaryNeg, x) }

func ternary(cond, then, els Expr) *Ternary {
	return &Ternary{Cond: cond, Then: then, Else: els}
}

// Rendering, used for inspection and debugging only.

var unaryNames = [...]string{UnaryNeg: "-", UnaryExp: "exp", UnaryLog: "log", UnaryAbs: "abs"}
var binaryNames = [...]string{
	BinaryAdd: "+", BinarySub: "-", BinaryMul: "*", BinaryDiv: "/",
	BinaryMax: "max", BinaryGt: ">", BinaryGte: ">=", BinaryEq: "==",
}
var assignNames = [...]string{AssignSet: "=", AssignAdd: "+=", AssignMul: "*="}

func exprString(e Expr) string {
	switch e := e.(type) {
	case *Number:
		return strconv.FormatFloat(e.Value, 'g', -1, 64)
	case *Ref:
		return e.Cell.Key().String()
	case *Unary:
		if e.Op == UnaryNeg {
			return "-" + exprString(e.X)
		}
		return unaryNames[e.Op] + "(" + exprString(e.X) + ")"
	case *Binary:
		if e.Op == BinaryMax {
			return "max(" + exprString(e.X) + ", " + exprString(e.Y) + ")"
		}
		return "(" + exprString(e.X) + " " + binaryNames[e.Op] + " " + exprString(e.Y) + ")"
	case *Ternary:
		return "(" + exprString(e.Cond) + " ? " + exprString(e.Then) + " : " + exprString(e.Else) + ")"
	}
	panic(fmt.Sprintf("unknown expression node: %T", e))
}

func (a *Assign) String() string {
	return exprString(a.Target) + " " + assignNames[a.Op] + " " + exprString(a.Value)
}

func (b *Block) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", b.Label)
	for _, s := range b.Stmts {
		fmt.Fprintf(&buf, "%s\n", s)
	}
	return buf.String()
}

func (f *Function) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "func %s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(p)
	}
	buf.WriteString(") {\n")
	for _, b := range f.Body {
		buf.WriteString(b.String())
	}
	buf.WriteString("}\n")
	return buf.String()
}

func (d *Document) String() string {
	var buf bytes.Buffer
	for i, f := range d.Funcs {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(f.String())
	}
	return buf.String()
}
