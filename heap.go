package lysergic

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/unixpickle/num-analysis/linalg"
)

// ErrUndeclaredVariable is returned when a heap cell is read
// before it has been allocated.
// It always indicates a consistency bug in the caller, never a
// recoverable runtime condition.
var ErrUndeclaredVariable = errors.New("undeclared variable")

// A CellKind names the tensor a heap cell belongs to.
type CellKind int

const (
	CellState CellKind = iota
	CellActivation
	CellDerivative
	CellErrorResponsibility
	CellProjectedError
	CellGatedError
	CellWeight
	CellGain
	CellElegibilityTrace
	CellExtendedElegibilityTrace
	CellTarget
	CellLearningRate
	CellMaximum
	CellDenominator
)

var cellKindNames = [...]string{
	CellState:                    "state",
	CellActivation:               "activation",
	CellDerivative:               "derivative",
	CellErrorResponsibility:      "errorResponsibility",
	CellProjectedError:           "projectedErrorResponsibility",
	CellGatedError:               "gatedErrorResponsibility",
	CellWeight:                   "weight",
	CellGain:                     "gain",
	CellElegibilityTrace:         "elegibilityTrace",
	CellExtendedElegibilityTrace: "extendedElegibilityTrace",
	CellTarget:                   "target",
	CellLearningRate:             "learningRate",
	CellMaximum:                  "maximum",
	CellDenominator:              "denominator",
}

func (k CellKind) String() string {
	return cellKindNames[k]
}

// A Key is the composite identity of a heap cell: a kind plus
// up to three integer indices.
// Keys are comparable and are used directly as map keys; the
// bracketed string form only appears at the serialization
// boundary.
type Key struct {
	Kind    CellKind
	Rank    int
	I, J, K int
}

// MakeKey builds a Key from a kind and its indices.
func MakeKey(kind CellKind, indices ...int) Key {
	if len(indices) > 3 {
		panic("cell keys carry at most three indices")
	}
	k := Key{Kind: kind, Rank: len(indices)}
	switch len(indices) {
	case 3:
		k.K = indices[2]
		fallthrough
	case 2:
		k.J = indices[1]
		fallthrough
	case 1:
		k.I = indices[0]
	}
	return k
}

// String renders the key in its bracketed serialization form,
// e.g. "weight[3][1]".
func (k Key) String() string {
	s := k.Kind.String()
	idx := [3]int{k.I, k.J, k.K}
	for i := 0; i < k.Rank; i++ {
		s += "[" + strconv.Itoa(idx[i]) + "]"
	}
	return s
}

// ParseKey parses the bracketed string form of a key.
func ParseKey(s string) (Key, error) {
	base := s
	if i := strings.IndexByte(s, '['); i >= 0 {
		base = s[:i]
	}
	kind := CellKind(-1)
	for k, name := range cellKindNames {
		if name == base {
			kind = CellKind(k)
			break
		}
	}
	if kind < 0 {
		return Key{}, fmt.Errorf("unknown cell kind: %q", base)
	}
	var indices []int
	rest := s[len(base):]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return Key{}, fmt.Errorf("malformed cell key: %q", s)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Key{}, fmt.Errorf("malformed cell key: %q", s)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return Key{}, fmt.Errorf("malformed cell key %q: %v", s, err)
		}
		indices = append(indices, n)
		rest = rest[end+1:]
	}
	return MakeKey(kind, indices...), nil
}

// naturalLess orders keys the way their bracketed forms sort
// after zero-padding every index to nine digits, which keeps
// the cells of one tensor contiguous and ascending.
func naturalLess(a, b Key) bool {
	an, bn := a.Kind.String(), b.Kind.String()
	if an != bn {
		return an < bn
	}
	ai := [3]int{a.I, a.J, a.K}
	bi := [3]int{b.I, b.J, b.K}
	for i := 0; i < a.Rank || i < b.Rank; i++ {
		if i >= a.Rank {
			return true
		}
		if i >= b.Rank {
			return false
		}
		if ai[i] != bi[i] {
			return ai[i] < bi[i]
		}
	}
	return false
}

// A Tag marks a cell's role in the runtime I/O contract.
type Tag int

const (
	TagNone Tag = iota
	TagInput
	TagOutput
	TagTarget
)

// A Cell is one slot of the flat buffer.
// Its id is provisional until Finalize assigns the final
// contiguous layout.
type Cell struct {
	id      int
	key     Key
	initial *float64
	tag     Tag
}

// ID returns the cell's dense slot index.
func (c *Cell) ID() int {
	return c.id
}

// Key returns the cell's composite key.
func (c *Cell) Key() Key {
	return c.key
}

// Initial returns the cell's initial value, if one was set.
func (c *Cell) Initial() (float64, bool) {
	if c.initial == nil {
		return 0, false
	}
	return *c.initial, true
}

// Tag returns the cell's I/O role.
func (c *Cell) Tag() Tag {
	return c.tag
}

// A Heap maps composite keys to dense slot identifiers in a
// single flat numeric buffer.
// Allocation is idempotent: at most one cell exists per key.
type Heap struct {
	cells   map[Key]*Cell
	order   []*Cell
	inputs  []*Cell
	outputs []*Cell
	targets []*Cell
	memory  linalg.Vector
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{cells: map[Key]*Cell{}}
}

// Allocate returns the cell for key, creating it with no
// initial value when absent.
// An existing cell's initial value is left untouched.
func (h *Heap) Allocate(key Key) *Cell {
	if c, ok := h.cells[key]; ok {
		return c
	}
	c := &Cell{id: len(h.order), key: key}
	h.cells[key] = c
	h.order = append(h.order, c)
	return c
}

// AllocateValue is like Allocate but also records value as the
// cell's initial value, overwriting any previous one.
// The cell's identity is unchanged when it already exists.
func (h *Heap) AllocateValue(key Key, value float64) *Cell {
	c := h.Allocate(key)
	v := value
	c.initial = &v
	return c
}

// Get returns the cell for key, or ErrUndeclaredVariable when
// no such cell was ever allocated.
func (h *Heap) Get(key Key) (*Cell, error) {
	c, ok := h.cells[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndeclaredVariable, key)
	}
	return c, nil
}

// Has reports whether a cell exists for key without
// allocating one.
func (h *Heap) Has(key Key) bool {
	_, ok := h.cells[key]
	return ok
}

// Count returns the number of allocated cells.
func (h *Heap) Count() int {
	return len(h.order)
}

// SetTag records a cell's runtime I/O role.
// Tagged cells are served by SetInputs, Outputs and SetTargets
// in tagging order.
func (h *Heap) SetTag(c *Cell, tag Tag) {
	c.tag = tag
	switch tag {
	case TagInput:
		h.inputs = append(h.inputs, c)
	case TagOutput:
		h.outputs = append(h.outputs, c)
	case TagTarget:
		h.targets = append(h.targets, c)
	}
}

// Finalize sorts all cells into natural order, assigns their
// final contiguous ids, and returns the backing buffer with
// every recorded initial value written into its slot.
// The buffer holds at least minimumCells 64-bit cells.
func (h *Heap) Finalize(minimumCells int) linalg.Vector {
	ordered := make([]*Cell, len(h.order))
	copy(ordered, h.order)
	sort.SliceStable(ordered, func(i, j int) bool {
		return naturalLess(ordered[i].key, ordered[j].key)
	})
	size := len(ordered)
	if size < minimumCells {
		size = minimumCells
	}
	h.memory = make(linalg.Vector, size)
	for i, c := range ordered {
		c.id = i
		if c.initial != nil {
			h.memory[i] = *c.initial
		}
	}
	h.order = ordered
	return h.memory
}

// Memory returns the finalized buffer, or nil before Finalize.
func (h *Heap) Memory() linalg.Vector {
	return h.memory
}

// Cells returns every allocated cell in current layout order.
func (h *Heap) Cells() []*Cell {
	return h.order
}

// SetInputs writes values into the cells tagged TagInput, in
// layer-0 order.
func (h *Heap) SetInputs(values linalg.Vector) error {
	if len(values) != len(h.inputs) {
		return fmt.Errorf("expected %d inputs, got %d", len(h.inputs), len(values))
	}
	for i, c := range h.inputs {
		h.memory[c.id] = values[i]
	}
	return nil
}

// Outputs reads the cells tagged TagOutput in output-layer
// order.
func (h *Heap) Outputs() linalg.Vector {
	out := make(linalg.Vector, len(h.outputs))
	for i, c := range h.outputs {
		out[i] = h.memory[c.id]
	}
	return out
}

// SetTargets writes values into the cells tagged TagTarget.
// Target cells are registered in reverse output order to match
// the propagation pass, so values arrive in output-layer order
// and are written back to front.
func (h *Heap) SetTargets(values linalg.Vector) error {
	if len(values) != len(h.targets) {
		return fmt.Errorf("expected %d targets, got %d", len(h.targets), len(values))
	}
	for i, c := range h.targets {
		h.memory[c.id] = values[len(values)-1-i]
	}
	return nil
}
