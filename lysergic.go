// Package lysergic compiles declarative descriptions of gated
// recurrent neural networks into flat, heap-addressed
// computation graphs.
//
// A Topology collects units, connections and gates and keeps
// the derived adjacency sets the learning equations need; a
// Heap assigns every scalar the algorithm touches a stable
// slot in one flat buffer; Compile emits the activate and
// propagate routines as expression trees over those slots.
// The emitted Document can be interpreted directly or handed
// to an external code generator.
package lysergic

import "github.com/unixpickle/num-analysis/linalg"

// A Backend executes a compiled Document against the finalized
// heap buffer.
// The bundled Interpreter is the default; alternative backends
// (code generators, transpilers) depend only on the node-type
// hierarchy and the block labels.
type Backend interface {
	Activate() error
	Propagate() error
}

// A BackendFactory builds a Backend for a compiled document
// and its memory buffer.
type BackendFactory func(doc *Document, memory linalg.Vector) (Backend, error)
