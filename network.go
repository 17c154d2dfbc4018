package lysergic

import (
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/num-analysis/linalg"
)

var (
	// ErrNetworkLocked is returned when the topology is
	// mutated after the network has been built.
	ErrNetworkLocked = errors.New("network is locked")

	// ErrInvalidLearningRate is returned for non-positive or
	// non-finite learning rates.
	ErrInvalidLearningRate = errors.New("invalid learning rate")

	// ErrLayerAddition is returned when a layer is added while
	// the network is in its reverse-initialization phase.
	ErrLayerAddition = errors.New("cannot add a layer during reverse initialization")
)

type networkStatus int

const (
	statusOpen networkStatus = iota
	statusReverseInit
	statusLocked
)

// Options configures a new Network.
type Options struct {
	// Bias creates a designated bias unit as unit 0.
	Bias bool

	// LearningRate scales every emitted weight update.
	LearningRate float64

	// Backend builds the execution backend for the compiled
	// document; nil selects the bundled Interpreter.
	Backend BackendFactory
}

// DefaultOptions returns the options NewNetwork applies when
// given nil.
func DefaultOptions() *Options {
	return &Options{Bias: true, LearningRate: 0.1}
}

// A Network is the facade tying a Topology, a Heap and a
// compiled Document together.
// It is built once; topology mutations after Build fail with
// ErrNetworkLocked.
type Network struct {
	heap     *Heap
	topology *Topology
	doc      *Document
	backend  Backend

	learningRate *Cell
	factory      BackendFactory
	status       networkStatus
}

// NewNetwork creates an empty network.
func NewNetwork(opts *Options) (*Network, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if !validLearningRate(opts.LearningRate) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLearningRate, opts.LearningRate)
	}
	heap := NewHeap()
	n := &Network{
		heap:         heap,
		topology:     NewTopology(heap),
		learningRate: heap.AllocateValue(MakeKey(CellLearningRate), opts.LearningRate),
		factory:      opts.Backend,
	}
	if n.factory == nil {
		n.factory = NewInterpreter
	}
	if opts.Bias {
		n.topology.AddBiasUnit()
	}
	return n, nil
}

// Heap returns the network's heap.
func (n *Network) Heap() *Heap {
	return n.heap
}

// Topology returns the network's topology tracker.
func (n *Network) Topology() *Topology {
	return n.topology
}

// Document returns the compiled document, or nil before Build.
func (n *Network) Document() *Document {
	return n.doc
}

// AddUnit adds a unit to the topology.
func (n *Network) AddUnit(opts UnitOptions) (int, error) {
	if n.status == statusLocked {
		return 0, ErrNetworkLocked
	}
	return n.topology.AddUnit(opts), nil
}

// AddConnection adds a connection; adding an existing pair is
// a no-op.
func (n *Network) AddConnection(from, to int, weight float64) error {
	if n.status == statusLocked {
		return ErrNetworkLocked
	}
	n.topology.AddConnection(from, to, weight)
	return nil
}

// AddGate gates an existing connection; gating it twice, or
// gating a bias connection, is a no-op.
func (n *Network) AddGate(from, to, gater int) error {
	if n.status == statusLocked {
		return ErrNetworkLocked
	}
	n.topology.AddGate(from, to, gater)
	return nil
}

// AddLayer adds an ordered layer of size units.
func (n *Network) AddLayer(size int, opts UnitOptions) ([]int, error) {
	switch n.status {
	case statusLocked:
		return nil, ErrNetworkLocked
	case statusReverseInit:
		return nil, ErrLayerAddition
	}
	return n.topology.AddLayer(size, opts), nil
}

// Build compiles the topology into the activate and propagate
// routines, finalizes the heap layout, and locks the network.
// Building an already built network is a no-op.
func (n *Network) Build() error {
	if n.status == statusLocked {
		return nil
	}
	doc, err := Compile(n.topology, n.heap)
	if err != nil {
		return err
	}
	memory := n.heap.Finalize(0)
	backend, err := n.factory(doc, memory)
	if err != nil {
		return err
	}
	n.doc = doc
	n.backend = backend
	n.status = statusLocked
	return nil
}

// SetLearningRate updates the learning rate used by the
// emitted weight updates.
func (n *Network) SetLearningRate(rate float64) error {
	if !validLearningRate(rate) {
		return fmt.Errorf("%w: %v", ErrInvalidLearningRate, rate)
	}
	n.heap.AllocateValue(n.learningRate.Key(), rate)
	if mem := n.heap.Memory(); mem != nil {
		mem[n.learningRate.ID()] = rate
	}
	return nil
}

// LearningRate returns the current learning rate.
func (n *Network) LearningRate() float64 {
	if mem := n.heap.Memory(); mem != nil {
		return mem[n.learningRate.ID()]
	}
	v, _ := n.learningRate.Initial()
	return v
}

// SetInputs writes the layer-0 activations.
func (n *Network) SetInputs(inputs linalg.Vector) error {
	if err := n.Build(); err != nil {
		return err
	}
	return n.heap.SetInputs(inputs)
}

// Outputs reads the output-layer activations.
func (n *Network) Outputs() linalg.Vector {
	return n.heap.Outputs()
}

// Activate builds the network if necessary, injects inputs,
// runs the activate routine and returns the outputs.
func (n *Network) Activate(inputs linalg.Vector) (linalg.Vector, error) {
	if err := n.SetInputs(inputs); err != nil {
		return nil, err
	}
	if err := n.backend.Activate(); err != nil {
		return nil, err
	}
	return n.Outputs(), nil
}

// Propagate injects targets and runs the propagate routine,
// updating every trainable weight in place.
func (n *Network) Propagate(targets linalg.Vector) error {
	if err := n.Build(); err != nil {
		return err
	}
	if err := n.heap.SetTargets(targets); err != nil {
		return err
	}
	return n.backend.Propagate()
}

func validLearningRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}
