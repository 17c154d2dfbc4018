package lysergic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/unixpickle/serializer"
)

func init() {
	var n Network
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNetwork)
}

type variableEntry struct {
	key   Key
	value *float64
}

// orderedVariables is the flat {key: initialValue} map of the
// persistence format, marshaled with its keys in natural sort
// order so per-tensor cells stay contiguous and ascending.
type orderedVariables []variableEntry

func (o orderedVariables) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(e.key.String())
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *orderedVariables) UnmarshalJSON(d []byte) error {
	var m map[string]*float64
	if err := json.Unmarshal(d, &m); err != nil {
		return err
	}
	entries := make(orderedVariables, 0, len(m))
	for k, v := range m {
		key, err := ParseKey(k)
		if err != nil {
			return err
		}
		entries = append(entries, variableEntry{key: key, value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return naturalLess(entries[i].key, entries[j].key)
	})
	*o = entries
	return nil
}

type networkJSON struct {
	LearningRate       float64          `json:"learningRate"`
	Variables          orderedVariables `json:"variables"`
	Connections        []Connection     `json:"connections"`
	Gates              []Gate           `json:"gates"`
	Layers             [][]int          `json:"layers"`
	InputsOf           [][]int          `json:"inputsOf"`
	ProjectedBy        [][]int          `json:"projectedBy"`
	GatersOf           [][]int          `json:"gatersOf"`
	GatedBy            [][]int          `json:"gatedBy"`
	InputsOfGatedBy    [][][]int        `json:"inputsOfGatedBy"`
	DerivativeTerm     [][]bool         `json:"derivativeTerm"`
	InputSet           [][]int          `json:"inputSet"`
	ProjectionSet      [][]int          `json:"projectionSet"`
	GateSet            [][]int          `json:"gateSet"`
	ActivationFunction []ActivationKind `json:"activationFunction"`
	BiasUnit           int              `json:"biasUnit"`
}

// SerializerType returns the unique ID used to serialize
// Networks with the serializer package.
func (n *Network) SerializerType() string {
	return "github.com/cazala/lysergic.Network"
}

// Serialize encodes the network's learning rate, heap variable
// map and every topology array as JSON.
func (n *Network) Serialize() ([]byte, error) {
	n.topology.Normalize()
	vars := make(orderedVariables, 0, n.heap.Count())
	for _, c := range n.heap.Cells() {
		vars = append(vars, variableEntry{key: c.key, value: c.initial})
	}
	sort.Slice(vars, func(i, j int) bool {
		return naturalLess(vars[i].key, vars[j].key)
	})
	t := n.topology
	return json.Marshal(&networkJSON{
		LearningRate:       n.LearningRate(),
		Variables:          vars,
		Connections:        t.connections,
		Gates:              t.gates,
		Layers:             t.layers,
		InputsOf:           t.inputsOf,
		ProjectedBy:        t.projectedBy,
		GatersOf:           t.gatersOf,
		GatedBy:            t.gatedBy,
		InputsOfGatedBy:    t.inputsOfGatedBy,
		DerivativeTerm:     t.derivativeTerm,
		InputSet:           t.inputSet,
		ProjectionSet:      t.projectionSet,
		GateSet:            t.gateSet,
		ActivationFunction: t.activationFunction,
		BiasUnit:           t.biasUnit,
	})
}

// DeserializeNetwork restores a network from its serialized
// form: every variable key is re-allocated through the heap in
// natural order and every topology array is restored verbatim,
// which reproduces a build-equivalent network.
// The restored network is unlocked; call Build to compile it.
func DeserializeNetwork(d []byte) (*Network, error) {
	var data networkJSON
	if err := json.Unmarshal(d, &data); err != nil {
		return nil, fmt.Errorf("deserialize network: %v", err)
	}

	n := &Network{heap: NewHeap(), factory: NewInterpreter, status: statusReverseInit}
	for _, e := range data.Variables {
		if e.value == nil {
			n.heap.Allocate(e.key)
		} else {
			n.heap.AllocateValue(e.key, *e.value)
		}
	}

	t := NewTopology(n.heap)
	t.units = len(data.ActivationFunction)
	t.biasUnit = data.BiasUnit
	t.connections = data.Connections
	t.gates = data.Gates
	t.layers = data.Layers
	t.activationFunction = data.ActivationFunction
	t.inputsOf = restoreSets(data.InputsOf, t.units)
	t.projectedBy = restoreSets(data.ProjectedBy, t.units)
	t.gatersOf = restoreSets(data.GatersOf, t.units)
	t.gatedBy = restoreSets(data.GatedBy, t.units)
	t.inputSet = restoreSets(data.InputSet, t.units)
	t.projectionSet = restoreSets(data.ProjectionSet, t.units)
	t.gateSet = restoreSets(data.GateSet, t.units)
	t.inputsOfGatedBy = data.InputsOfGatedBy
	t.derivativeTerm = data.DerivativeTerm
	if len(t.inputsOfGatedBy) != t.units || len(t.derivativeTerm) != t.units {
		t.inputsOfGatedBy = make([][][]int, t.units)
		t.derivativeTerm = make([][]bool, t.units)
		for u := 0; u < t.units; u++ {
			t.inputsOfGatedBy[u] = make([][]int, t.units)
			t.derivativeTerm[u] = make([]bool, t.units)
		}
		for _, g := range t.gates {
			t.trackGatedPair(g.To, g.Gater)
		}
	}
	t.Normalize()
	n.topology = t

	lrKey := MakeKey(CellLearningRate)
	if !n.heap.Has(lrKey) {
		n.heap.AllocateValue(lrKey, data.LearningRate)
	}
	n.learningRate, _ = n.heap.Get(lrKey)

	n.status = statusOpen
	return n, nil
}

func restoreSets(sets [][]int, units int) [][]int {
	if len(sets) != units {
		sets = append(sets, make([][]int, units-len(sets))...)
	}
	return sets
}
