package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// actorCriticMLP is a two-headed MLP sharing a single hidden trunk. A
// policy head predicts one unnormalized log probability (logit) per
// discrete action and a value head predicts the scalar state value.
// Because the heads share the trunk, a single gradient step updates
// both the policy and the value estimates.
type actorCriticMLP struct {
	g         *G.ExprGraph
	trunk     []Layer
	policy    Layer
	value     Layer
	input     *G.Node
	numInputs int
	batchSize int

	// Data needed for gobbing
	numActions  int
	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	logits    *G.Node
	logitsVal G.Value
	values    *G.Node
	valuesVal G.Value
}

// NewActorCriticMLP creates and returns a new two-headed actor-critic
// MLP. The hiddenSizes, biases, and activations parameters describe
// the shared trunk and must be non-empty, since with no trunk the two
// heads would be independent linear models. Both heads are linear
// layers with bias units: the policy head has actions outputs and the
// value head has a single output.
func NewActorCriticMLP(features, batch, actions int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	if actions < 1 {
		return nil, fmt.Errorf("newactorcriticmlp: must predict logits " +
			"for at least 1 action")
	}
	if len(hiddenSizes) == 0 {
		return nil, fmt.Errorf("newactorcriticmlp: heads must share at " +
			"least one hidden layer")
	}
	if len(hiddenSizes) != len(activations) {
		msg := "newactorcriticmlp: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "newactorcriticmlp: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	trunk := addfcLayers(g, hiddenSizes, biases, activations, init,
		features, "Trunk", "")

	trunkOut := hiddenSizes[len(hiddenSizes)-1]
	policy := addfcLayers(g, []int{actions}, []bool{true},
		[]*Activation{Identity()}, init, trunkOut, "Policy", "")[0]
	value := addfcLayers(g, []int{1}, []bool{true},
		[]*Activation{Identity()}, init, trunkOut, "Value", "")[0]

	network := actorCriticMLP{
		g:           g,
		trunk:       trunk,
		policy:      policy,
		value:       value,
		input:       input,
		numInputs:   features,
		batchSize:   batch,
		numActions:  actions,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}
	if err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("newactorcriticmlp: could not compute "+
			"forward pass: %v", err)
	}

	return &network, nil
}

// Graph returns the computational graph of the actorCriticMLP.
func (a *actorCriticMLP) Graph() *G.ExprGraph {
	return a.g
}

// Clone clones an actorCriticMLP, weights included, into a fresh
// graph.
func (a *actorCriticMLP) Clone() (NeuralNet, error) {
	return a.CloneWithBatch(a.batchSize)
}

// CloneWithBatch clones an actorCriticMLP, weights included, into a
// fresh graph with a new input batch size.
func (a *actorCriticMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("clonewithbatch: batch size must be >= 1")
	}
	graph := G.NewGraph()

	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchSize, a.numInputs),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	trunk := make([]Layer, len(a.trunk))
	for i := range a.trunk {
		trunk[i] = a.trunk[i].CloneTo(graph)
	}

	network := actorCriticMLP{
		g:           graph,
		trunk:       trunk,
		policy:      a.policy.CloneTo(graph),
		value:       a.value.CloneTo(graph),
		input:       input,
		numInputs:   a.numInputs,
		batchSize:   batchSize,
		numActions:  a.numActions,
		hiddenSizes: a.hiddenSizes,
		biases:      a.biases,
		activations: a.activations,
	}
	if err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone: %v", err)
	}

	return &network, nil
}

// BatchSize returns the number of input rows the network operates on.
func (a *actorCriticMLP) BatchSize() int {
	return a.batchSize
}

// Features returns the number of features in a single input row.
func (a *actorCriticMLP) Features() int {
	return a.numInputs
}

// Outputs returns the number of logits predicted per input row by the
// policy head. The value head always predicts a single value per row.
func (a *actorCriticMLP) Outputs() int {
	return a.numActions
}

// SetInput sets the value of the input node before running the
// forward pass.
func (a *actorCriticMLP) SetInput(input []float64) error {
	if len(input) != a.numInputs*a.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", a.numInputs*a.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(a.input.Shape()...),
	)
	return G.Let(a.input, inputTensor)
}

// Set sets the weights of the actorCriticMLP to be equal to the
// weights of another network of identical topology.
func (dest *actorCriticMLP) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: source and destination networks differ")
	}
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// layers returns the network's layers, trunk first and heads last, in
// a fixed order relied on by Learnables and gobbing.
func (a *actorCriticMLP) allLayers() []Layer {
	layers := make([]Layer, 0, len(a.trunk)+2)
	layers = append(layers, a.trunk...)
	layers = append(layers, a.policy, a.value)
	return layers
}

// Learnables returns the learnable nodes in the actorCriticMLP.
func (a *actorCriticMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if a.learnables == nil {
		a.learnables = learnablesOf(a.allLayers())
	}
	return a.learnables
}

// Model returns the learnable nodes with their gradients.
func (a *actorCriticMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if a.model == nil {
		a.model = modelOf(a.Learnables())
	}
	return a.model
}

// fwd performs the forward pass of the actorCriticMLP on the input
// node, running the trunk once and each head on the trunk output.
func (a *actorCriticMLP) fwd(input *G.Node) error {
	shared := input
	var err error
	for i, l := range a.trunk {
		if shared, err = l.fwd(shared); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"trunk layer %v: %v", i, err)
		}
	}

	logits, err := a.policy.fwd(shared)
	if err != nil {
		return fmt.Errorf("fwd: could not compute policy head: %v", err)
	}
	values, err := a.value.fwd(shared)
	if err != nil {
		return fmt.Errorf("fwd: could not compute value head: %v", err)
	}

	a.logits = logits
	a.values = values
	G.Read(a.logits, &a.logitsVal)
	G.Read(a.values, &a.valuesVal)
	return nil
}

// Output returns the logits and state values predicted by the last
// run of the network, in that order.
func (a *actorCriticMLP) Output() []G.Value {
	return []G.Value{a.logitsVal, a.valuesVal}
}

// Prediction returns the nodes of the computational graph that store
// the predicted logits and state values, in that order.
func (a *actorCriticMLP) Prediction() []*G.Node {
	return []*G.Node{a.logits, a.values}
}

// GobEncode implements the gob.GobEncoder interface
func (a *actorCriticMLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(a.numActions); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode action count")
	}
	if err := enc.Encode(a.numInputs); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of inputs")
	}
	if err := enc.Encode(a.batchSize); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode batch size")
	}
	if err := enc.Encode(a.hiddenSizes); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode hidden sizes")
	}
	if err := enc.Encode(a.biases); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode biases")
	}
	if err := enc.Encode(a.activations); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activations")
	}

	for i, layer := range a.allLayers() {
		if err := enc.Encode(layer); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode layer %v: %v",
				i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (a *actorCriticMLP) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var numActions int
	if err := dec.Decode(&numActions); err != nil {
		return fmt.Errorf("gobdecode: could not decode action count")
	}

	var numInputs int
	if err := dec.Decode(&numInputs); err != nil {
		return fmt.Errorf("gobdecode: could not decode number of inputs")
	}

	var batchSize int
	if err := dec.Decode(&batchSize); err != nil {
		return fmt.Errorf("gobdecode: could not decode batch size")
	}

	var hiddenSizes []int
	if err := dec.Decode(&hiddenSizes); err != nil {
		return fmt.Errorf("gobdecode: could not decode hidden sizes")
	}

	var biases []bool
	if err := dec.Decode(&biases); err != nil {
		return fmt.Errorf("gobdecode: could not decode biases")
	}

	var activations []*Activation
	if err := dec.Decode(&activations); err != nil {
		return fmt.Errorf("gobdecode: could not decode activations")
	}

	// Reconstruct the topology, then fill each layer's parameter
	// nodes with the decoded tensors
	g := G.NewGraph()
	newNet, err := NewActorCriticMLP(numInputs, batchSize, numActions, g,
		hiddenSizes, biases, G.Zeroes(), activations)
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new network: %v",
			err)
	}
	newMLP := newNet.(*actorCriticMLP)

	for i, layer := range newMLP.allLayers() {
		if err := dec.Decode(layer); err != nil {
			return fmt.Errorf("gobdecode: could not decode layer %v: %v", i,
				err)
		}
	}

	*a = *newMLP
	return nil
}
