package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// qMLP implements a multi-layered perceptron predicting one
// action-value estimate per discrete action. It is the value function
// approximator of the Q-learning agent and, when periodically
// synchronized with Set, its frozen bootstrap target.
type qMLP struct {
	g         *G.ExprGraph
	layers    []Layer
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

	prediction *G.Node
	predVal    G.Value
}

// NewQMLP creates and returns a new action-value MLP. The network has
// len(hiddenSizes) hidden layers; a final linear layer with a bias
// unit and actions outputs is always appended. For index i,
// hiddenSizes[i] is the number of units in hidden layer i, biases[i]
// denotes whether hidden layer i has a bias unit, and activations[i]
// is its activation function. The init parameter determines the
// weight initialization scheme.
func NewQMLP(features, batch, actions int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	if actions < 1 {
		return nil, fmt.Errorf("newqmlp: must predict at least 1 action " +
			"value")
	}
	if len(hiddenSizes) != len(activations) {
		msg := "newqmlp: invalid number of activations\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "newqmlp: invalid number of biases\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	// Final linear layer producing the action values
	sizes := append(append([]int{}, hiddenSizes...), actions)
	layerBiases := append(append([]bool{}, biases...), true)
	layerActivations := append(append([]*Activation{}, activations...),
		Identity())

	layers := addfcLayers(g, sizes, layerBiases, layerActivations, init,
		features, "", "")

	network := qMLP{
		g:           g,
		layers:      layers,
		input:       input,
		numInputs:   features,
		batchSize:   batch,
		numActions:  actions,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}
	if err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("newqmlp: could not compute forward pass: %v",
			err)
	}

	return &network, nil
}

// Graph returns the computational graph of the qMLP.
func (e *qMLP) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones a qMLP, weights included, into a fresh graph.
func (e *qMLP) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithBatch clones a qMLP, weights included, into a fresh graph
// with a new input batch size.
func (e *qMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("clonewithbatch: batch size must be >= 1")
	}
	graph := G.NewGraph()

	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchSize, e.numInputs),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	layers := make([]Layer, len(e.layers))
	for i := range e.layers {
		layers[i] = e.layers[i].CloneTo(graph)
	}

	network := qMLP{
		g:           graph,
		layers:      layers,
		input:       input,
		numInputs:   e.numInputs,
		batchSize:   batchSize,
		numActions:  e.numActions,
		hiddenSizes: e.hiddenSizes,
		biases:      e.biases,
		activations: e.activations,
	}
	if err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone: %v", err)
	}

	return &network, nil
}

// BatchSize returns the number of input rows the network operates on.
func (e *qMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single input row.
func (e *qMLP) Features() int {
	return e.numInputs
}

// Outputs returns the number of action values predicted per input
// row.
func (e *qMLP) Outputs() int {
	return e.numActions
}

// SetInput sets the value of the input node before running the
// forward pass.
func (e *qMLP) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the weights of the qMLP to be equal to the weights of
// another network of identical topology.
func (dest *qMLP) Set(source NeuralNet) error {
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

// Learnables returns the learnable nodes in the qMLP.
func (e *qMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		e.learnables = learnablesOf(e.layers)
	}
	return e.learnables
}

// Model returns the learnable nodes with their gradients.
func (e *qMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		e.model = modelOf(e.Learnables())
	}
	return e.model
}

// fwd performs the forward pass of the qMLP on the input node.
func (e *qMLP) fwd(input *G.Node) error {
	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	e.prediction = pred
	G.Read(e.prediction, &e.predVal)
	return nil
}

// Output returns the action values predicted by the last run of the
// network.
func (e *qMLP) Output() []G.Value {
	return []G.Value{e.predVal}
}

// Prediction returns the node of the computational graph that stores
// the predicted action values.
func (e *qMLP) Prediction() []*G.Node {
	return []*G.Node{e.prediction}
}

// GobEncode implements the gob.GobEncoder interface
func (e *qMLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(e.numActions); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode action count")
	}
	if err := enc.Encode(e.numInputs); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of inputs")
	}
	if err := enc.Encode(e.batchSize); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode batch size")
	}
	if err := enc.Encode(e.hiddenSizes); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode hidden sizes")
	}
	if err := enc.Encode(e.biases); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode biases")
	}
	if err := enc.Encode(e.activations); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activations")
	}

	for i, layer := range e.layers {
		if err := enc.Encode(layer); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode layer %v: %v",
				i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (e *qMLP) GobDecode(in []byte) error {
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
	newNet, err := NewQMLP(numInputs, batchSize, numActions, g, hiddenSizes,
		biases, G.Zeroes(), activations)
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new network: %v",
			err)
	}
	newMLP := newNet.(*qMLP)

	for i := range newMLP.layers {
		if err := dec.Decode(newMLP.layers[i]); err != nil {
			return fmt.Errorf("gobdecode: could not decode layer %v: %v", i,
				err)
		}
	}

	*e = *newMLP
	return nil
}

// learnablesOf collects the learnable nodes of a sequence of layers.
func learnablesOf(layers []Layer) G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(layers))
	for i := range layers {
		learnables = append(learnables, layers[i].Weights())
		if bias := layers[i].Bias(); bias != nil {
			learnables = append(learnables, bias)
		}
	}
	return G.Nodes(learnables)
}

// modelOf wraps learnable nodes as ValueGrads for a solver.
func modelOf(learnables G.Nodes) []G.ValueGrad {
	model := make([]G.ValueGrad, 0, len(learnables))
	for _, node := range learnables {
		model = append(model, node)
	}
	return model
}
