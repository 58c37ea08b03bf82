// Package network implements the trainable function approximators
// used by the learning agents. Networks are Gorgonia computational
// graphs; gradient computation and weight updates are left to the
// caller, which runs the graph in a VM and steps a solver over
// Model().
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet is a function approximator mapping a batch of
// preprocessed observations to one or more batched output heads.
type NeuralNet interface {
	// Graph returns the computational graph the network lives in
	Graph() *G.ExprGraph

	// Clone clones the network, weights included, into a fresh graph
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network, weights included, into a
	// fresh graph with a new input batch size
	CloneWithBatch(int) (NeuralNet, error)

	// BatchSize returns the number of rows of the network's input
	BatchSize() int

	// Features returns the number of features in a single input row
	Features() int

	// Outputs returns the number of values predicted per input row by
	// the network's primary head
	Outputs() int

	// SetInput sets the value of the input node before the graph is
	// run
	SetInput([]float64) error

	// Set overwrites the network's weights with those of another
	// network of identical topology
	Set(NeuralNet) error

	// Learnables returns the network's learnable nodes
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad

	// Output returns the values of the network's output heads after
	// the graph has been run
	Output() []G.Value

	// Prediction returns the graph nodes holding the network's output
	// heads
	Prediction() []*G.Node
}

// Weights returns a copy of every learnable parameter tensor of n, in
// Learnables order. The returned tensors do not alias the network's
// parameters.
func Weights(n NeuralNet) []*tensor.Dense {
	learnables := n.Learnables()
	weights := make([]*tensor.Dense, len(learnables))
	for i, node := range learnables {
		weights[i] = node.Value().(*tensor.Dense).Clone().(*tensor.Dense)
	}
	return weights
}

// SetWeights overwrites every learnable parameter tensor of n with
// the given values, which must match in number and shape. This is the
// bulk import half of the Weights/SetWeights pair used for copying
// parameters between agents.
func SetWeights(n NeuralNet, weights []*tensor.Dense) error {
	learnables := n.Learnables()
	if len(weights) != len(learnables) {
		return fmt.Errorf("setweights: invalid number of parameter tensors"+
			"\n\twant(%v)\n\thave(%v)", len(learnables), len(weights))
	}
	for i, node := range learnables {
		if !node.Shape().Eq(weights[i].Shape()) {
			return fmt.Errorf("setweights: invalid shape for parameter %v"+
				"\n\twant(%v)\n\thave(%v)", i, node.Shape(),
				weights[i].Shape())
		}
	}

	for i, node := range learnables {
		clone := weights[i].Clone().(*tensor.Dense)
		if err := G.Let(node, clone); err != nil {
			return fmt.Errorf("setweights: could not set parameter %v: %v",
				i, err)
		}
	}
	return nil
}
