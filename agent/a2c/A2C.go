// Package a2c implements an advantage actor-critic agent with a
// combined policy and value network.
//
// Unlike the replay-driven Q-learning agent, the A2C agent is
// on-policy: every training call consumes the buffer's entire
// occupancy as a single batch. The actor is updated along the
// advantage-weighted policy gradient with entropy regularization and
// the critic regresses the bootstrapped return under a Huber loss;
// one gradient step updates both through the shared trunk.
//
// A Gorgonia graph has a fixed input shape, so the training graph is
// rebuilt, carrying its weights, whenever the buffer occupancy differs
// from the previous training call. The solver persists across
// rebuilds.
package a2c

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/snakeai/snakelearn/agent"
	"github.com/snakeai/snakelearn/network"
	"github.com/snakeai/snakelearn/utils/floatutils"
	"github.com/snakeai/snakelearn/utils/op"
)

// huberDelta is the error magnitude at which the critic loss switches
// from quadratic to linear.
const huberDelta = 1.0

// Losses holds the loss components of a single A2C training step.
type Losses struct {
	Total  float64
	Actor  float64
	Critic float64
}

// A2C implements the advantage actor-critic algorithm on a combined
// policy and value network.
//
// The policyNet copy holds the canonical live weights at batch size 1
// and serves action selection. The training graph and its forward-only
// companion are created at the occupancy of the first training call
// and re-cloned whenever the occupancy changes. The target network
// mirrors this: its canonical weights live at batch size 1 and a
// batch-sized copy is kept for bootstrapping.
type A2C struct {
	*agent.Base
	config Config

	policyNet network.NeuralNet
	policyVM  G.VM

	targetNet network.NeuralNet

	solver G.Solver

	// Training graph, rebuilt on occupancy change
	trainBatch   int
	trainNet     network.NeuralNet
	trainVM      G.VM
	model        []G.ValueGrad
	advantages   *G.Node
	criticTarget *G.Node
	totalVal     G.Value
	actorVal     G.Value
	criticVal    G.Value

	predNet       network.NeuralNet
	predVM        G.VM
	batchTarget   network.NeuralNet
	batchTargetVM G.VM
}

// New creates and returns a new A2C agent.
func New(config Config, seed uint64) (*A2C, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	base, err := agent.NewBase(config.Config, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create agent base: %v", err)
	}

	g := G.NewGraph()
	policyNet, err := network.NewActorCriticMLP(config.Features(), 1,
		config.NumActions, g, config.HiddenSizes, config.Biases,
		config.InitWFn.InitWFn(), config.Activations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create network: %v", err)
	}

	targetNet, err := policyNet.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %v",
			err)
	}

	return &A2C{
		Base:      base,
		config:    config,
		policyNet: policyNet,
		policyVM:  G.NewTapeMachine(policyNet.Graph()),
		targetNet: targetNet,
		solver:    config.Solver,
	}, nil
}

// SelectAction returns the legal action with the greatest policy
// probability at board.
func (a *A2C) SelectAction(board, legalMoves []float64) (int, error) {
	logits, err := a.logits(board)
	if err != nil {
		return 0, fmt.Errorf("selectaction: %v", err)
	}

	action := floatutils.MaskedArgMax(logits, legalMoves)
	if action < 0 {
		return 0, fmt.Errorf("selectaction: no legal moves at board")
	}
	return action, nil
}

// ActionProbabilities returns the policy distribution at board.
// Logits are clipped to [-10, 10] before exponentiation so that a
// single dominant logit cannot overflow.
func (a *A2C) ActionProbabilities(board []float64) ([]float64, error) {
	logits, err := a.logits(board)
	if err != nil {
		return nil, fmt.Errorf("actionprobabilities: %v", err)
	}

	for i := range logits {
		logits[i] = floatutils.Clip(logits[i], -10, 10)
	}
	max := floatutils.Max(logits...)

	var total float64
	probs := make([]float64, len(logits))
	for i := range logits {
		probs[i] = math.Exp(logits[i] - max)
		total += probs[i]
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs, nil
}

// logits runs the policy network on a single board observation and
// returns a copy of the predicted logits.
func (a *A2C) logits(board []float64) ([]float64, error) {
	input, err := a.Prepare(board)
	if err != nil {
		return nil, err
	}
	if len(input) != a.policyNet.Features() {
		return nil, fmt.Errorf("expected a single board observation")
	}

	if err := a.policyNet.SetInput(input); err != nil {
		return nil, err
	}
	if err := a.policyVM.RunAll(); err != nil {
		return nil, err
	}
	logits := append([]float64{},
		a.policyNet.Output()[0].Data().([]float64)...)
	a.policyVM.Reset()

	return logits, nil
}

// TrainStep performs a single training update over the whole buffer
// and returns the total loss. It satisfies the agent interface; Train
// additionally exposes the actor and critic components.
func (a *A2C) TrainStep() (float64, error) {
	losses, err := a.Train()
	if err != nil {
		return 0, err
	}
	return losses.Total, nil
}

// Train consumes the buffer's entire occupancy as one batch and
// performs a single gradient update on the combined network, returning
// the total, actor, and critic losses. An empty buffer error from the
// replay buffer is returned unchanged.
func (a *A2C) Train() (Losses, error) {
	occupancy := a.BufferSize()
	states, actions, rewards, nextStates, dones, _, err :=
		a.Buffer().Sample(occupancy)
	if err != nil {
		return Losses{}, err
	}

	if a.config.RewardClip {
		for i := range rewards {
			rewards[i] = floatutils.Sign(rewards[i])
		}
	}
	if a.config.NormalizeRewards {
		rewards = normalizeRewards(rewards)
	}

	if err := a.ensureTrainGraph(occupancy); err != nil {
		return Losses{}, fmt.Errorf("train: %v", err)
	}

	// Baseline and bootstrap state values both come from the frozen
	// value head when the target network is enabled
	nextInput, err := a.Prepare(nextStates)
	if err != nil {
		return Losses{}, fmt.Errorf("train: could not prepare next "+
			"states: %v", err)
	}
	valueNet, valueVM := a.predNet, a.predVM
	if a.config.UseTargetNet {
		valueNet, valueVM = a.batchTarget, a.batchTargetVM
	}
	nextValues, err := runValues(valueNet, valueVM, nextInput)
	if err != nil {
		return Losses{}, fmt.Errorf("train: could not predict next state "+
			"values: %v", err)
	}

	input, err := a.Prepare(states)
	if err != nil {
		return Losses{}, fmt.Errorf("train: could not prepare states: %v",
			err)
	}
	values, err := runValues(valueNet, valueVM, input)
	if err != nil {
		return Losses{}, fmt.Errorf("train: could not predict state "+
			"values: %v", err)
	}

	advantages, criticTargets := computeTargets(values, nextValues, actions,
		rewards, dones, a.config.NumActions, a.config.Gamma)

	if err := a.trainNet.SetInput(input); err != nil {
		return Losses{}, fmt.Errorf("train: could not set training "+
			"input: %v", err)
	}
	err = G.Let(a.advantages, tensor.New(
		tensor.WithBacking(advantages),
		tensor.WithShape(occupancy, a.config.NumActions),
	))
	if err != nil {
		return Losses{}, fmt.Errorf("train: could not set advantages: %v",
			err)
	}
	err = G.Let(a.criticTarget, tensor.New(
		tensor.WithBacking(criticTargets),
		tensor.WithShape(occupancy, 1),
	))
	if err != nil {
		return Losses{}, fmt.Errorf("train: could not set critic "+
			"targets: %v", err)
	}

	if err := a.trainVM.RunAll(); err != nil {
		return Losses{}, fmt.Errorf("train: could not run training "+
			"graph: %v", err)
	}
	if err := a.solver.Step(a.model); err != nil {
		return Losses{}, fmt.Errorf("train: could not step solver: %v", err)
	}
	a.trainVM.Reset()

	// Propagate the updated weights to the forward-only copies
	if err := a.policyNet.Set(a.trainNet); err != nil {
		panic(fmt.Sprintf("train: could not sync policy network: %v", err))
	}
	if err := a.predNet.Set(a.trainNet); err != nil {
		panic(fmt.Sprintf("train: could not sync prediction network: %v",
			err))
	}

	return Losses{
		Total:  a.totalVal.Data().(float64),
		Actor:  a.actorVal.Data().(float64),
		Critic: a.criticVal.Data().(float64),
	}, nil
}

// ensureTrainGraph rebuilds the training graph and its batch-sized
// companions when the buffer occupancy differs from the cached graph's
// batch size. Weights are carried over from the canonical networks.
func (a *A2C) ensureTrainGraph(occupancy int) error {
	if occupancy == a.trainBatch {
		return nil
	}

	trainNet, err := a.policyNet.CloneWithBatch(occupancy)
	if err != nil {
		return fmt.Errorf("could not clone training network: %v", err)
	}

	g := trainNet.Graph()
	logits := trainNet.Prediction()[0]
	values := trainNet.Prediction()[1]

	advantages := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(occupancy, a.config.NumActions),
		G.WithName("advantages"),
		G.WithInit(G.Zeroes()),
	)
	criticTarget := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(occupancy, 1),
		G.WithName("criticTarget"),
		G.WithInit(G.Zeroes()),
	)

	numGames := G.NewConstant(float64(a.config.NumGames))

	logPolicy := op.LogSoftMax(logits, 1)
	policy := G.Must(G.Exp(logPolicy))

	// Policy gradient objective and entropy bonus, both scaled per
	// concurrent game
	j := G.Must(G.HadamardProd(advantages, logPolicy))
	j = G.Must(G.Div(G.Must(G.Sum(j)), numGames))

	entropy := G.Must(G.HadamardProd(policy, logPolicy))
	entropy = G.Must(G.Neg(G.Must(G.Div(G.Must(G.Sum(entropy)), numGames))))

	actorLoss := G.Must(G.Neg(G.Must(G.Add(j,
		G.Must(G.Mul(G.NewConstant(a.config.Beta), entropy))))))

	criticLoss, err := op.MeanHuber(values, criticTarget, huberDelta)
	if err != nil {
		return fmt.Errorf("could not compute critic loss: %v", err)
	}

	totalLoss := G.Must(G.Add(actorLoss, criticLoss))

	G.Read(actorLoss, &a.actorVal)
	G.Read(criticLoss, &a.criticVal)
	G.Read(totalLoss, &a.totalVal)

	if _, err := G.Grad(totalLoss, trainNet.Learnables()...); err != nil {
		return fmt.Errorf("could not compute gradient: %v", err)
	}

	a.trainBatch = occupancy
	a.trainNet = trainNet
	a.trainVM = G.NewTapeMachine(g,
		G.BindDualValues(trainNet.Learnables()...))
	a.model = trainNet.Model()
	a.advantages = advantages
	a.criticTarget = criticTarget

	a.predNet, err = a.policyNet.CloneWithBatch(occupancy)
	if err != nil {
		return fmt.Errorf("could not clone prediction network: %v", err)
	}
	a.predVM = G.NewTapeMachine(a.predNet.Graph())

	a.batchTarget, err = a.targetNet.CloneWithBatch(occupancy)
	if err != nil {
		return fmt.Errorf("could not clone target network: %v", err)
	}
	a.batchTargetVM = G.NewTapeMachine(a.batchTarget.Graph())

	return nil
}

// computeTargets returns the advantage matrix and critic regression
// targets for a batch. Each advantage row is zero except at the taken
// action, so untaken actions contribute nothing to the policy
// gradient. Terminal transitions bootstrap a future value of zero.
func computeTargets(values, nextValues, actions, rewards,
	dones []float64, numActions int,
	gamma float64) (advantages, criticTargets []float64) {
	advantages = make([]float64, len(actions))
	criticTargets = make([]float64, len(rewards))

	for row := 0; row < len(rewards); row++ {
		future := gamma * nextValues[row] * (1 - dones[row])
		criticTargets[row] = rewards[row] + future

		advantage := rewards[row] + future - values[row]
		start := row * numActions
		for act := 0; act < numActions; act++ {
			advantages[start+act] = actions[start+act] * advantage
		}
	}
	return advantages, criticTargets
}

// runValues runs a forward-only network on input and returns a copy of
// its predicted state values.
func runValues(net network.NeuralNet, vm G.VM,
	input []float64) ([]float64, error) {
	if err := net.SetInput(input); err != nil {
		return nil, err
	}
	if err := vm.RunAll(); err != nil {
		return nil, err
	}
	values := append([]float64{}, net.Output()[1].Data().([]float64)...)
	vm.Reset()

	return values, nil
}

// normalizeRewards standardizes rewards to zero mean and unit
// variance. A batch with no variance maps to all zeros rather than
// dividing by zero.
func normalizeRewards(rewards []float64) []float64 {
	normalized := make([]float64, len(rewards))

	constant := true
	for _, r := range rewards {
		if r != rewards[0] {
			constant = false
			break
		}
	}
	if constant {
		return normalized
	}

	mean := stat.Mean(rewards, nil)
	std := stat.PopStdDev(rewards, nil)
	for i, r := range rewards {
		normalized[i] = (r - mean) / std
	}
	return normalized
}

// UpdateTargetNet copies the learned weights into the target network.
// If the agent was configured without a target network the call warns
// and does nothing.
func (a *A2C) UpdateTargetNet() error {
	if !a.config.UseTargetNet {
		fmt.Fprintf(os.Stderr, "Warning: UpdateTargetNet called on an "+
			"agent with no target network\n")
		return nil
	}
	if err := a.targetNet.Set(a.policyNet); err != nil {
		return fmt.Errorf("updatetargetnet: could not sync target "+
			"network: %v", err)
	}
	if a.batchTarget != nil {
		if err := a.batchTarget.Set(a.policyNet); err != nil {
			return fmt.Errorf("updatetargetnet: could not sync batch "+
				"target network: %v", err)
		}
	}
	return nil
}

// SaveModel saves the network weights for a training iteration. The
// combined network is saved under the full-model name and again under
// the value-model name, since one network backs both the policy and
// value predictions; the target network is saved alongside.
func (a *A2C) SaveModel(dir string, iteration int) error {
	if iteration < 0 {
		return &agent.ConfigError{
			Op:  "savemodel",
			Err: fmt.Errorf("iteration must be non-negative, got %v",
				iteration),
		}
	}

	for _, suffix := range []string{"_full.pt", "_values.pt"} {
		path, err := network.ModelFile(dir, iteration, suffix)
		if err != nil {
			return err
		}
		if err := network.Save(path, a.policyNet); err != nil {
			return err
		}
	}

	if a.config.UseTargetNet {
		path, err := network.ModelFile(dir, iteration, "_target.pt")
		if err != nil {
			return err
		}
		if err := network.Save(path, a.targetNet); err != nil {
			return err
		}
	}
	return nil
}

// LoadModel restores the network weights saved for a training
// iteration. On failure the in-memory weights are left untouched.
func (a *A2C) LoadModel(dir string, iteration int) error {
	if iteration < 0 {
		return &agent.ConfigError{
			Op:  "loadmodel",
			Err: fmt.Errorf("iteration must be non-negative, got %v",
				iteration),
		}
	}

	path, err := network.ModelFile(dir, iteration, "_full.pt")
	if err != nil {
		return err
	}

	// Decode every file before applying any weights, so a missing or
	// corrupt target file cannot leave the combined network overwritten
	// while its training-sized copies still hold the old weights
	loaded, err := network.Read(path)
	if err != nil {
		return err
	}
	if err := network.Compatible(a.policyNet, loaded); err != nil {
		return fmt.Errorf("loadmodel: %v", err)
	}

	var loadedTarget network.NeuralNet
	if a.config.UseTargetNet {
		targetPath, err := network.ModelFile(dir, iteration, "_target.pt")
		if err != nil {
			return err
		}
		loadedTarget, err = network.Read(targetPath)
		if err != nil {
			return err
		}
		if err := network.Compatible(a.targetNet, loadedTarget); err != nil {
			return fmt.Errorf("loadmodel: %v", err)
		}
	}

	if err := a.policyNet.Set(loaded); err != nil {
		return fmt.Errorf("loadmodel: could not copy decoded weights: %v",
			err)
	}
	if loadedTarget != nil {
		if err := a.targetNet.Set(loadedTarget); err != nil {
			return fmt.Errorf("loadmodel: could not copy decoded target "+
				"weights: %v", err)
		}
		if a.batchTarget != nil {
			if err := a.batchTarget.Set(a.targetNet); err != nil {
				return fmt.Errorf("loadmodel: could not sync batch target "+
					"network: %v", err)
			}
		}
	}

	// Propagate the restored weights to the training-sized copies
	if a.trainNet != nil {
		if err := a.trainNet.Set(a.policyNet); err != nil {
			return fmt.Errorf("loadmodel: could not sync training "+
				"network: %v", err)
		}
	}
	if a.predNet != nil {
		if err := a.predNet.Set(a.policyNet); err != nil {
			return fmt.Errorf("loadmodel: could not sync prediction "+
				"network: %v", err)
		}
	}
	return nil
}

// CopyWeightsFrom overwrites this agent's network weights with those
// of another agent. The agents must have networks with identical
// parameter shapes; no further compatibility is assumed.
func (a *A2C) CopyWeightsFrom(other *A2C) error {
	if err := network.SetWeights(a.policyNet,
		network.Weights(other.policyNet)); err != nil {
		return fmt.Errorf("copyweightsfrom: %v", err)
	}
	if err := network.SetWeights(a.targetNet,
		network.Weights(other.targetNet)); err != nil {
		return fmt.Errorf("copyweightsfrom: %v", err)
	}

	if a.trainNet != nil {
		if err := a.trainNet.Set(a.policyNet); err != nil {
			return fmt.Errorf("copyweightsfrom: could not sync training "+
				"network: %v", err)
		}
	}
	if a.predNet != nil {
		if err := a.predNet.Set(a.policyNet); err != nil {
			return fmt.Errorf("copyweightsfrom: could not sync prediction "+
				"network: %v", err)
		}
	}
	if a.batchTarget != nil {
		if err := a.batchTarget.Set(a.targetNet); err != nil {
			return fmt.Errorf("copyweightsfrom: could not sync batch "+
				"target network: %v", err)
		}
	}
	return nil
}
