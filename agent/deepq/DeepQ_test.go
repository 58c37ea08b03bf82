package deepq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakeai/snakelearn/agent"
	"github.com/snakeai/snakelearn/initwfn"
	"github.com/snakeai/snakelearn/network"
	"github.com/snakeai/snakelearn/replay"
	"github.com/snakeai/snakelearn/solver"
)

const testSeed uint64 = 24

func testConfig(t *testing.T) Config {
	t.Helper()

	init, err := initwfn.NewGlorotU(1.0)
	require.NoError(t, err)
	sol, err := solver.NewDefaultRMSProp(0.001, 4)
	require.NoError(t, err)

	return Config{
		Config: agent.Config{
			BoardSize:    3,
			Frames:       2,
			BufferSize:   32,
			Gamma:        0.9,
			NumActions:   4,
			UseTargetNet: true,
			Version:      "test",
		},
		HiddenSizes: []int{8},
		Biases:      []bool{true},
		Activations: []*network.Activation{network.ReLU()},
		InitWFn:     init,
		Solver:      sol,
		BatchSize:   4,
	}
}

// fillBuffer adds count derived transitions to the agent's buffer.
func fillBuffer(t *testing.T, d *DeepQ, count int) {
	t.Helper()
	config := d.Config()
	features := config.Features()

	for i := 0; i < count; i++ {
		state := make([]float64, features)
		nextState := make([]float64, features)
		for j := range state {
			state[j] = float64(i % 4)
			nextState[j] = float64((i + 1) % 4)
		}

		action := make([]float64, config.NumActions)
		action[i%config.NumActions] = 1
		legal := []float64{1, 1, 0, 0}

		err := d.AddToBuffer(state, action, []float64{float64(i % 2)},
			nextState, []float64{0}, legal)
		require.NoError(t, err)
	}
}

func TestConfigValidate(t *testing.T) {
	config := testConfig(t)
	require.NoError(t, config.Validate())

	batchTooLarge := testConfig(t)
	batchTooLarge.BatchSize = batchTooLarge.BufferSize + 1
	err := batchTooLarge.Validate()
	require.Error(t, err)
	assert.True(t, agent.IsConfiguration(err))

	noSolver := testConfig(t)
	noSolver.Solver = nil
	assert.True(t, agent.IsConfiguration(noSolver.Validate()))

	noInit := testConfig(t)
	noInit.InitWFn = nil
	assert.True(t, agent.IsConfiguration(noInit.Validate()))

	frozenNoTrunk := testConfig(t)
	frozenNoTrunk.FrozenTrunk = true
	frozenNoTrunk.HiddenSizes = nil
	frozenNoTrunk.Biases = nil
	frozenNoTrunk.Activations = nil
	assert.True(t, agent.IsConfiguration(frozenNoTrunk.Validate()))
}

func TestComputeTargetsTerminalTransition(t *testing.T) {
	// One transition, action 1 taken, terminal
	currentQ := []float64{0.1, 0.2, 0.3, 0.4}
	nextQ := []float64{5, 5, 5, 5}
	actions := []float64{0, 1, 0, 0}
	rewards := []float64{2}
	dones := []float64{1}
	legal := []float64{1, 1, 1, 1}

	targets := computeTargets(currentQ, nextQ, actions, rewards, dones,
		legal, 4, 0.9)

	// A terminal transition's target is the reward alone; untaken
	// actions keep their current predictions
	assert.Equal(t, []float64{0.1, 2, 0.3, 0.4}, targets)
}

func TestComputeTargetsMasksIllegalMoves(t *testing.T) {
	currentQ := []float64{0, 0, 0, 0}
	nextQ := []float64{9, 5, 7, 6}
	actions := []float64{1, 0, 0, 0}
	rewards := []float64{1}
	dones := []float64{0}
	// The largest next value is illegal and must not bootstrap
	legal := []float64{0, 1, 1, 0}

	targets := computeTargets(currentQ, nextQ, actions, rewards, dones,
		legal, 4, 0.5)

	assert.InDelta(t, 1+0.5*7, targets[0], 1e-12)
	assert.Equal(t, 0.0, targets[1])
}

func TestComputeTargetsNoLegalMoves(t *testing.T) {
	currentQ := []float64{0, 0, 0, 0}
	nextQ := []float64{9, 5, 7, 6}
	actions := []float64{0, 0, 1, 0}
	rewards := []float64{3}
	dones := []float64{0}
	legal := []float64{0, 0, 0, 0}

	targets := computeTargets(currentQ, nextQ, actions, rewards, dones,
		legal, 4, 0.9)

	// With no legal next moves the bootstrap value is zero
	assert.Equal(t, 3.0, targets[2])
}

func TestTrainStepPropagatesBufferErrors(t *testing.T) {
	d, err := New(testConfig(t), testSeed)
	require.NoError(t, err)

	_, err = d.TrainStep()
	require.Error(t, err)
	assert.True(t, replay.IsEmptyBuffer(err))

	fillBuffer(t, d, 2)
	_, err = d.TrainStep()
	require.Error(t, err)
	assert.True(t, replay.IsInsufficientData(err))
}

func TestTrainStep(t *testing.T) {
	d, err := New(testConfig(t), testSeed)
	require.NoError(t, err)
	fillBuffer(t, d, 8)

	loss, err := d.TrainStep()
	require.NoError(t, err)
	assert.False(t, loss < 0, "Huber loss cannot be negative")

	// The forward-only copies must track the training network
	assertSameWeights(t, d.trainNet, d.predNet)
	assertSameWeights(t, d.trainNet, d.policyNet)
}

func TestUpdateTargetNetIdempotent(t *testing.T) {
	d, err := New(testConfig(t), testSeed)
	require.NoError(t, err)
	fillBuffer(t, d, 8)

	_, err = d.TrainStep()
	require.NoError(t, err)

	require.NoError(t, d.UpdateTargetNet())
	afterFirst := network.Weights(d.targetNet)

	// A second sync with no intervening update changes nothing
	require.NoError(t, d.UpdateTargetNet())
	afterSecond := network.Weights(d.targetNet)
	for i := range afterFirst {
		assert.Equal(t, afterFirst[i].Data(), afterSecond[i].Data())
	}
	assertSameWeights(t, d.trainNet, d.targetNet)
}

func TestSelectActionRespectsLegalMoves(t *testing.T) {
	d, err := New(testConfig(t), testSeed)
	require.NoError(t, err)

	board := make([]float64, d.Config().Features())
	action, err := d.SelectAction(board, []float64{0, 0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, action)

	_, err = d.SelectAction(board, []float64{0, 0, 0, 0})
	assert.Error(t, err)
}

func TestActionProbabilitiesSumToOne(t *testing.T) {
	d, err := New(testConfig(t), testSeed)
	require.NoError(t, err)

	board := make([]float64, d.Config().Features())
	probs, err := d.ActionProbabilities(board)
	require.NoError(t, err)
	require.Len(t, probs, d.Config().NumActions)

	var total float64
	for _, p := range probs {
		require.False(t, p < 0)
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-12)
}

func TestCopyWeightsFrom(t *testing.T) {
	source, err := New(testConfig(t), testSeed)
	require.NoError(t, err)
	dest, err := New(testConfig(t), testSeed+1)
	require.NoError(t, err)

	require.NoError(t, dest.CopyWeightsFrom(source))
	assertSameWeights(t, source.trainNet, dest.trainNet)
	assertSameWeights(t, source.targetNet, dest.targetNet)
}

func TestSaveLoadModel(t *testing.T) {
	dir := t.TempDir()

	source, err := New(testConfig(t), testSeed)
	require.NoError(t, err)
	require.NoError(t, source.SaveModel(dir, 0))

	dest, err := New(testConfig(t), testSeed+1)
	require.NoError(t, err)
	require.NoError(t, dest.LoadModel(dir, 0))

	assertSameWeights(t, source.trainNet, dest.trainNet)
	assertSameWeights(t, source.targetNet, dest.targetNet)

	err = dest.LoadModel(dir, 1)
	require.Error(t, err)
	assert.True(t, network.IsModelNotFound(err))

	err = dest.SaveModel(dir, -1)
	require.Error(t, err)
	assert.True(t, agent.IsConfiguration(err))
}

func TestLoadModelMissingTargetLeavesWeightsIntact(t *testing.T) {
	dir := t.TempDir()

	// A checkpoint written without a target network has no target file
	sourceConfig := testConfig(t)
	sourceConfig.UseTargetNet = false
	source, err := New(sourceConfig, testSeed)
	require.NoError(t, err)
	require.NoError(t, source.SaveModel(dir, 0))

	dest, err := New(testConfig(t), testSeed+1)
	require.NoError(t, err)
	before := network.Weights(dest.trainNet)

	err = dest.LoadModel(dir, 0)
	require.Error(t, err)
	assert.True(t, network.IsModelNotFound(err))

	after := network.Weights(dest.trainNet)
	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].Data(), after[i].Data())
	}
	assertSameWeights(t, dest.trainNet, dest.policyNet)
	assertSameWeights(t, dest.trainNet, dest.predNet)
}

// assertSameWeights fails unless both networks hold identical
// parameter values.
func assertSameWeights(t *testing.T, want, got network.NeuralNet) {
	t.Helper()
	wantWeights := network.Weights(want)
	gotWeights := network.Weights(got)
	require.Equal(t, len(wantWeights), len(gotWeights))
	for i := range wantWeights {
		assert.Equal(t, wantWeights[i].Data(), gotWeights[i].Data())
	}
}
