package a2c

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
	sol, err := solver.NewDefaultRMSProp(0.001, 1)
	require.NoError(t, err)

	return Config{
		Config: agent.Config{
			BoardSize:    3,
			Frames:       2,
			BufferSize:   16,
			Gamma:        0.9,
			NumActions:   4,
			UseTargetNet: true,
			Version:      "test",
		},
		HiddenSizes:      []int{8},
		Biases:           []bool{true},
		Activations:      []*network.Activation{network.ReLU()},
		InitWFn:          init,
		Solver:           sol,
		Beta:             0.01,
		NumGames:         1,
		NormalizeRewards: true,
	}
}

// fillBuffer adds count derived transitions to the agent's buffer.
func fillBuffer(t *testing.T, a *A2C, count int) {
	t.Helper()
	config := a.Config()
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

		err := a.AddToBuffer(state, action, []float64{float64(i)},
			nextState, []float64{0}, legal)
		require.NoError(t, err)
	}
}

func TestConfigValidate(t *testing.T) {
	config := testConfig(t)
	require.NoError(t, config.Validate())

	noTrunk := testConfig(t)
	noTrunk.HiddenSizes = nil
	noTrunk.Biases = nil
	noTrunk.Activations = nil
	err := noTrunk.Validate()
	require.Error(t, err)
	assert.True(t, agent.IsConfiguration(err))

	negativeBeta := testConfig(t)
	negativeBeta.Beta = -1
	assert.True(t, agent.IsConfiguration(negativeBeta.Validate()))

	noGames := testConfig(t)
	noGames.NumGames = 0
	assert.True(t, agent.IsConfiguration(noGames.Validate()))
}

func TestNormalizeRewardsConstantBatch(t *testing.T) {
	rewards := []float64{5, 5, 5, 5, 5}
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, normalizeRewards(rewards))
}

func TestNormalizeRewards(t *testing.T) {
	rewards := []float64{1, 2, 3, 4}
	normalized := normalizeRewards(rewards)

	// The input is never mutated
	assert.Equal(t, []float64{1, 2, 3, 4}, rewards)

	var mean float64
	for _, r := range normalized {
		mean += r
	}
	mean /= float64(len(normalized))
	assert.InDelta(t, 0, mean, 1e-12)

	var variance float64
	for _, r := range normalized {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(normalized))
	assert.InDelta(t, 1, variance, 1e-12)
}

func TestComputeTargets(t *testing.T) {
	values := []float64{1, 2}
	nextValues := []float64{3, 4}
	actions := []float64{0, 1, 0, 0, 1, 0, 0, 0}
	rewards := []float64{1, 2}
	dones := []float64{0, 1}

	advantages, criticTargets := computeTargets(values, nextValues,
		actions, rewards, dones, 4, 0.5)

	// Row 0: future = 0.5 * 3, advantage = 1 + 1.5 - 1 at action 1
	assert.InDelta(t, 1.5, advantages[1], 1e-12)
	assert.InDelta(t, 2.5, criticTargets[0], 1e-12)

	// Row 1 is terminal: future = 0, advantage = 2 - 2 at action 0
	assert.InDelta(t, 0, advantages[4], 1e-12)
	assert.InDelta(t, 2, criticTargets[1], 1e-12)

	// Untaken actions contribute nothing to the policy gradient
	for _, i := range []int{0, 2, 3, 5, 6, 7} {
		assert.Equal(t, 0.0, advantages[i])
	}
}

func TestTrainEmptyBuffer(t *testing.T) {
	a, err := New(testConfig(t), testSeed)
	require.NoError(t, err)

	_, err = a.Train()
	require.Error(t, err)
	assert.True(t, replay.IsEmptyBuffer(err))
}

func TestTrainConsumesWholeOccupancy(t *testing.T) {
	a, err := New(testConfig(t), testSeed)
	require.NoError(t, err)

	fillBuffer(t, a, 3)
	_, err = a.Train()
	require.NoError(t, err)
	assert.Equal(t, 3, a.trainBatch)

	// Growing occupancy rebuilds the training graph at the new size
	fillBuffer(t, a, 2)
	_, err = a.Train()
	require.NoError(t, err)
	assert.Equal(t, 5, a.trainBatch)
}

func TestTrainSyncsForwardCopies(t *testing.T) {
	a, err := New(testConfig(t), testSeed)
	require.NoError(t, err)

	fillBuffer(t, a, 4)
	losses, err := a.Train()
	require.NoError(t, err)
	assert.False(t, losses.Critic < 0, "Huber loss cannot be negative")
	assert.InDelta(t, losses.Total, losses.Actor+losses.Critic, 1e-9)

	assertSameWeights(t, a.trainNet, a.policyNet)
	assertSameWeights(t, a.trainNet, a.predNet)
}

func TestUpdateTargetNet(t *testing.T) {
	a, err := New(testConfig(t), testSeed)
	require.NoError(t, err)

	fillBuffer(t, a, 4)
	_, err = a.Train()
	require.NoError(t, err)

	require.NoError(t, a.UpdateTargetNet())
	assertSameWeights(t, a.policyNet, a.targetNet)
	assertSameWeights(t, a.policyNet, a.batchTarget)
}

func TestSelectActionRespectsLegalMoves(t *testing.T) {
	a, err := New(testConfig(t), testSeed)
	require.NoError(t, err)

	board := make([]float64, a.Config().Features())
	action, err := a.SelectAction(board, []float64{0, 1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, action)

	_, err = a.SelectAction(board, []float64{0, 0, 0, 0})
	assert.Error(t, err)
}

func TestSaveLoadModel(t *testing.T) {
	dir := t.TempDir()

	source, err := New(testConfig(t), testSeed)
	require.NoError(t, err)
	require.NoError(t, source.SaveModel(dir, 2))

	dest, err := New(testConfig(t), testSeed+1)
	require.NoError(t, err)
	require.NoError(t, dest.LoadModel(dir, 2))

	assertSameWeights(t, source.policyNet, dest.policyNet)
	assertSameWeights(t, source.targetNet, dest.targetNet)

	err = dest.LoadModel(dir, 3)
	require.Error(t, err)
	assert.True(t, network.IsModelNotFound(err))
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
	before := network.Weights(dest.policyNet)

	err = dest.LoadModel(dir, 0)
	require.Error(t, err)
	assert.True(t, network.IsModelNotFound(err))

	after := network.Weights(dest.policyNet)
	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].Data(), after[i].Data())
	}
	assertSameWeights(t, dest.policyNet, dest.targetNet)
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
