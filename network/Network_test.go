package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

const (
	testFeatures = 8
	testActions  = 4
)

func newTestQMLP(t *testing.T, batch int, init G.InitWFn) NeuralNet {
	t.Helper()
	net, err := NewQMLP(testFeatures, batch, testActions, G.NewGraph(),
		[]int{6}, []bool{true}, init, []*Activation{ReLU()})
	require.NoError(t, err)
	return net
}

func newTestActorCritic(t *testing.T, batch int,
	init G.InitWFn) NeuralNet {
	t.Helper()
	net, err := NewActorCriticMLP(testFeatures, batch, testActions,
		G.NewGraph(), []int{6}, []bool{true}, init,
		[]*Activation{ReLU()})
	require.NoError(t, err)
	return net
}

// assertSameWeights fails unless both networks hold identical
// parameter values.
func assertSameWeights(t *testing.T, want, got NeuralNet) {
	t.Helper()
	wantWeights := Weights(want)
	gotWeights := Weights(got)
	require.Equal(t, len(wantWeights), len(gotWeights))
	for i := range wantWeights {
		assert.Equal(t, wantWeights[i].Data(), gotWeights[i].Data())
	}
}

func TestNewQMLPValidatesArchitecture(t *testing.T) {
	_, err := NewQMLP(testFeatures, 1, 0, G.NewGraph(), []int{6},
		[]bool{true}, G.Zeroes(), []*Activation{ReLU()})
	assert.Error(t, err)

	_, err = NewQMLP(testFeatures, 1, testActions, G.NewGraph(), []int{6},
		[]bool{true}, G.Zeroes(), nil)
	assert.Error(t, err)

	_, err = NewQMLP(testFeatures, 1, testActions, G.NewGraph(), []int{6},
		nil, G.Zeroes(), []*Activation{ReLU()})
	assert.Error(t, err)
}

func TestQMLPCloneCarriesWeights(t *testing.T) {
	net := newTestQMLP(t, 4, G.GlorotU(1.0))

	clone, err := net.CloneWithBatch(1)
	require.NoError(t, err)

	assert.Equal(t, 1, clone.BatchSize())
	assert.Equal(t, net.Features(), clone.Features())
	assert.Equal(t, net.Outputs(), clone.Outputs())
	assertSameWeights(t, net, clone)
}

func TestQMLPSetCopiesWeights(t *testing.T) {
	source := newTestQMLP(t, 2, G.GlorotU(1.0))
	dest := newTestQMLP(t, 2, G.Zeroes())

	require.NoError(t, dest.Set(source))
	assertSameWeights(t, source, dest)
}

func TestWeightsSetWeightsRoundTrip(t *testing.T) {
	source := newTestQMLP(t, 2, G.GlorotU(1.0))
	dest := newTestQMLP(t, 2, G.Zeroes())

	require.NoError(t, SetWeights(dest, Weights(source)))
	assertSameWeights(t, source, dest)
}

func TestSetWeightsRejectsMismatch(t *testing.T) {
	source := newTestQMLP(t, 2, G.GlorotU(1.0))
	dest := newTestQMLP(t, 2, G.Zeroes())

	weights := Weights(source)
	assert.Error(t, SetWeights(dest, weights[:1]))

	// Different architecture: parameter shapes differ
	other, err := NewQMLP(testFeatures, 2, testActions, G.NewGraph(),
		[]int{3}, []bool{true}, G.GlorotU(1.0), []*Activation{ReLU()})
	require.NoError(t, err)
	assert.Error(t, SetWeights(dest, Weights(other)))
}

func TestSetInputRejectsWrongLength(t *testing.T) {
	net := newTestQMLP(t, 2, G.Zeroes())
	assert.Error(t, net.SetInput(make([]float64, testFeatures)))
	assert.NoError(t, net.SetInput(make([]float64, 2*testFeatures)))
}

func TestActorCriticHasTwoHeads(t *testing.T) {
	net := newTestActorCritic(t, 3, G.GlorotU(1.0))

	prediction := net.Prediction()
	require.Len(t, prediction, 2)
	assert.Equal(t, []int{3, testActions}, []int(prediction[0].Shape()))
	assert.Equal(t, []int{3, 1}, []int(prediction[1].Shape()))
}

func TestActorCriticRequiresSharedTrunk(t *testing.T) {
	_, err := NewActorCriticMLP(testFeatures, 1, testActions, G.NewGraph(),
		nil, nil, G.Zeroes(), nil)
	assert.Error(t, err)
}

func TestActorCriticSetCopiesWeights(t *testing.T) {
	source := newTestActorCritic(t, 1, G.GlorotU(1.0))
	dest := newTestActorCritic(t, 1, G.Zeroes())

	require.NoError(t, dest.Set(source))
	assertSameWeights(t, source, dest)
}

func TestModelFileNaming(t *testing.T) {
	path, err := ModelFile("checkpoints", 3, ".pt")
	require.NoError(t, err)
	assert.Contains(t, path, "model_0003.pt")

	path, err = ModelFile("checkpoints", 12, "_target.pt")
	require.NoError(t, err)
	assert.Contains(t, path, "model_0012_target.pt")

	_, err = ModelFile("checkpoints", -1, ".pt")
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	source := newTestQMLP(t, 2, G.GlorotU(1.0))
	path, err := ModelFile(dir, 0, ".pt")
	require.NoError(t, err)
	require.NoError(t, Save(path, source))

	dest := newTestQMLP(t, 2, G.Zeroes())
	require.NoError(t, Load(path, dest))
	assertSameWeights(t, source, dest)
}

func TestActorCriticSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	source := newTestActorCritic(t, 2, G.GlorotU(1.0))
	path, err := ModelFile(dir, 4, "_full.pt")
	require.NoError(t, err)
	require.NoError(t, Save(path, source))

	dest := newTestActorCritic(t, 2, G.Zeroes())
	require.NoError(t, Load(path, dest))
	assertSameWeights(t, source, dest)
}

func TestLoadMissingLeavesWeightsIntact(t *testing.T) {
	net := newTestQMLP(t, 2, G.GlorotU(1.0))
	before := Weights(net)

	path, err := ModelFile(t.TempDir(), 0, ".pt")
	require.NoError(t, err)

	err = Load(path, net)
	require.Error(t, err)
	assert.True(t, IsModelNotFound(err))

	after := Weights(net)
	for i := range before {
		assert.Equal(t, before[i].Data(), after[i].Data())
	}
}
