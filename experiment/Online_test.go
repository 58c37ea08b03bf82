package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakeai/snakelearn/agent"
	"github.com/snakeai/snakelearn/agent/deepq"
	"github.com/snakeai/snakelearn/environment"
	"github.com/snakeai/snakelearn/initwfn"
	"github.com/snakeai/snakelearn/network"
	"github.com/snakeai/snakelearn/solver"
)

func testAgent(t *testing.T, env *environment.Grid) *deepq.DeepQ {
	t.Helper()

	init, err := initwfn.NewGlorotU(1.0)
	require.NoError(t, err)
	sol, err := solver.NewDefaultRMSProp(0.001, 4)
	require.NoError(t, err)

	config := deepq.Config{
		Config: agent.Config{
			BoardSize:    env.BoardSize(),
			Frames:       env.Frames(),
			BufferSize:   64,
			Gamma:        0.9,
			NumActions:   env.NumActions(),
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

	learner, err := deepq.New(config, 24)
	require.NoError(t, err)
	return learner
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Steps: 10, TrainEvery: 2}
	require.NoError(t, valid.Validate())

	assert.Error(t, Config{Steps: 0}.Validate())
	assert.Error(t, Config{Steps: 10, TrainEvery: -1}.Validate())
	assert.Error(t, Config{Steps: 10, CheckpointEvery: 5}.Validate())
}

func TestRunCollectsAndTrains(t *testing.T) {
	env, err := environment.NewGrid(4, 2, 24)
	require.NoError(t, err)
	learner := testAgent(t, env)

	exp, err := NewOnline(learner, env, Config{
		Steps:      30,
		TrainEvery: 5,
		SyncEvery:  10,
	})
	require.NoError(t, err)
	require.NoError(t, exp.Run())

	// Every step recorded a transition
	assert.Equal(t, 30, learner.BufferSize())

	assert.NotEmpty(t, exp.Losses())
}

func TestRunCheckpoints(t *testing.T) {
	dir := t.TempDir()

	env, err := environment.NewGrid(4, 2, 24)
	require.NoError(t, err)
	learner := testAgent(t, env)

	exp, err := NewOnline(learner, env, Config{
		Steps:           20,
		CheckpointEvery: 10,
		CheckpointDir:   dir,
	})
	require.NoError(t, err)
	require.NoError(t, exp.Run())

	for _, name := range []string{
		"model_0000.pt", "model_0000_target.pt", "buffer_0000",
		"model_0001.pt", "model_0001_target.pt", "buffer_0001",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "missing checkpoint file %v", name)
	}
}
