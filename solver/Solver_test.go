package solver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolverJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		make func() (*Solver, error)
	}{
		{"vanilla", func() (*Solver, error) {
			return NewVanilla(0.01, 16, -1.0)
		}},
		{"vanilla with clipping", func() (*Solver, error) {
			return NewVanilla(0.01, 16, 5.0)
		}},
		{"adam", func() (*Solver, error) {
			return NewAdam(0.001, 1e-8, 0.9, 0.999, 32)
		}},
		{"default adam", func() (*Solver, error) {
			return NewDefaultAdam(0.001, 32)
		}},
		{"rmsprop", func() (*Solver, error) {
			return NewDefaultRMSProp(0.0005, 8)
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			saved, err := test.make()
			require.NoError(t, err)

			data, err := json.Marshal(saved)
			require.NoError(t, err)

			var loaded Solver
			require.NoError(t, json.Unmarshal(data, &loaded))

			assert.Equal(t, saved.Type, loaded.Type)
			assert.True(t, loaded.Config.ValidType(loaded.Type))
			require.NotNil(t, loaded.Solver)

			// The reconstructed solver describes the same configuration
			reencoded, err := json.Marshal(&loaded)
			require.NoError(t, err)
			assert.JSONEq(t, string(data), string(reencoded))
		})
	}
}

func TestNewRMSPropRejectsUnsupportedEta(t *testing.T) {
	_, err := NewRMSProp(0.001, 1e-8, 0.01, 0.999, 16, -1.0)
	assert.Error(t, err)
}

func TestNewSolverRejectsMismatchedConfig(t *testing.T) {
	_, err := newSolver(Adam, VanillaConfig{StepSize: 0.01, Batch: 16})
	assert.Error(t, err)
}
