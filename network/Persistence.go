package network

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ModelError implements the error interface and describes errors
// occurring when saving or loading network weights.
type ModelError struct {
	Op  string
	Err error
}

var errModelNotFound = errors.New("no model file at path")

func (e *ModelError) Error() string {
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

// IsModelNotFound returns whether err indicates that no saved model
// exists at the requested path.
func IsModelNotFound(err error) bool {
	var modelErr *ModelError
	if errors.As(err, &modelErr) {
		return modelErr.Err == errModelNotFound
	}
	return false
}

// ModelFile returns the path of the model file for a given training
// iteration. The suffix disambiguates multiple networks saved for the
// same iteration, e.g. a value network and its frozen target.
func ModelFile(dir string, iteration int, suffix string) (string, error) {
	if iteration < 0 {
		return "", &ModelError{
			Op:  "modelfile",
			Err: fmt.Errorf("iteration must be non-negative, got %v",
				iteration),
		}
	}
	return filepath.Join(dir, fmt.Sprintf("model_%04d%v", iteration,
		suffix)), nil
}

// Save serializes the weights and topology of n to path.
func Save(path string, n NeuralNet) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&n); err != nil {
		return &ModelError{
			Op:  "save",
			Err: errors.Wrap(err, "could not encode network"),
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return &ModelError{
			Op:  "save",
			Err: errors.Wrapf(err, "could not write %v", path),
		}
	}
	return nil
}

// Read decodes the network saved at path into a scratch network,
// without applying it anywhere. Callers restoring several files at
// once read them all first so that a missing or corrupt file cannot
// leave a subset of their networks overwritten.
func Read(path string) (NeuralNet, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &ModelError{Op: "read", Err: errModelNotFound}
	} else if err != nil {
		return nil, &ModelError{
			Op:  "read",
			Err: errors.Wrapf(err, "could not read %v", path),
		}
	}

	var loaded NeuralNet
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&loaded); err != nil {
		return nil, &ModelError{
			Op:  "read",
			Err: errors.Wrapf(err, "could not decode %v", path),
		}
	}
	return loaded, nil
}

// Compatible returns an error when src cannot serve as a weight
// source for dst. It checks the input and output widths and the shape
// of every learnable, so that a copy passing this check cannot fail
// partway through.
func Compatible(dst, src NeuralNet) error {
	if src.Features() != dst.Features() || src.Outputs() != dst.Outputs() {
		return fmt.Errorf("networks are incompatible"+
			"\n\twant(%v features, %v outputs)"+
			"\n\thave(%v features, %v outputs)", dst.Features(),
			dst.Outputs(), src.Features(), src.Outputs())
	}

	dstLearnables := dst.Learnables()
	srcLearnables := src.Learnables()
	if len(srcLearnables) != len(dstLearnables) {
		return fmt.Errorf("networks have different parameter counts"+
			"\n\twant(%v)\n\thave(%v)", len(dstLearnables),
			len(srcLearnables))
	}
	for i := range dstLearnables {
		if !dstLearnables[i].Shape().Eq(srcLearnables[i].Shape()) {
			return fmt.Errorf("invalid shape for parameter %v"+
				"\n\twant(%v)\n\thave(%v)", i, dstLearnables[i].Shape(),
				srcLearnables[i].Shape())
		}
	}
	return nil
}

// Load reads the network saved at path into n, which must have the
// same topology as the saved network. On any error n is left
// untouched.
func Load(path string, n NeuralNet) error {
	loaded, err := Read(path)
	if err != nil {
		if IsModelNotFound(err) {
			return &ModelError{Op: "load", Err: errModelNotFound}
		}
		return err
	}

	if err := Compatible(n, loaded); err != nil {
		return &ModelError{Op: "load", Err: err}
	}

	if err := n.Set(loaded); err != nil {
		return &ModelError{
			Op:  "load",
			Err: errors.Wrap(err, "could not copy decoded weights"),
		}
	}
	return nil
}

func init() {
	gob.Register(&qMLP{})
	gob.Register(&actorCriticMLP{})
}
