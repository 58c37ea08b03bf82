package replay

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// BufferFile returns the path of the buffer snapshot tagged with the
// given iteration index. A negative iteration is rejected at the
// boundary rather than deep inside a save or load.
func BufferFile(dir string, iteration int) (string, error) {
	if iteration < 0 {
		return "", fmt.Errorf("bufferfile: iteration must be >= 0, got %v",
			iteration)
	}
	return filepath.Join(dir, fmt.Sprintf("buffer_%04d", iteration)), nil
}

// Save writes a snappy-compressed gob snapshot of the Buffer to
// {dir}/buffer_{iteration:04d}, one opaque blob per call.
func (b *Buffer) Save(dir string, iteration int) error {
	path, err := BufferFile(dir, iteration)
	if err != nil {
		return err
	}

	raw, err := b.GobEncode()
	if err != nil {
		return errors.Wrap(err, "save: could not serialize buffer")
	}

	if err := os.WriteFile(path, snappy.Encode(nil, raw), 0644); err != nil {
		return errors.Wrapf(err, "save: could not write %v", path)
	}
	return nil
}

// Load replaces the Buffer's contents with the snapshot stored at
// {dir}/buffer_{iteration:04d}. A missing file is reported with an
// error satisfying IsBufferNotFound; on any failure the receiver is
// left untouched.
func (b *Buffer) Load(dir string, iteration int) error {
	path, err := BufferFile(dir, iteration)
	if err != nil {
		return err
	}

	compressed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ReplayError{
			Op:  "load",
			Err: errBufferNotFound,
		}
	} else if err != nil {
		return errors.Wrapf(err, "load: could not read %v", path)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return errors.Wrapf(err, "load: could not decompress %v", path)
	}

	// Decode into a scratch buffer so that a partial failure cannot
	// corrupt the live one.
	loaded := &Buffer{}
	if err := loaded.GobDecode(raw); err != nil {
		return errors.Wrapf(err, "load: could not deserialize %v", path)
	}
	loaded.rng = b.rng

	*b = *loaded
	return nil
}

func init() {
	gob.Register(&Buffer{})
}
