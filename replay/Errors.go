package replay

import "errors"

// ReplayError implements errors unique to a replay Buffer.
type ReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

var errEmptyBuffer error = errors.New("buffer empty")

var errInsufficientData = errors.New("fewer stored transitions than " +
	"requested batch size")

var errBufferNotFound = errors.New("no buffer file at requested path")

// IsInsufficientData returns whether or not an error reports that a
// Buffer holds fewer transitions than a Sample call requested.
func IsInsufficientData(err error) bool {
	if replayErr, ok := err.(*ReplayError); ok {
		err = replayErr.Err
	}
	return err == errInsufficientData
}

// IsEmptyBuffer returns whether or not an error reports that a Buffer
// holds no transitions at all.
func IsEmptyBuffer(err error) bool {
	if replayErr, ok := err.(*ReplayError); ok {
		err = replayErr.Err
	}
	return err == errEmptyBuffer
}

// IsBufferNotFound returns whether or not an error reports that no
// serialized buffer exists at the path given to Load.
func IsBufferNotFound(err error) bool {
	if replayErr, ok := err.(*ReplayError); ok {
		err = replayErr.Err
	}
	return err == errBufferNotFound
}
