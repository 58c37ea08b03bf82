// Package environment describes the game simulators that agents learn
// from. The learning core treats the simulator as an external
// collaborator: it produces stacked board observations and legal move
// masks, consumes action indices, and reports rewards and episode
// termination.
package environment

// Environment is a grid game producing stacked visual observations.
//
// Observations are flattened (boardSize x boardSize x frames) arrays
// with the frame axis innermost, holding the current board and the
// frames-1 boards preceding it. Legal move masks are binary vectors
// over the action set.
type Environment interface {
	// BoardSize returns the side length of the square game board
	BoardSize() int

	// Frames returns the number of past boards stacked into an
	// observation
	Frames() int

	// NumActions returns the size of the discrete action set
	NumActions() int

	// Reset starts a new episode, returning the first observation and
	// its legal move mask
	Reset() (board, legalMoves []float64)

	// Step takes an action, returning the next observation, the
	// reward, whether the episode ended, and the next legal move mask
	Step(action int) (board []float64, reward float64, done bool,
		legalMoves []float64, err error)
}
