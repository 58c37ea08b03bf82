package environment

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Cell values drawn on the board. Food uses the largest value so that
// preprocessing maps it to 1.0.
const (
	emptyCell  = 0.0
	playerCell = 1.0
	foodCell   = 4.0
)

// Movement actions of the grid game
const (
	MoveUp = iota
	MoveDown
	MoveLeft
	MoveRight
	numMoves
)

// stepLimit bounds episode length so that a wandering policy cannot
// run an episode forever.
const stepLimit = 200

// Grid is a minimal deterministic grid game: a player moves on a
// square board toward a food cell, earning a reward of 1 when it is
// reached. Moves that would leave the board are illegal. Episodes end
// when the food is reached or after stepLimit steps.
//
// Grid exists to exercise the learning loop in tests and examples; it
// is not a faithful game simulator.
type Grid struct {
	boardSize int
	frames    int

	playerRow, playerCol int
	foodRow, foodCol     int
	steps                int

	// history holds the last frames boards, most recent last
	history [][]float64

	rng *rand.Rand
}

// NewGrid returns a new grid game with the given board side length and
// observation stack depth. Start and food positions are drawn from the
// seeded generator, so equal seeds give identical episodes.
func NewGrid(boardSize, frames int, seed uint64) (*Grid, error) {
	if boardSize < 2 {
		return nil, fmt.Errorf("newgrid: board side must be at least 2, "+
			"got %v", boardSize)
	}
	if frames < 1 {
		return nil, fmt.Errorf("newgrid: must stack at least 1 frame, "+
			"got %v", frames)
	}

	g := &Grid{
		boardSize: boardSize,
		frames:    frames,
		rng:       rand.New(rand.NewSource(seed)),
	}
	return g, nil
}

// BoardSize returns the side length of the board.
func (g *Grid) BoardSize() int {
	return g.boardSize
}

// Frames returns the number of boards stacked into an observation.
func (g *Grid) Frames() int {
	return g.frames
}

// NumActions returns the size of the action set.
func (g *Grid) NumActions() int {
	return numMoves
}

// Reset starts a new episode with fresh player and food positions. The
// frame history is filled with copies of the first board.
func (g *Grid) Reset() ([]float64, []float64) {
	g.steps = 0
	g.playerRow = g.rng.Intn(g.boardSize)
	g.playerCol = g.rng.Intn(g.boardSize)
	for {
		g.foodRow = g.rng.Intn(g.boardSize)
		g.foodCol = g.rng.Intn(g.boardSize)
		if g.foodRow != g.playerRow || g.foodCol != g.playerCol {
			break
		}
	}

	board := g.drawBoard()
	g.history = make([][]float64, g.frames)
	for i := range g.history {
		g.history[i] = board
	}

	return g.observation(), g.legalMoves()
}

// Step takes an action, returning the next observation, the reward,
// whether the episode ended, and the next legal move mask.
func (g *Grid) Step(action int) ([]float64, float64, bool, []float64,
	error) {
	if g.history == nil {
		return nil, 0, false, nil, fmt.Errorf("step: episode not started")
	}
	if action < 0 || action >= numMoves {
		return nil, 0, false, nil, fmt.Errorf("step: illegal action %v",
			action)
	}

	row, col := move(g.playerRow, g.playerCol, action)
	if row >= 0 && row < g.boardSize && col >= 0 && col < g.boardSize {
		g.playerRow, g.playerCol = row, col
	}
	g.steps++

	var reward float64
	done := g.steps >= stepLimit
	if g.playerRow == g.foodRow && g.playerCol == g.foodCol {
		reward = 1
		done = true
	}

	g.history = append(g.history[1:], g.drawBoard())
	return g.observation(), reward, done, g.legalMoves(), nil
}

// move returns the position reached by taking action from (row, col).
func move(row, col, action int) (int, int) {
	switch action {
	case MoveUp:
		return row - 1, col
	case MoveDown:
		return row + 1, col
	case MoveLeft:
		return row, col - 1
	default:
		return row, col + 1
	}
}

// drawBoard renders the current positions as a flattened board.
func (g *Grid) drawBoard() []float64 {
	board := make([]float64, g.boardSize*g.boardSize)
	board[g.playerRow*g.boardSize+g.playerCol] = playerCell
	board[g.foodRow*g.boardSize+g.foodCol] = foodCell
	return board
}

// observation flattens the frame history into a single
// (boardSize x boardSize x frames) observation with the frame axis
// innermost and the most recent board last.
func (g *Grid) observation() []float64 {
	obs := make([]float64, g.boardSize*g.boardSize*g.frames)
	for f, board := range g.history {
		for cell, value := range board {
			obs[cell*g.frames+f] = value
		}
	}
	return obs
}

// legalMoves masks out moves that would leave the board.
func (g *Grid) legalMoves() []float64 {
	mask := make([]float64, numMoves)
	for action := 0; action < numMoves; action++ {
		row, col := move(g.playerRow, g.playerCol, action)
		if row >= 0 && row < g.boardSize && col >= 0 && col < g.boardSize {
			mask[action] = 1
		}
	}
	return mask
}
