// Package replay implements a fixed-capacity store of game transitions
// which supports batched insertion and uniform random sampling.
package replay

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"golang.org/x/exp/rand"
)

// Transition is one recorded step of agent-environment interaction.
// State and NextState hold a stack of the last N observation frames
// flattened from a (board x board x N) array. Action is a one-hot
// vector over the discrete actions. LegalMoves is a binary mask over
// the actions valid at NextState.
type Transition struct {
	State      []float64
	Action     []float64
	Reward     float64
	NextState  []float64
	Done       float64
	LegalMoves []float64
}

// Buffer is a fixed-capacity circular store of transitions. Once the
// buffer is full, insertion overwrites the oldest stored transitions.
//
// Transitions are stored column-wise in six aligned caches so that a
// sampled batch can be handed to a network without per-row conversion.
type Buffer struct {
	stateCache     []float64 // capacity * featureSize
	actionCache    []float64 // capacity * numActions
	rewardCache    []float64 // capacity
	nextStateCache []float64 // capacity * featureSize
	doneCache      []float64 // capacity
	legalCache     []float64 // capacity * numActions

	pos      int // Next write index
	full     bool
	capacity int

	featureSize int
	numActions  int

	rng *rand.Rand
}

// New creates and returns an empty Buffer. The featureSize of stored
// states is boardSize * boardSize * frames.
func New(capacity, boardSize, frames, numActions int,
	seed uint64) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be >= 1")
	}
	if boardSize < 1 || frames < 1 {
		return nil, fmt.Errorf("new: illegal state shape (%v x %v x %v)",
			boardSize, boardSize, frames)
	}
	if numActions < 1 {
		return nil, fmt.Errorf("new: must have at least 1 action")
	}

	featureSize := boardSize * boardSize * frames

	return &Buffer{
		stateCache:     make([]float64, capacity*featureSize),
		actionCache:    make([]float64, capacity*numActions),
		rewardCache:    make([]float64, capacity),
		nextStateCache: make([]float64, capacity*featureSize),
		doneCache:      make([]float64, capacity),
		legalCache:     make([]float64, capacity*numActions),

		pos:      0,
		full:     false,
		capacity: capacity,

		featureSize: featureSize,
		numActions:  numActions,

		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Size returns the current number of stored transitions.
func (b *Buffer) Size() int {
	if b.full {
		return b.capacity
	}
	return b.pos
}

// Capacity returns the maximum number of transitions the Buffer holds.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// FeatureSize returns the length of a single stored state vector.
func (b *Buffer) FeatureSize() int {
	return b.featureSize
}

// NumActions returns the length of a single stored action vector.
func (b *Buffer) NumActions() int {
	return b.numActions
}

// Add appends a batch of transitions. The batch may hold steps from
// any number of concurrently running episodes; the number of rows is
// taken from len(rewards). Inserting past capacity overwrites the
// oldest stored transitions.
func (b *Buffer) Add(states, actions, rewards, nextStates, dones,
	legalMoves []float64) error {
	rows := len(rewards)
	if rows < 1 {
		return fmt.Errorf("add: batch must contain at least 1 transition")
	}
	if len(states) != rows*b.featureSize ||
		len(nextStates) != rows*b.featureSize {
		return fmt.Errorf("add: invalid state size \n\twant(%v)\n\thave(%v)",
			rows*b.featureSize, len(states))
	}
	if len(actions) != rows*b.numActions ||
		len(legalMoves) != rows*b.numActions {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			rows*b.numActions, len(actions))
	}
	if len(dones) != rows {
		return fmt.Errorf("add: invalid done size \n\twant(%v)\n\thave(%v)",
			rows, len(dones))
	}

	for i := 0; i < rows; i++ {
		stateInd := b.pos * b.featureSize
		copy(b.stateCache[stateInd:stateInd+b.featureSize],
			states[i*b.featureSize:(i+1)*b.featureSize])
		copy(b.nextStateCache[stateInd:stateInd+b.featureSize],
			nextStates[i*b.featureSize:(i+1)*b.featureSize])

		actionInd := b.pos * b.numActions
		copy(b.actionCache[actionInd:actionInd+b.numActions],
			actions[i*b.numActions:(i+1)*b.numActions])
		copy(b.legalCache[actionInd:actionInd+b.numActions],
			legalMoves[i*b.numActions:(i+1)*b.numActions])

		b.rewardCache[b.pos] = rewards[i]
		b.doneCache[b.pos] = dones[i]

		b.pos++
		if b.pos == b.capacity {
			b.pos = 0
			b.full = true
		}
	}
	return nil
}

// AddTransition appends a single transition.
func (b *Buffer) AddTransition(t Transition) error {
	return b.Add(t.State, t.Action, []float64{t.Reward}, t.NextState,
		[]float64{t.Done}, t.LegalMoves)
}

// Sample draws batchSize stored transitions uniformly at random
// without replacement and returns their fields as six aligned batched
// arrays: states, actions, rewards, next states, done flags, and
// legal-move masks.
func (b *Buffer) Sample(batchSize int) ([]float64, []float64, []float64,
	[]float64, []float64, []float64, error) {
	if b.Size() == 0 {
		err := &ReplayError{
			Op:  "sample",
			Err: errEmptyBuffer,
		}
		return nil, nil, nil, nil, nil, nil, err
	}
	if batchSize > b.Size() {
		err := &ReplayError{
			Op:  "sample",
			Err: errInsufficientData,
		}
		return nil, nil, nil, nil, nil, nil, err
	}
	if batchSize < 1 {
		return nil, nil, nil, nil, nil, nil,
			fmt.Errorf("sample: batch size must be >= 1")
	}

	indices := b.choose(batchSize)

	states := make([]float64, batchSize*b.featureSize)
	nextStates := make([]float64, batchSize*b.featureSize)
	for i, index := range indices {
		batchInd := i * b.featureSize
		expInd := index * b.featureSize
		copy(states[batchInd:batchInd+b.featureSize],
			b.stateCache[expInd:expInd+b.featureSize])
		copy(nextStates[batchInd:batchInd+b.featureSize],
			b.nextStateCache[expInd:expInd+b.featureSize])
	}

	actions := make([]float64, batchSize*b.numActions)
	legalMoves := make([]float64, batchSize*b.numActions)
	for i, index := range indices {
		batchInd := i * b.numActions
		expInd := index * b.numActions
		copy(actions[batchInd:batchInd+b.numActions],
			b.actionCache[expInd:expInd+b.numActions])
		copy(legalMoves[batchInd:batchInd+b.numActions],
			b.legalCache[expInd:expInd+b.numActions])
	}

	rewards := make([]float64, batchSize)
	dones := make([]float64, batchSize)
	for i, index := range indices {
		rewards[i] = b.rewardCache[index]
		dones[i] = b.doneCache[index]
	}

	return states, actions, rewards, nextStates, dones, legalMoves, nil
}

// choose selects batchSize distinct occupied indices uniformly at
// random using a partial Fisher-Yates shuffle.
func (b *Buffer) choose(batchSize int) []int {
	size := b.Size()
	indices := make([]int, size)
	for i := range indices {
		indices[i] = i
	}

	for i := 0; i < batchSize; i++ {
		j := i + b.rng.Intn(size-i)
		indices[i], indices[j] = indices[j], indices[i]
	}
	return indices[:batchSize]
}

// oldestFirst returns the occupied cache indices ordered from the
// oldest inserted transition to the newest.
func (b *Buffer) oldestFirst() []int {
	size := b.Size()
	order := make([]int, size)

	start := 0
	if b.full {
		start = b.pos
	}
	for i := 0; i < size; i++ {
		order[i] = (start + i) % b.capacity
	}
	return order
}

// bufferSnapshot is the gob wire form of a Buffer.
type bufferSnapshot struct {
	States     []float64
	Actions    []float64
	Rewards    []float64
	NextStates []float64
	Dones      []float64
	Legal      []float64

	Pos         int
	Full        bool
	Capacity    int
	FeatureSize int
	NumActions  int
}

// GobEncode implements the gob.GobEncoder interface. The sampling RNG
// is not part of the snapshot.
func (b *Buffer) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	snapshot := bufferSnapshot{
		States:     b.stateCache,
		Actions:    b.actionCache,
		Rewards:    b.rewardCache,
		NextStates: b.nextStateCache,
		Dones:      b.doneCache,
		Legal:      b.legalCache,

		Pos:         b.pos,
		Full:        b.full,
		Capacity:    b.capacity,
		FeatureSize: b.featureSize,
		NumActions:  b.numActions,
	}
	if err := enc.Encode(snapshot); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode buffer: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The receiver's
// RNG is kept so that a restored buffer remains sampleable.
func (b *Buffer) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var snapshot bufferSnapshot
	if err := dec.Decode(&snapshot); err != nil {
		return fmt.Errorf("gobdecode: could not decode buffer: %v", err)
	}

	b.stateCache = snapshot.States
	b.actionCache = snapshot.Actions
	b.rewardCache = snapshot.Rewards
	b.nextStateCache = snapshot.NextStates
	b.doneCache = snapshot.Dones
	b.legalCache = snapshot.Legal

	b.pos = snapshot.Pos
	b.full = snapshot.Full
	b.capacity = snapshot.Capacity
	b.featureSize = snapshot.FeatureSize
	b.numActions = snapshot.NumActions

	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(0))
	}
	return nil
}
