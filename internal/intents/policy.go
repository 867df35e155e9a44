// ABOUTME: Selection policies for intents with several live providers.
// ABOUTME: First picks the oldest registration; RoundRobin rotates across providers.

package intents

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Policy names accepted by NewPolicy.
const (
	PolicyFirst      = "first"
	PolicyRoundRobin = "round_robin"
)

// ErrNoCandidates indicates a policy was given nothing to choose from.
var ErrNoCandidates = errors.New("no candidates available")

// Policy picks one provider among live candidates, which are given in
// registration order.
type Policy interface {
	Select(intent string, candidates []Candidate) (Candidate, error)
}

// NewPolicy returns the policy with the given name.
func NewPolicy(name string) (Policy, error) {
	switch name {
	case "", PolicyFirst:
		return First{}, nil
	case PolicyRoundRobin:
		return NewRoundRobin(), nil
	default:
		return nil, fmt.Errorf("unknown intent resolution policy %q", name)
	}
}

// First always picks the earliest registered candidate.
type First struct{}

func (First) Select(_ string, candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}
	return candidates[0], nil
}

// RoundRobin rotates through candidates across calls.
type RoundRobin struct {
	current uint64
}

// NewRoundRobin creates a RoundRobin policy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Select(_ string, candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}

	idx := atomic.AddUint64(&r.current, 1) - 1
	return candidates[idx%uint64(len(candidates))], nil
}
