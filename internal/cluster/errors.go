package cluster

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateAddress   = errors.New("duplicate node address")
	ErrNodeNotFound       = errors.New("node not found")
	ErrIndexOutOfRange    = errors.New("node index out of range")
	ErrInvalidProbability = errors.New("cluster head probability must be within [0, 100]")
	ErrInvalidAddress     = errors.New("address 0 is reserved")
	ErrInvalidLevel       = errors.New("network level must not be negative")
	ErrLevelUnassigned    = errors.New("node has no network level")
	ErrNodeInactive       = errors.New("node is inactive")
	ErrNotClusterHead     = errors.New("node is not a cluster head")
)

// NodeError carries the address an operation failed on
type NodeError struct {
	Op      string
	Address Address
	Err     error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Op, e.Address, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// IndexError carries the position a lookup failed on
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d (registry holds %d nodes): %v", e.Index, e.Count, ErrIndexOutOfRange)
}

func (e *IndexError) Unwrap() error {
	return ErrIndexOutOfRange
}

// ProbabilityError carries the rejected election probability
type ProbabilityError struct {
	Probability int
}

func (e *ProbabilityError) Error() string {
	return fmt.Sprintf("probability %d: %v", e.Probability, ErrInvalidProbability)
}

func (e *ProbabilityError) Unwrap() error {
	return ErrInvalidProbability
}

func nodeErr(op string, addr Address, err error) error {
	return &NodeError{Op: op, Address: addr, Err: err}
}
