package cluster

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// DefaultElectionSeed reproduces the reference star and three-layer topologies
const DefaultElectionSeed uint64 = 9433

// electionRoll maps a candidate to a value in [0, 100). It is a pure
// function of its inputs so elections replay identically.
func electionRoll(seed uint64, head, candidate Address, position int, round uint64) int {
	key := fmt.Sprintf("%d-%d-%d-%d-%d", seed, head, candidate, position, round)
	h := sha256.New()
	h.Write([]byte(key))
	sum := h.Sum(nil)
	// Use first 4 bytes of SHA-256 hash as uint32
	return int(binary.BigEndian.Uint32(sum[:4]) % 100)
}

// ElectionOutcome is the decision taken for a single candidate
type ElectionOutcome struct {
	Address  Address  `json:"address"`
	NodeType NodeType `json:"nodeType"`
	Roll     int      `json:"roll"`
}

// ElectionResult summarises one ElectClusterHeads call
type ElectionResult struct {
	Head        Address           `json:"head"`
	Round       uint64            `json:"round"`
	Probability int               `json:"probability"`
	Outcomes    []ElectionOutcome `json:"outcomes"`
}

// ClusterHeads returns the candidates elected as cluster heads
func (r ElectionResult) ClusterHeads() []Address {
	return r.withType(NodeTypeClusterHead)
}

// Members returns the candidates that became member nodes
func (r ElectionResult) Members() []Address {
	return r.withType(NodeTypeMemberNode)
}

func (r ElectionResult) withType(t NodeType) []Address {
	out := make([]Address, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.NodeType == t {
			out = append(out, o.Address)
		}
	}
	return out
}
