package cluster

import (
	"go.uber.org/zap"
)

// Protocol drives network formation and aggregation over a Registry.
// Rounds are never advanced implicitly: the caller sequences
// SendBeacon, SendJoinRequests and ElectClusterHeads.
type Protocol struct {
	registry      *Registry
	seed          uint64
	electionRound uint64
	logger        *zap.Logger
}

// ProtocolOption configures a Protocol
type ProtocolOption func(*Protocol)

// WithElectionSeed sets the seed mixed into every election roll
func WithElectionSeed(seed uint64) ProtocolOption {
	return func(p *Protocol) {
		p.seed = seed
	}
}

// WithLogger sets the protocol logger
func WithLogger(logger *zap.Logger) ProtocolOption {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProtocol creates a Protocol operating on registry
func NewProtocol(registry *Registry, opts ...ProtocolOption) *Protocol {
	p := &Protocol{
		registry: registry,
		seed:     DefaultElectionSeed,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the registry the protocol operates on
func (p *Protocol) Registry() *Registry {
	return p.registry
}

// ElectionRound returns the number of elections that processed candidates
func (p *Protocol) ElectionRound() uint64 {
	return p.electionRound
}

// SetElectionRound restores the election counter, e.g. after loading a snapshot
func (p *Protocol) SetElectionRound(round uint64) {
	p.electionRound = round
}

// RegisterAsClusterHead bootstraps a node as cluster head on the given level.
// It is used once for the sink, which no beacon ever reaches.
func (p *Protocol) RegisterAsClusterHead(level int, address Address) error {
	if level < 0 {
		return nodeErr("register cluster head", address, ErrInvalidLevel)
	}
	n, err := p.registry.node("register cluster head", address)
	if err != nil {
		return err
	}

	n.NodeType = NodeTypeClusterHead
	p.registry.setLevel(n, level)

	p.logger.Info("registered cluster head",
		zap.Uint64("address", uint64(address)),
		zap.Int("level", level))
	return nil
}

// SendBeacon announces sender's level to every active neighbour and returns
// the number of beacons delivered. A receiver's level is fixed by the first
// beacon it hears; later beacons are only logged.
func (p *Protocol) SendBeacon(sender Address) (int, error) {
	s, err := p.registry.node("send beacon", sender)
	if err != nil {
		return 0, err
	}
	if !s.IsActive {
		return 0, nodeErr("send beacon", sender, ErrNodeInactive)
	}
	if !s.HasLevel() {
		return 0, nodeErr("send beacon", sender, ErrLevelUnassigned)
	}

	// A new beacon round starts a fresh join queue for the sender.
	s.JoinRequestNodes = []Address{}

	nextLevel := s.NetworkLevel + 1
	delivered := 0
	for _, addr := range s.WithinRangeNodes {
		n, ok := p.registry.nodes[addr]
		if !ok {
			p.logger.Debug("beacon neighbour not registered",
				zap.Uint64("sender", uint64(sender)),
				zap.Uint64("neighbour", uint64(addr)))
			continue
		}
		if !n.IsActive || addr == sender {
			continue
		}

		n.Beacons = append(n.Beacons, Beacon{
			IsSent:                 true,
			NextNetworkLevel:       nextLevel,
			SenderAddress:          sender,
			SenderWithinRangeNodes: append([]Address{}, s.WithinRangeNodes...),
		})
		if !n.HasLevel() {
			p.registry.setLevel(n, nextLevel)
		}
		delivered++
	}

	p.logger.Debug("beacon sent",
		zap.Uint64("sender", uint64(sender)),
		zap.Int("next_level", nextLevel),
		zap.Int("delivered", delivered))
	return delivered, nil
}

// JoinRequest records a node asking a cluster head to adopt it
type JoinRequest struct {
	From Address `json:"from"`
	To   Address `json:"to"`
}

// SendJoinRequests makes every positioned, unjoined node ask the sender of
// the first beacon it received to become its parent.
func (p *Protocol) SendJoinRequests() []JoinRequest {
	requests := make([]JoinRequest, 0)
	p.registry.each(func(n *Node) {
		if !n.IsActive || n.NodeType != NodeTypeUnassigned || n.HasParent() {
			return
		}
		if !n.HasLevel() || n.NetworkLevel <= SinkLevel {
			return
		}

		target, ok := p.firstBeaconSender(n)
		if !ok {
			return
		}
		head := p.registry.nodes[target]
		if containsAddress(head.JoinRequestNodes, n.Address) {
			return
		}
		head.JoinRequestNodes = append(head.JoinRequestNodes, n.Address)
		requests = append(requests, JoinRequest{From: n.Address, To: target})
	})

	p.logger.Debug("join requests sent", zap.Int("count", len(requests)))
	return requests
}

// firstBeaconSender picks the lowest-index beacon whose sender can still
// act as parent: a registered, active cluster head one level up that is
// within the node's own range.
func (p *Protocol) firstBeaconSender(n *Node) (Address, bool) {
	for _, b := range n.ReceivedBeacons() {
		if b.NextNetworkLevel != n.NetworkLevel {
			continue
		}
		sender, ok := p.registry.nodes[b.SenderAddress]
		if !ok || !sender.IsActive || sender.NodeType != NodeTypeClusterHead {
			continue
		}
		if !n.InRange(b.SenderAddress) {
			continue
		}
		return b.SenderAddress, true
	}
	return NoAddress, false
}

// ElectClusterHeads decides, for every pending join request of head, whether
// the candidate becomes a cluster head or a member node. Both outcomes adopt
// the candidate as a child of head, which must itself be a cluster head.
func (p *Protocol) ElectClusterHeads(head Address, probabilityPercent int) (ElectionResult, error) {
	if probabilityPercent < 0 || probabilityPercent > 100 {
		return ElectionResult{}, &ProbabilityError{Probability: probabilityPercent}
	}
	h, err := p.registry.node("elect cluster heads", head)
	if err != nil {
		return ElectionResult{}, err
	}
	// Member nodes are leaves and never adopt children.
	if h.NodeType != NodeTypeClusterHead {
		return ElectionResult{}, nodeErr("elect cluster heads", head, ErrNotClusterHead)
	}

	candidates := make([]*Node, 0, len(h.JoinRequestNodes))
	positions := make([]int, 0, len(h.JoinRequestNodes))
	for i, addr := range h.JoinRequestNodes {
		c, ok := p.registry.nodes[addr]
		if !ok || c.HasParent() || c.NodeType != NodeTypeUnassigned {
			continue
		}
		candidates = append(candidates, c)
		positions = append(positions, i)
	}

	result := ElectionResult{Head: head, Probability: probabilityPercent, Outcomes: []ElectionOutcome{}}
	if len(candidates) == 0 {
		return result, nil
	}

	p.electionRound++
	result.Round = p.electionRound
	for i, c := range candidates {
		roll := electionRoll(p.seed, head, c.Address, positions[i], p.electionRound)
		if roll < probabilityPercent {
			c.NodeType = NodeTypeClusterHead
		} else {
			c.NodeType = NodeTypeMemberNode
		}
		c.Parent = head
		if !containsAddress(h.ChildNodes, c.Address) {
			h.ChildNodes = append(h.ChildNodes, c.Address)
		}
		result.Outcomes = append(result.Outcomes, ElectionOutcome{
			Address:  c.Address,
			NodeType: c.NodeType,
			Roll:     roll,
		})
	}

	p.logger.Info("cluster heads elected",
		zap.Uint64("head", uint64(head)),
		zap.Uint64("round", result.Round),
		zap.Int("cluster_heads", len(result.ClusterHeads())),
		zap.Int("members", len(result.Members())))
	return result, nil
}
