package cluster

import (
	"sort"

	"go.uber.org/zap"
)

// BackupAssignment lists the backup cluster heads computed for one node
type BackupAssignment struct {
	Address Address   `json:"address"`
	Uplinks []Address `json:"uplinks"`
	Backups []Address `json:"backups"`
}

// IdentifyBackupClusterHeads recomputes backup parents for every cluster
// head and every node that heard two or more uplinks. A node's uplinks are
// the senders of the beacons announcing its own level. Backups are the
// neighbours it shares with all of its uplinks, excluding itself, the
// uplinks and the sink.
func (p *Protocol) IdentifyBackupClusterHeads() []BackupAssignment {
	assignments := make([]BackupAssignment, 0)
	p.registry.each(func(n *Node) {
		if !n.HasLevel() || n.NetworkLevel <= SinkLevel {
			return
		}

		uplinks, snapshots := uplinkRanges(n)
		if len(uplinks) == 0 {
			return
		}
		if n.NodeType != NodeTypeClusterHead && len(uplinks) < 2 {
			return
		}

		excluded := map[Address]bool{n.Address: true}
		for _, u := range uplinks {
			excluded[u] = true
		}

		backups := make([]Address, 0)
		seen := make(map[Address]bool)
		for _, candidate := range n.WithinRangeNodes {
			if excluded[candidate] || seen[candidate] {
				continue
			}
			c, ok := p.registry.nodes[candidate]
			if !ok || c.IsSink() {
				continue
			}
			if !inAll(candidate, snapshots) {
				continue
			}
			seen[candidate] = true
			backups = append(backups, candidate)
		}
		sort.Slice(backups, func(i, j int) bool { return backups[i] < backups[j] })

		n.BackupClusterHeads = backups
		assignments = append(assignments, BackupAssignment{
			Address: n.Address,
			Uplinks: uplinks,
			Backups: append([]Address{}, backups...),
		})
	})

	p.logger.Debug("backup cluster heads identified", zap.Int("nodes", len(assignments)))
	return assignments
}

// uplinkRanges returns the distinct senders of beacons announcing n's own
// level, in log order, together with the neighbour sets they advertised.
func uplinkRanges(n *Node) ([]Address, [][]Address) {
	uplinks := make([]Address, 0)
	snapshots := make([][]Address, 0)
	for _, b := range n.ReceivedBeacons() {
		if b.NextNetworkLevel != n.NetworkLevel || containsAddress(uplinks, b.SenderAddress) {
			continue
		}
		uplinks = append(uplinks, b.SenderAddress)
		snapshots = append(snapshots, b.SenderWithinRangeNodes)
	}
	return uplinks, snapshots
}

func inAll(addr Address, sets [][]Address) bool {
	for _, set := range sets {
		if !containsAddress(set, addr) {
			return false
		}
	}
	return true
}
