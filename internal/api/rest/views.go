package rest

import (
	"github.com/arohanajit/WSN-Formation/internal/cluster"
	"github.com/arohanajit/WSN-Formation/internal/roles"
	"github.com/arohanajit/WSN-Formation/pkg/api"
)

func addressesOut(in []cluster.Address) []uint64 {
	out := make([]uint64, len(in))
	for i, a := range in {
		out[i] = uint64(a)
	}
	return out
}

func addressesIn(in []uint64) []cluster.Address {
	out := make([]cluster.Address, len(in))
	for i, a := range in {
		out[i] = cluster.Address(a)
	}
	return out
}

func nodeView(n *cluster.Node) api.Node {
	beacons := make([]api.Beacon, 0, len(n.ReceivedBeacons()))
	for _, b := range n.ReceivedBeacons() {
		beacons = append(beacons, api.Beacon{
			Sender:           uint64(b.SenderAddress),
			NextNetworkLevel: b.NextNetworkLevel,
			SenderNeighbours: addressesOut(b.SenderWithinRangeNodes),
		})
	}
	readings := n.Readings()
	if readings == nil {
		readings = []int64{}
	}

	return api.Node{
		Address:            uint64(n.Address),
		EnergyLevel:        n.EnergyLevel,
		NetworkLevel:       n.NetworkLevel,
		NodeType:           n.NodeType.String(),
		IsActive:           n.IsActive,
		Parent:             uint64(n.Parent),
		ChildNodes:         addressesOut(n.ChildNodes),
		WithinRangeNodes:   addressesOut(n.WithinRangeNodes),
		JoinRequestNodes:   addressesOut(n.JoinRequestNodes),
		Beacons:            beacons,
		Readings:           readings,
		BackupClusterHeads: addressesOut(n.BackupClusterHeads),
	}
}

func electionView(r cluster.ElectionResult) api.ElectionResponse {
	outcomes := make([]api.ElectionOutcome, len(r.Outcomes))
	for i, o := range r.Outcomes {
		outcomes[i] = api.ElectionOutcome{
			Address:  uint64(o.Address),
			NodeType: o.NodeType.String(),
			Roll:     o.Roll,
		}
	}
	return api.ElectionResponse{
		Head:         uint64(r.Head),
		Round:        r.Round,
		Probability:  r.Probability,
		Outcomes:     outcomes,
		ClusterHeads: addressesOut(r.ClusterHeads()),
		Members:      addressesOut(r.Members()),
	}
}

func deliveryView(d cluster.Delivery) api.DeliveryResponse {
	hops := make([]api.Hop, len(d.Hops))
	for i, h := range d.Hops {
		hops[i] = api.Hop{From: uint64(h.From), To: uint64(h.To), Rerouted: h.Rerouted}
	}
	return api.DeliveryResponse{
		Origin:      uint64(d.Origin),
		Reading:     d.Reading,
		Path:        addressesOut(d.Path()),
		Hops:        hops,
		ReachedSink: d.ReachedSink,
		Rerouted:    d.Rerouted(),
	}
}

func roleView(e roles.Entry) api.Role {
	return api.Role{
		Address:          e.Address,
		Role:             e.Role.String(),
		IsTriggering:     e.IsTriggering,
		TriggerMessage:   e.TriggerMessage,
		TriggerThreshold: e.TriggerThreshold,
		TriggerCondition: e.TriggerCondition.String(),
	}
}

func statsView(s cluster.Stats) api.Stats {
	return api.Stats{
		Nodes:         s.Nodes,
		Active:        s.Active,
		Inactive:      s.Inactive,
		LevelCount:    s.LevelCount,
		Levels:        s.Levels,
		NodesPerLevel: s.NodesPerLevel,
		ClusterHeads:  s.ClusterHeads,
		Members:       s.Members,
		Unassigned:    s.Unassigned,
		ElectionRound: s.ElectionRound,
	}
}
