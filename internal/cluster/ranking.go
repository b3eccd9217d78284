package cluster

import "sort"

// RankByEnergyDescending orders nodes by remaining energy, highest first.
// Nodes with equal energy keep their input order.
func RankByEnergyDescending(nodes []*Node) []*Node {
	ranked := append([]*Node{}, nodes...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].EnergyLevel > ranked[j].EnergyLevel
	})
	return ranked
}
