package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankByEnergyDescending(t *testing.T) {
	reg := seedRegistry(t, StarTopology())

	ranked := RankByEnergyDescending(reg.Nodes())

	energies := make([]uint64, 0, len(ranked))
	addrs := make([]Address, 0, len(ranked))
	for _, n := range ranked {
		energies = append(energies, n.EnergyLevel)
		addrs = append(addrs, n.Address)
	}
	assert.Equal(t, []uint64{100, 82, 66, 65, 53, 35}, energies)
	assert.Equal(t, []Address{111000, 222004, 222002, 222005, 222003, 222001}, addrs)
}

func TestRankByEnergyDescending_Ties(t *testing.T) {
	nodes := []*Node{
		{Address: 1, EnergyLevel: 10},
		{Address: 2, EnergyLevel: 30},
		{Address: 3, EnergyLevel: 10},
		{Address: 4, EnergyLevel: 30},
	}

	ranked := RankByEnergyDescending(nodes)
	got := []Address{ranked[0].Address, ranked[1].Address, ranked[2].Address, ranked[3].Address}
	assert.Equal(t, []Address{2, 4, 1, 3}, got)
	assert.Equal(t, Address(1), nodes[0].Address, "input is left untouched")

	assert.Empty(t, RankByEnergyDescending(nil))
}
