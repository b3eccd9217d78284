package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyBackupClusterHeads_Star(t *testing.T) {
	p := formStar(t, 40)
	mustBeacon(t, p, 222002, 222004)

	assignments := p.IdentifyBackupClusterHeads()
	require.Len(t, assignments, 2)

	assert.Equal(t, BackupAssignment{
		Address: 222002,
		Uplinks: []Address{SinkAddress},
		Backups: []Address{222001, 222003},
	}, assignments[0])
	assert.Equal(t, BackupAssignment{
		Address: 222004,
		Uplinks: []Address{SinkAddress},
		Backups: []Address{222003, 222005},
	}, assignments[1])

	// Members that heard a single uplink get none
	assert.Empty(t, nodeOf(t, p, 222001).BackupClusterHeads)
	assert.Empty(t, nodeOf(t, p, 222003).BackupClusterHeads)
}

func TestIdentifyBackupClusterHeads_ThreeLayer(t *testing.T) {
	p := formThreeLayer(t)

	want := map[Address][]Address{
		222002: {222001, 222003},
		222004: {222003, 222005},
		222006: {222003, 222007},
		222007: {222003},
		222008: {222003, 222007, 222009, 222010},
		222009: {222008, 222010},
		222013: {222007},
		222014: {222015},
		222015: {222014},
	}
	for addr, backups := range want {
		assert.Equal(t, backups, nodeOf(t, p, addr).BackupClusterHeads, "backups of %d", addr)
	}

	for _, addr := range []Address{222001, 222003, 222005, 222010, 222011, 222012} {
		assert.Empty(t, nodeOf(t, p, addr).BackupClusterHeads, "backups of %d", addr)
	}
	assert.Empty(t, nodeOf(t, p, SinkAddress).BackupClusterHeads)
}

func TestIdentifyBackupClusterHeads_Uplinks(t *testing.T) {
	p := formThreeLayer(t)

	var found *BackupAssignment
	for _, a := range p.IdentifyBackupClusterHeads() {
		if a.Address == 222007 {
			a := a
			found = &a
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, []Address{222002, 222004}, found.Uplinks)
	assert.Equal(t, []Address{222003}, found.Backups)
}

func TestIdentifyBackupClusterHeads_IgnoresUnregisteredNeighbours(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.AddNode(1, 100, []Address{2, 3, 4, 99})
	require.NoError(t, err)
	_, err = reg.AddNode(2, 50, []Address{1, 3, 99})
	require.NoError(t, err)
	_, err = reg.AddNode(3, 50, []Address{1, 2})
	require.NoError(t, err)

	p := NewProtocol(reg)
	require.NoError(t, p.RegisterAsClusterHead(SinkLevel, 1))
	mustBeacon(t, p, 1)
	p.SendJoinRequests()
	mustElect(t, p, 1, 100)
	p.IdentifyBackupClusterHeads()

	assert.Equal(t, []Address{3}, nodeOf(t, p, 2).BackupClusterHeads)
	assert.Equal(t, []Address{2}, nodeOf(t, p, 3).BackupClusterHeads)
}
