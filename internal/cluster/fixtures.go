package cluster

// NodeSpec describes a node to register when seeding a topology
type NodeSpec struct {
	Address     Address   `json:"address"`
	EnergyLevel uint64    `json:"energyLevel"`
	WithinRange []Address `json:"withinRange"`
}

// SinkAddress is the sink of both reference topologies
const SinkAddress Address = 111000

// StarTopology returns a sink with five level-1 neighbours
func StarTopology() []NodeSpec {
	return []NodeSpec{
		{SinkAddress, 100, []Address{222001, 222002, 222003, 222004, 222005}},
		{222001, 35, []Address{111000, 222002}},
		{222002, 66, []Address{111000, 222001, 222003}},
		{222003, 53, []Address{111000, 222002, 222004}},
		{222004, 82, []Address{111000, 222003, 222005}},
		{222005, 65, []Address{111000, 222004}},
	}
}

// ThreeLayerTopology returns the fifteen node, three level field deployment
func ThreeLayerTopology() []NodeSpec {
	return []NodeSpec{
		{SinkAddress, 100, []Address{222001, 222002, 222003, 222004, 222005}},
		{222001, 82, []Address{111000, 222002, 222003}},
		{222002, 88, []Address{111000, 222006, 222007, 222003, 222001}},
		{222003, 82, []Address{111000, 222006, 222007, 222008, 222002, 222004, 222001, 222005}},
		{222004, 95, []Address{111000, 222007, 222008, 222009, 222003, 222010, 222005, 222011}},
		{222005, 87, []Address{111000, 222003, 222004, 222010, 222011}},
		{222006, 79, []Address{222012, 222013, 222007, 222002, 222003}},
		{222007, 61, []Address{222012, 222013, 222014, 222006, 222008, 222002, 222003, 222004}},
		{222008, 94, []Address{222013, 222014, 222015, 222007, 222009, 222003, 222004, 222010}},
		{222009, 95, []Address{222014, 222015, 222008, 222004, 222010}},
		{222010, 86, []Address{222008, 222009, 222004, 222005, 222011}},
		{222011, 93, []Address{222004, 222010, 222005}},
		{222012, 71, []Address{222013, 222006, 222007}},
		{222013, 83, []Address{222012, 222014, 222006, 222007, 222008}},
		{222014, 78, []Address{222013, 222015, 222007, 222008, 222009}},
		{222015, 80, []Address{222014, 222008, 222009}},
	}
}

// Topology looks up a reference topology by name
func Topology(name string) ([]NodeSpec, bool) {
	switch name {
	case "star":
		return StarTopology(), true
	case "three-layer", "3-layer":
		return ThreeLayerTopology(), true
	}
	return nil, false
}
