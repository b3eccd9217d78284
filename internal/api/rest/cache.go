package rest

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/arohanajit/WSN-Formation/internal/cluster"
	"github.com/arohanajit/WSN-Formation/pkg/api"
)

type cachedView struct {
	version uint64
	node    api.Node
}

// viewCache keeps rendered node views tagged with the network version they
// were built at. An entry from an older version is treated as a miss.
type viewCache struct {
	lru *lru.Cache
}

func newViewCache(size int) (*viewCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &viewCache{lru: c}, nil
}

func (c *viewCache) get(addr cluster.Address, version uint64) (api.Node, bool) {
	v, ok := c.lru.Get(addr)
	if !ok {
		return api.Node{}, false
	}
	cached := v.(cachedView)
	if cached.version != version {
		c.lru.Remove(addr)
		return api.Node{}, false
	}
	return cached.node, true
}

func (c *viewCache) add(addr cluster.Address, version uint64, node api.Node) {
	c.lru.Add(addr, cachedView{version: version, node: node})
}

func (c *viewCache) len() int {
	return c.lru.Len()
}
