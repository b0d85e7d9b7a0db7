package utilities

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids for a single node. The node is created
// lazily so a bad node id only surfaces on first use.
type IDGenerator struct {
	nodeID int64

	once sync.Once
	node *snowflake.Node
	err  error
}

func NewIDGenerator(nodeID int64) *IDGenerator {
	return &IDGenerator{nodeID: nodeID}
}

// Next returns the next snowflake id.
func (g *IDGenerator) Next() (int64, error) {
	g.once.Do(func() {
		g.node, g.err = snowflake.NewNode(g.nodeID)
	})
	if g.err != nil {
		return 0, g.err
	}
	return g.node.Generate().Int64(), nil
}
