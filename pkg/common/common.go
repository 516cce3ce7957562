package common

import (
	"os"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cast"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	idNode     *snowflake.Node
	idNodeOnce sync.Once
)

// NextID returns a new snowflake id. The node number is taken from the
// VERITAG_NODE_ID environment variable (defaults to 1) so that multiple
// instances never hand out the same id.
func NextID() int64 {
	idNodeOnce.Do(func() {
		nodeID := cast.ToInt64(os.Getenv("VERITAG_NODE_ID"))
		if nodeID <= 0 || nodeID > 1023 {
			nodeID = 1
		}
		node, err := snowflake.NewNode(nodeID)
		if err != nil {
			panic(err)
		}
		idNode = node
	})
	return idNode.Generate().Int64()
}
