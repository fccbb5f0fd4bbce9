package node

import (
	"context"
	"runtime"
	"time"

	"github.com/storagegrid/gridnode/src/common"
	"github.com/storagegrid/gridnode/src/tub"
)

// waitPollInterval is how often wait_for_client_connections checks the peer
// table.
const waitPollInterval = 50 * time.Millisecond

// MemoryUsage is the answer to get_memory_usage.
type MemoryUsage struct {
	Alloc      uint64 `codec:"alloc"`
	TotalAlloc uint64 `codec:"total_alloc"`
	Sys        uint64 `codec:"sys"`
	HeapInuse  uint64 `codec:"heap_inuse"`
	NumGC      uint32 `codec:"num_gc"`
	Goroutines int    `codec:"goroutines"`
}

// ControlServer is the control service of a node. Its FURL is written to
// control.furl so that local tools can drive the node.
type ControlServer struct {
	node *Node
}

// NewControlServer ...
func NewControlServer(n *Node) *ControlServer {
	return &ControlServer{node: n}
}

// Invoke implements tub.Referenceable.
func (c *ControlServer) Invoke(ctx context.Context, method string, args tub.Args) (interface{}, error) {
	switch method {
	case "wait_for_client_connections":
		var num int
		if err := args.Decode(&num); err != nil {
			return nil, common.WrapGridErr(method, common.RemoteFailure, err)
		}
		return nil, c.WaitForClientConnections(ctx, num)
	case "get_memory_usage":
		return c.GetMemoryUsage(), nil
	case "get_peer_ids":
		return c.node.GetAllPeerIDs(), nil
	case "get_stats":
		return c.node.GetStats(), nil
	default:
		return nil, common.NewGridErr(method, common.NotFound, "no such method")
	}
}

// WaitForClientConnections blocks until the node knows at least num peers, or
// until ctx is done.
func (c *ControlServer) WaitForClientConnections(ctx context.Context, num int) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		if len(c.node.GetAllPeerIDs()) >= num {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return common.WrapGridErr("peers", common.NoConnection, ctx.Err())
		}
	}
}

// GetMemoryUsage reports the memory statistics of the process.
func (c *ControlServer) GetMemoryUsage() MemoryUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryUsage{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		HeapInuse:  m.HeapInuse,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}
