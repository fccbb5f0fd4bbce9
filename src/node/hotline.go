package node

import (
	"os"
	"time"
)

// CheckHotline shuts the node down if the hotline file is gone or was last
// touched more than HotlineThreshold ago, and reports whether the node is
// still alive. Nodes started without a hotline file are always alive.
func (n *Node) CheckHotline() bool {
	if n.files.HotlinePath == "" {
		return true
	}

	info, err := os.Stat(n.files.HotlinePath)
	if err == nil && time.Since(info.ModTime()) < n.conf.HotlineThreshold {
		return true
	}

	if err != nil {
		n.logger.WithError(err).Info("Hotline file is gone, shutting down")
	} else {
		n.logger.WithField("age", time.Since(info.ModTime())).Info("Hotline file is stale, shutting down")
	}

	n.Shutdown()
	return false
}
