// Package introducer implements peer discovery for the grid.
//
// The introducer is a WAMP router (github.com/gammazero/nexus). Nodes open a
// session with it, publish the FURL of their node object, and subscribe to
// announcements of other nodes. The Server side keeps the current
// announcements in a Store, answers the list procedure with them, and
// broadcasts changes on the announce and depart topics. A re-announcement of
// an unchanged FURL is not broadcast again.
//
// The Client side connects to every announced node through its tub and keeps
// the resulting handles in a peers.PeerSet. Announcement events are processed
// one at a time in the order they arrive, so the peer table converges to the
// announcements of the introducer.
//
// When the server sees a session leave, it withdraws the announcements made by
// that session and broadcasts their departure.
package introducer
