// Package node implements the client node of a storage grid.
//
// A Node owns a tub in which it registers itself, its control service and the
// named services supplied by the application. Its own FURL is kept stable
// across restarts by the identity package and announced to the introducer,
// through which the node learns about the other storage peers.
//
// Bootstrap
//
// The files read from the data directory are resolved once by ReadFiles,
// before any network activity: introducer.furl is required, vdrive.furl and
// suicide_prevention_hotline are optional. Init then
//
//  - registers the node object under the name saved in myself.furl, or a
//    fresh one, and saves the resulting FURL,
//  - starts connecting to the introducer in the background,
//  - registers the control service and writes its FURL to control.furl,
//  - registers the named services,
//  - starts the vdrive handshake in the background, when vdrive.furl exists.
//
// Failures to reach the introducer or the vdrive server are logged and retried
// by the maintenance loop; only local failures abort Init.
//
// Maintenance
//
// Run drives two control timers. The maintenance timer reconnects to the
// introducer and the vdrive server when needed and probes the known peers,
// forgetting those that do not answer. The hotline timer only runs when the
// suicide_prevention_hotline file existed at startup; the node shuts itself
// down as soon as that file is gone or has not been touched for
// HotlineThreshold.
//
// Peer Selection
//
// GetPermutedPeers ranks the known peers for a storage key with rendezvous
// hashing (cf. peers.Rank). Every node that knows the same peers obtains the
// same order for the same key.
package node
