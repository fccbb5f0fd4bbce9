// Package config defines the configuration for a grid node and for an
// introducer.
//
// Regardless of how gridnode is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, the node relies on a data directory, defined by Config.DataDir,
// where it expects to find, or creates, a few additional files:
//
//  introducer.furl // the websocket URL of the introducer (required).
//  vdrive.furl // (optional) the FURL of the vdrive server.
//  suicide_prevention_hotline // (optional) the node stops when this file is gone or stale.
//  node.privkey // the node's private key (cf. gridnode keygen).
//  myself.furl // the FURL of the node object, rewritten on every start.
//  control.furl // the FURL of the control service, readable by the owner only.
//  client.port // the port the node's tub listens on.
//  public_root.furl // cache of the vdrive public root FURL.
//  gridnode.toml // (optional) configuration file read by the gridnode command.
package config
