// Package identity gives a node a FURL that survives restarts.
//
// The first time a node starts, its node object is registered under a fresh
// random name and the resulting FURL is saved in myself.furl. On later starts
// the name is recovered from that file and the object is registered under the
// same name again, so peers holding the old FURL still reach the node as long
// as its key and address are unchanged. The file is rewritten on every start
// with the FURL the node now answers to.
package identity
