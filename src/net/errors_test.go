package net

import "errors"

// errTest is what test consumers answer with to exercise error relaying.
var errTest = errors.New("remote object exploded")
