package net

// RPCResponse is what a consumer hands back for one inbound request. Error,
// when set, is sent to the caller as text; Response still travels so the
// caller can decode a well-formed body.
type RPCResponse struct {
	Response interface{}
	Error    error
}

// RPC is one inbound CallRequest or PingRequest waiting on Consumer().
type RPC struct {
	Command  interface{}
	RespChan chan<- RPCResponse
}

// Respond answers the request. It must be called exactly once.
func (r *RPC) Respond(resp interface{}, err error) {
	r.RespChan <- RPCResponse{Response: resp, Error: err}
}
