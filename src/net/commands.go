package net

// CallRequest invokes Method on the object registered under Name in the tub
// identified by TubID. Args holds the msgpack encoding of the call arguments.
type CallRequest struct {
	TubID  string `codec:"tub"`
	Name   string `codec:"name"`
	Method string `codec:"method"`
	Args   []byte `codec:"args"`
}

// CallResponse carries the msgpack encoded result of a CallRequest, or the
// failure raised by the remote object. ErrType is only meaningful when Failed
// is set.
type CallResponse struct {
	Result     []byte `codec:"result"`
	Failed     bool   `codec:"failed"`
	ErrType    uint32 `codec:"err_type"`
	ErrSubject string `codec:"err_subject"`
	ErrMsg     string `codec:"err_msg"`
}

// PingRequest checks that the object registered under Name in tub TubID
// exists.
type PingRequest struct {
	TubID string `codec:"tub"`
	Name  string `codec:"name"`
}

// PingResponse answers a PingRequest.
type PingResponse struct {
	TubID  string `codec:"tub"`
	Exists bool   `codec:"exists"`
}
