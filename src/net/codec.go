package net

import (
	"io"

	"github.com/ugorji/go/codec"
)

// msgpackHandle is shared by every encoder and decoder in the package. It must
// not be modified after init.
var msgpackHandle = newMsgpackHandle()

func newMsgpackHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.RawToString = true
	mh.WriteExt = true
	return mh
}

// Encode returns the msgpack encoding of v.
func Encode(v interface{}) ([]byte, error) {
	var b []byte
	enc := codec.NewEncoderBytes(&b, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

// Decode decodes the msgpack data into v, which must be a pointer.
func Decode(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, msgpackHandle)
	return dec.Decode(v)
}

func newStreamEncoder(w io.Writer) *codec.Encoder {
	return codec.NewEncoder(w, msgpackHandle)
}

func newStreamDecoder(r io.Reader) *codec.Decoder {
	return codec.NewDecoder(r, msgpackHandle)
}
