package encoding

import (
	"github.com/ugorji/go/codec"
)

// MsgpackName is the wire identifier of the compact binary codec
const MsgpackName = "msgpack"

// Msgpack encodes with ugorji/go/codec. Struct fields use their json tags.
type Msgpack struct {
	handle *codec.MsgpackHandle
}

// NewMsgpack returns a msgpack codec that writes byte slices as the bin type
func NewMsgpack() *Msgpack {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	h.RawToString = true
	return &Msgpack{handle: h}
}

func (m *Msgpack) Name() string { return MsgpackName }

func (m *Msgpack) Marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, m.handle).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Msgpack) Unmarshal(data []byte, v any) error {
	return codec.NewDecoderBytes(data, m.handle).Decode(v)
}
