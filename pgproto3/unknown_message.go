package pgproto3

import (
	"github.com/jackc/pgio"
)

// UnknownMessage is any backend message whose type byte the dispatch table
// does not name (COPY traffic, notifications, and anything added to the
// protocol later). Receivers ignore it rather than failing the connection.
type UnknownMessage struct {
	TypeByte byte
	Body     []byte
}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*UnknownMessage) Backend() {}

// Decode decodes src into dst. The body references src and is only valid
// until the next call to Decode.
func (dst *UnknownMessage) Decode(src []byte) error {
	dst.Body = src
	return nil
}

// Encode encodes src into dst. dst will include the 1 byte message type
// identifier and the 4 byte message length.
func (src *UnknownMessage) Encode(dst []byte) []byte {
	dst = append(dst, src.TypeByte)
	dst = pgio.AppendInt32(dst, int32(4+len(src.Body)))
	dst = append(dst, src.Body...)
	return dst
}
