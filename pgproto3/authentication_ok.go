package pgproto3

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// AuthenticationOk is a message sent by the backend indicating that
// authentication was successful.
type AuthenticationOk struct{}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*AuthenticationOk) Backend() {}

// AuthenticationResponse identifies this message as an authentication
// response.
func (*AuthenticationOk) AuthenticationResponse() {}

// Decode decodes src into dst. src must contain the complete message with the
// exception of the initial 1 byte message type identifier and 4 byte message
// length.
func (dst *AuthenticationOk) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationOk", expectedLen: 4, actualLen: len(src)}
	}

	authType := binary.BigEndian.Uint32(src)

	if authType != AuthTypeOk {
		return &invalidMessageFormatErr{messageType: "AuthenticationOk"}
	}

	return nil
}

// Encode encodes src into dst. dst will include the 1 byte message type
// identifier and the 4 byte message length.
func (src *AuthenticationOk) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, AuthTypeOk)
	return dst
}
