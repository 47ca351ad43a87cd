package pgproto3

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// AuthenticationMD5Password is a message sent by the backend requesting an
// MD5 hashed password. Salt is the 4 byte per-connection salt to use.
type AuthenticationMD5Password struct {
	Salt [4]byte
}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*AuthenticationMD5Password) Backend() {}

// AuthenticationResponse identifies this message as an authentication
// response.
func (*AuthenticationMD5Password) AuthenticationResponse() {}

// Decode decodes src into dst. src must contain the complete message with the
// exception of the initial 1 byte message type identifier and 4 byte message
// length.
func (dst *AuthenticationMD5Password) Decode(src []byte) error {
	if len(src) != 8 {
		return &invalidMessageLenErr{messageType: "AuthenticationMD5Password", expectedLen: 8, actualLen: len(src)}
	}

	authType := binary.BigEndian.Uint32(src)

	if authType != AuthTypeMD5Password {
		return &invalidMessageFormatErr{messageType: "AuthenticationMD5Password"}
	}

	copy(dst.Salt[:], src[4:8])

	return nil
}

// Encode encodes src into dst. dst will include the 1 byte message type
// identifier and the 4 byte message length.
func (src *AuthenticationMD5Password) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 12)
	dst = pgio.AppendUint32(dst, AuthTypeMD5Password)
	dst = append(dst, src.Salt[:]...)
	return dst
}
