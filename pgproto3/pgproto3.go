// Package pgproto3 is an encoder and decoder of the PostgreSQL wire protocol
// version 3.
//
// The message type names used here match the official PostgreSQL protocol
// documentation (https://www.postgresql.org/docs/current/protocol-message-formats.html).
// Several type bytes are reused with different meanings in the two directions
// of the protocol ('S', 'D', 'C', 'E'), so decoding is always driven by the
// role of the receiver: Frontend decodes backend messages and Backend decodes
// frontend messages.
package pgproto3

import "fmt"

// maxMessageBodyLen is the maximum length of a message body in bytes. See PQ_LARGE_MESSAGE_LIMIT in the PostgreSQL
// source. It is defined here rather than an exported constant as it is not likely to be needed externally.
const maxMessageBodyLen = (0x3fffffff + 1)

// Message is the interface implemented by an object that can decode and encode
// a particular PostgreSQL message.
type Message interface {
	// Decode is allowed and expected to retain a reference to data after
	// returning (unlike encoding.BinaryUnmarshaler).
	Decode(data []byte) error

	// Encode appends itself to dst and returns the new buffer.
	Encode(dst []byte) []byte
}

// FrontendMessage is a message sent by the frontend (i.e. the client).
type FrontendMessage interface {
	Message
	Frontend() // no-op method to distinguish frontend from backend methods
}

// BackendMessage is a message sent by the backend (i.e. the server).
type BackendMessage interface {
	Message
	Backend() // no-op method to distinguish frontend from backend methods
}

// AuthenticationResponseMessage is implemented by the Authentication* family
// of backend messages.
type AuthenticationResponseMessage interface {
	BackendMessage
	AuthenticationResponse() // no-op method to distinguish authentication responses
}

type invalidMessageLenErr struct {
	messageType string
	expectedLen int
	actualLen   int
}

func (e *invalidMessageLenErr) Error() string {
	return fmt.Sprintf("%s body must have length of %d, but it is %d", e.messageType, e.expectedLen, e.actualLen)
}

type invalidMessageFormatErr struct {
	messageType string
}

func (e *invalidMessageFormatErr) Error() string {
	return fmt.Sprintf("%s body is invalid", e.messageType)
}
