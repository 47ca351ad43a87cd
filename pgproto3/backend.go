package pgproto3

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jackc/chunkreader/v2"
)

// Backend acts as a server for the PostgreSQL wire protocol version 3. It
// exists to support in-process test servers; the connection core only uses
// Frontend.
type Backend struct {
	cr *chunkreader.ChunkReader
	w  io.Writer

	// Frontend message flyweights
	bind                Bind
	_close              Close
	describe            Describe
	execute             Execute
	flush               Flush
	parse               Parse
	passwordMessage     PasswordMessage
	query               Query
	saslInitialResponse SASLInitialResponse
	saslResponse        SASLResponse
	startupMessage      StartupMessage
	sync                Sync
	terminate           Terminate

	bodyLen    int
	msgType    byte
	partialMsg bool
	authType   uint32
}

// NewBackend creates a new Backend.
func NewBackend(r io.Reader, w io.Writer) *Backend {
	cr := chunkreader.New(r)
	return &Backend{cr: cr, w: w}
}

// Send sends a message to the frontend.
func (b *Backend) Send(msg BackendMessage) error {
	_, err := b.w.Write(msg.Encode(nil))
	return err
}

// SendBytes writes pre-encoded bytes to the frontend verbatim. It exists for
// tests that need to produce traffic no Message would encode.
func (b *Backend) SendBytes(buf []byte) error {
	_, err := b.w.Write(buf)
	return err
}

// ReceiveStartupMessage receives the startup message. This method is used of
// the normal Receive method because the startup message is "special" and does
// not include the message type as the first byte.
func (b *Backend) ReceiveStartupMessage() (*StartupMessage, error) {
	buf, err := b.cr.Next(4)
	if err != nil {
		return nil, err
	}
	msgSize := int(binary.BigEndian.Uint32(buf) - 4)

	if msgSize < 4 || msgSize > maxMessageBodyLen {
		return nil, fmt.Errorf("invalid startup message length: %d", msgSize)
	}

	buf, err = b.cr.Next(msgSize)
	if err != nil {
		return nil, err
	}

	err = b.startupMessage.Decode(buf)
	if err != nil {
		return nil, err
	}

	return &b.startupMessage, nil
}

// Receive receives a message from the frontend. The returned message is only
// valid until the next call to Receive.
func (b *Backend) Receive() (FrontendMessage, error) {
	if !b.partialMsg {
		header, err := b.cr.Next(5)
		if err != nil {
			// A frontend closing between messages is a normal end of the
			// session, so a clean EOF here is returned as io.EOF.
			return nil, err
		}

		b.msgType = header[0]
		b.bodyLen = int(binary.BigEndian.Uint32(header[1:])) - 4
		if b.bodyLen < 0 || b.bodyLen > maxMessageBodyLen {
			return nil, fmt.Errorf("invalid body length: %d", b.bodyLen)
		}
		b.partialMsg = true
	}

	var msg FrontendMessage
	switch b.msgType {
	case 'B':
		msg = &b.bind
	case 'C':
		msg = &b._close
	case 'D':
		msg = &b.describe
	case 'E':
		msg = &b.execute
	case 'H':
		msg = &b.flush
	case 'P':
		msg = &b.parse
	case 'p':
		switch b.authType {
		case AuthTypeSASL:
			msg = &b.saslInitialResponse
		case AuthTypeSASLContinue, AuthTypeSASLFinal:
			msg = &b.saslResponse
		default:
			msg = &b.passwordMessage
		}
	case 'Q':
		msg = &b.query
	case 'S':
		msg = &b.sync
	case 'X':
		msg = &b.terminate
	default:
		return nil, fmt.Errorf("unknown message type: %c", b.msgType)
	}

	msgBody, err := b.cr.Next(b.bodyLen)
	if err != nil {
		return nil, translateEOFtoErrUnexpectedEOF(err)
	}

	b.partialMsg = false

	err = msg.Decode(msgBody)
	return msg, err
}

// SetAuthType sets the authentication type that the backend will expect next
// from the frontend. The type byte 'p' is overloaded: whether its body is a
// PasswordMessage, SASLInitialResponse, or SASLResponse depends entirely on
// the previous authentication request, which this package cannot know on its
// own.
func (b *Backend) SetAuthType(authType uint32) error {
	switch authType {
	case AuthTypeOk, AuthTypeCleartextPassword, AuthTypeMD5Password, AuthTypeSASL, AuthTypeSASLContinue, AuthTypeSASLFinal:
		b.authType = authType
	default:
		return fmt.Errorf("authType not implemented: %d", authType)
	}

	return nil
}
