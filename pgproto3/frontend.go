package pgproto3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/chunkreader/v2"
)

// Frontend acts as a client for the PostgreSQL wire protocol version 3.
type Frontend struct {
	cr *chunkreader.ChunkReader
	w  io.Writer

	// Backend message flyweights
	authenticationOk                AuthenticationOk
	authenticationCleartextPassword AuthenticationCleartextPassword
	authenticationMD5Password       AuthenticationMD5Password
	authenticationSASL              AuthenticationSASL
	authenticationSASLContinue      AuthenticationSASLContinue
	authenticationSASLFinal         AuthenticationSASLFinal
	backendKeyData                  BackendKeyData
	bindComplete                    BindComplete
	closeComplete                   CloseComplete
	commandComplete                 CommandComplete
	dataRow                         DataRow
	emptyQueryResponse              EmptyQueryResponse
	errorResponse                   ErrorResponse
	noData                          NoData
	noticeResponse                  NoticeResponse
	parameterDescription            ParameterDescription
	parameterStatus                 ParameterStatus
	parseComplete                   ParseComplete
	readyForQuery                   ReadyForQuery
	rowDescription                  RowDescription
	portalSuspended                 PortalSuspended
	unknownMessage                  UnknownMessage

	header     [5]byte
	bodyLen    int
	msgType    byte
	partialMsg bool
	authType   uint32
	resyncs    int
}

// NewFrontend creates a new Frontend.
func NewFrontend(r io.Reader, w io.Writer) *Frontend {
	cr := chunkreader.New(r)
	return &Frontend{cr: cr, w: w}
}

// Send sends a message to the backend.
func (f *Frontend) Send(msg FrontendMessage) error {
	_, err := f.w.Write(msg.Encode(nil))
	return err
}

func translateEOFtoErrUnexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Receive receives a message from the backend. The returned message is only
// valid until the next call to Receive.
//
// A message is never returned before its declared length has been fully
// buffered. A declared length under 4 is impossible in a well-formed stream;
// Receive discards one byte, shifts the header window, and retries
// (resynchronization). The number of such events is reported by Resyncs.
func (f *Frontend) Receive() (BackendMessage, error) {
	if !f.partialMsg {
		header, err := f.cr.Next(5)
		if err != nil {
			return nil, translateEOFtoErrUnexpectedEOF(err)
		}
		copy(f.header[:], header)

		for {
			msgLength := int(binary.BigEndian.Uint32(f.header[1:]))
			if msgLength >= 4 {
				break
			}

			f.resyncs++
			copy(f.header[:4], f.header[1:])
			b, err := f.cr.Next(1)
			if err != nil {
				return nil, translateEOFtoErrUnexpectedEOF(err)
			}
			f.header[4] = b[0]
		}

		f.msgType = f.header[0]
		f.bodyLen = int(binary.BigEndian.Uint32(f.header[1:])) - 4
		if f.bodyLen > maxMessageBodyLen {
			return nil, fmt.Errorf("invalid body length: %d", f.bodyLen)
		}
		f.partialMsg = true
	}

	msgBody, err := f.cr.Next(f.bodyLen)
	if err != nil {
		return nil, translateEOFtoErrUnexpectedEOF(err)
	}

	f.partialMsg = false

	var msg BackendMessage
	switch f.msgType {
	case '1':
		msg = &f.parseComplete
	case '2':
		msg = &f.bindComplete
	case '3':
		msg = &f.closeComplete
	case 'C':
		msg = &f.commandComplete
	case 'D':
		msg = &f.dataRow
	case 'E':
		msg = &f.errorResponse
	case 'I':
		msg = &f.emptyQueryResponse
	case 'K':
		msg = &f.backendKeyData
	case 'n':
		msg = &f.noData
	case 'N':
		msg = &f.noticeResponse
	case 'R':
		var err error
		msg, err = f.findAuthenticationMessageType(msgBody)
		if err != nil {
			return nil, err
		}
	case 's':
		msg = &f.portalSuspended
	case 'S':
		msg = &f.parameterStatus
	case 't':
		msg = &f.parameterDescription
	case 'T':
		msg = &f.rowDescription
	case 'Z':
		msg = &f.readyForQuery
	default:
		f.unknownMessage.TypeByte = f.msgType
		msg = &f.unknownMessage
	}

	err = msg.Decode(msgBody)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// Authentication sub-type codes. See src/include/libpq/pqcomm.h for all
// constants.
const (
	AuthTypeOk                = 0
	AuthTypeCleartextPassword = 3
	AuthTypeMD5Password       = 5
	AuthTypeSCMCreds          = 6
	AuthTypeGSS               = 7
	AuthTypeGSSCont           = 8
	AuthTypeSSPI              = 9
	AuthTypeSASL              = 10
	AuthTypeSASLContinue      = 11
	AuthTypeSASLFinal         = 12
)

func (f *Frontend) findAuthenticationMessageType(src []byte) (BackendMessage, error) {
	if len(src) < 4 {
		return nil, errors.New("authentication message too short")
	}
	f.authType = binary.BigEndian.Uint32(src[:4])

	switch f.authType {
	case AuthTypeOk:
		return &f.authenticationOk, nil
	case AuthTypeCleartextPassword:
		return &f.authenticationCleartextPassword, nil
	case AuthTypeMD5Password:
		return &f.authenticationMD5Password, nil
	case AuthTypeSASL:
		return &f.authenticationSASL, nil
	case AuthTypeSASLContinue:
		return &f.authenticationSASLContinue, nil
	case AuthTypeSASLFinal:
		return &f.authenticationSASLFinal, nil
	default:
		return nil, fmt.Errorf("unsupported authentication type: %d", f.authType)
	}
}

// GetAuthType returns the authType of the most recently received
// Authentication message.
func (f *Frontend) GetAuthType() uint32 {
	return f.authType
}

// Resyncs returns the number of framing resynchronizations performed since
// the Frontend was created.
func (f *Frontend) Resyncs() int {
	return f.resyncs
}
