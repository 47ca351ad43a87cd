// Package pgmock provides the ability to mock a PostgreSQL server. Scripts
// of expect/send steps are run against a pgproto3.Backend, which makes
// hermetic end-to-end tests of the client possible without a real server.
package pgmock

import (
	"fmt"
	"io"
	"net"
	"reflect"

	"github.com/loony-js/loony-postgres/pgproto3"
)

// Server listens on an ephemeral localhost port and serves exactly one
// connection with its controller.
type Server struct {
	ln         net.Listener
	controller Controller
}

func NewServer(controller Controller) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return nil, err
	}

	server := &Server{
		ln:         ln,
		controller: controller,
	}

	return server, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// ServeOne accepts one connection, stops listening, and runs the controller
// against that connection.
func (s *Server) ServeOne() error {
	conn, err := s.ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()

	s.Close()

	backend := pgproto3.NewBackend(conn, conn)

	return s.controller.Serve(backend)
}

func (s *Server) Close() error {
	return s.ln.Close()
}

type Controller interface {
	Serve(backend *pgproto3.Backend) error
}

type Step interface {
	Step(*pgproto3.Backend) error
}

type Script struct {
	Steps []Step
}

func (s *Script) Run(backend *pgproto3.Backend) error {
	for _, step := range s.Steps {
		err := step.Step(backend)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Script) Serve(backend *pgproto3.Backend) error {
	return s.Run(backend)
}

func (s *Script) Step(backend *pgproto3.Backend) error {
	return s.Run(backend)
}

type expectMessageStep struct {
	want pgproto3.FrontendMessage
	any  bool
}

func (e *expectMessageStep) Step(backend *pgproto3.Backend) error {
	msg, err := backend.Receive()
	if err != nil {
		return err
	}

	if e.any && reflect.TypeOf(msg) == reflect.TypeOf(e.want) {
		return nil
	}

	if !reflect.DeepEqual(msg, e.want) {
		return fmt.Errorf("msg => %#v, e.want => %#v", msg, e.want)
	}

	return nil
}

type expectStartupMessageStep struct {
	want *pgproto3.StartupMessage
	any  bool
}

func (e *expectStartupMessageStep) Step(backend *pgproto3.Backend) error {
	msg, err := backend.ReceiveStartupMessage()
	if err != nil {
		return err
	}

	if e.any {
		return nil
	}

	if !reflect.DeepEqual(msg, e.want) {
		return fmt.Errorf("msg => %#v, e.want => %#v", msg, e.want)
	}

	return nil
}

// ExpectMessage builds a Step that fails unless the exact message want is
// received.
func ExpectMessage(want pgproto3.FrontendMessage) Step {
	return expectMessage(want, false)
}

// ExpectAnyMessage builds a Step that fails unless a message of the same type
// as want is received.
func ExpectAnyMessage(want pgproto3.FrontendMessage) Step {
	return expectMessage(want, true)
}

func expectMessage(want pgproto3.FrontendMessage, any bool) Step {
	if want, ok := want.(*pgproto3.StartupMessage); ok {
		return &expectStartupMessageStep{want: want, any: any}
	}

	return &expectMessageStep{want: want, any: any}
}

type sendMessageStep struct {
	msg pgproto3.BackendMessage
}

func (e *sendMessageStep) Step(backend *pgproto3.Backend) error {
	return backend.Send(e.msg)
}

// SendMessage builds a Step that sends msg to the frontend.
func SendMessage(msg pgproto3.BackendMessage) Step {
	return &sendMessageStep{msg: msg}
}

// SendBytes builds a Step that writes raw bytes to the frontend, bypassing
// message encoding. Useful for exercising framing edge cases.
func SendBytes(buf []byte) Step {
	return &sendBytesStep{buf: buf}
}

type sendBytesStep struct {
	buf []byte
}

func (e *sendBytesStep) Step(backend *pgproto3.Backend) error {
	return backend.SendBytes(e.buf)
}

type setAuthTypeStep struct {
	authType uint32
}

func (e *setAuthTypeStep) Step(backend *pgproto3.Backend) error {
	return backend.SetAuthType(e.authType)
}

// SetAuthType builds a Step that tells the backend how to decode the next
// 'p' message from the frontend.
func SetAuthType(authType uint32) Step {
	return &setAuthTypeStep{authType: authType}
}

type waitForCloseMessageStep struct{}

func (e *waitForCloseMessageStep) Step(backend *pgproto3.Backend) error {
	for {
		msg, err := backend.Receive()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		if _, ok := msg.(*pgproto3.Terminate); ok {
			return nil
		}
	}
}

// WaitForClose builds a Step that consumes messages until a Terminate or
// EOF.
func WaitForClose() Step {
	return &waitForCloseMessageStep{}
}

// AcceptUnauthenticatedConnRequestSteps is the script prefix for a trust
// ("authentication ok") connection.
func AcceptUnauthenticatedConnRequestSteps() []Step {
	return []Step{
		ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		SendMessage(&pgproto3.AuthenticationOk{}),
		SendMessage(&pgproto3.BackendKeyData{ProcessID: 0, SecretKey: 0}),
		SendMessage(&pgproto3.ParameterStatus{Name: "server_version", Value: "14.5"}),
		SendMessage(&pgproto3.ParameterStatus{Name: "client_encoding", Value: "UTF8"}),
		SendMessage(&pgproto3.ParameterStatus{Name: "DateStyle", Value: "ISO, MDY"}),
		SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	}
}
