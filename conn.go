package loonypg

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/loony-js/loony-postgres/pgproto3"
)

// ConnStatus describes the lifecycle state of a Conn.
type ConnStatus byte

const (
	ConnStatusDisconnected ConnStatus = iota
	ConnStatusConnecting
	ConnStatusAuthenticating
	ConnStatusReady
	ConnStatusBusy
	ConnStatusClosed
	ConnStatusFailed
)

func (s ConnStatus) String() string {
	switch s {
	case ConnStatusDisconnected:
		return "disconnected"
	case ConnStatusConnecting:
		return "connecting"
	case ConnStatusAuthenticating:
		return "authenticating"
	case ConnStatusReady:
		return "ready"
	case ConnStatusBusy:
		return "busy"
	case ConnStatusClosed:
		return "closed"
	case ConnStatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("invalid status %d", byte(s))
	}
}

// Notice represents a notice response message reported by the PostgreSQL
// server. Be aware that this is distinct from LISTEN/NOTIFY notifications.
type Notice PgError

// Conn is a PostgreSQL connection handle. It is not safe for concurrent
// usage.
type Conn struct {
	conn              net.Conn
	pid               uint32
	secretKey         uint32
	parameterStatuses map[string]string
	txStatus          byte
	frontend          *pgproto3.Frontend

	config *Config

	status  ConnStatus
	resyncs int
}

// Connect establishes a connection to a PostgreSQL server using the
// environment and connString exactly as ParseConfig does.
func Connect(ctx context.Context, connString string) (*Conn, error) {
	config, err := ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	return ConnectConfig(ctx, config)
}

// ConnectConfig establishes a connection to a PostgreSQL server using config.
// config must not be mutated while connecting or while the returned Conn is
// in use.
func ConnectConfig(ctx context.Context, config *Config) (*Conn, error) {
	config = config.withDefaults()

	c := &Conn{
		config:            config,
		parameterStatuses: make(map[string]string),
		status:            ConnStatusConnecting,
	}

	if ctx.Err() != nil {
		return nil, &ConnectError{Config: config, msg: "dial error", err: newContextAlreadyDoneError(ctx)}
	}

	network, address := NetworkAddress(config.Host, config.Port)
	netConn, err := config.DialFunc(ctx, network, address)
	if err != nil {
		c.status = ConnStatusFailed
		return nil, &ConnectError{Config: config, msg: "dial error", err: err}
	}
	c.conn = netConn
	c.frontend = pgproto3.NewFrontend(netConn, netConn)

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	}

	startupMsg := pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      make(map[string]string),
	}

	// Copy default run-time params
	for k, v := range config.RuntimeParams {
		startupMsg.Parameters[k] = v
	}

	startupMsg.Parameters["user"] = config.User
	if config.Database != "" {
		startupMsg.Parameters["database"] = config.Database
	}

	if _, err := c.conn.Write(startupMsg.Encode(nil)); err != nil {
		c.hardClose()
		return nil, &ConnectError{Config: config, msg: "failed to write startup message", err: err}
	}
	c.status = ConnStatusAuthenticating

	for {
		msg, err := c.receiveMessage()
		if err != nil {
			c.hardClose()
			return nil, &ConnectError{Config: config, msg: "failed to receive message", err: err}
		}

		switch msg := msg.(type) {
		case *pgproto3.BackendKeyData:
			c.pid = msg.ProcessID
			c.secretKey = msg.SecretKey
		case *pgproto3.AuthenticationOk:
			// Remain authenticating until ReadyForQuery arrives.
		case *pgproto3.AuthenticationCleartextPassword:
			err = c.txPasswordMessage(config.Password)
		case *pgproto3.AuthenticationMD5Password:
			digestedPassword := "md5" + hexMD5(hexMD5(config.Password+config.User)+string(msg.Salt[:]))
			err = c.txPasswordMessage(digestedPassword)
		case *pgproto3.AuthenticationSASL:
			err = c.scramAuth(msg.AuthMechanisms)
		case *pgproto3.ReadyForQuery:
			c.status = ConnStatusReady
			c.conn.SetDeadline(time.Time{})
			c.log(ctx, LogLevelInfo, "connection established", map[string]interface{}{"host": config.Host, "database": config.Database})
			return c, nil
		case *pgproto3.ErrorResponse:
			pgErr := errorResponseToPgError(msg)
			c.hardClose()
			var cause error = pgErr
			if pgErr.Code == PgErrorInvalidPasswordCode || pgErr.Code == PgErrorInvalidAuthorizationSpecificationCode {
				cause = &AuthError{msg: "authentication failed", err: pgErr}
			}
			return nil, &ConnectError{Config: config, msg: "server error", err: cause}
		default:
			c.hardClose()
			return nil, &ConnectError{Config: config, msg: fmt.Sprintf("received unexpected message %T", msg)}
		}

		if err != nil {
			c.hardClose()
			var pgErr *PgError
			if errors.As(err, &pgErr) && (pgErr.Code == PgErrorInvalidPasswordCode || pgErr.Code == PgErrorInvalidAuthorizationSpecificationCode) {
				err = &AuthError{msg: "authentication failed", err: pgErr}
			}
			return nil, &ConnectError{Config: config, msg: "failed to authenticate", err: err}
		}
	}
}

func (config *Config) withDefaults() *Config {
	config = config.Copy()

	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 30 * time.Second
	}
	if config.DialFunc == nil {
		d := makeDefaultDialer()
		d.Timeout = config.ConnectTimeout
		config.DialFunc = d.DialContext
	}
	if _, present := config.RuntimeParams["client_encoding"]; !present {
		config.RuntimeParams["client_encoding"] = "UTF8"
	}
	if config.LogLevel == 0 {
		config.LogLevel = LogLevelInfo
	}

	return config
}

func (c *Conn) txPasswordMessage(password string) error {
	return c.frontend.Send(&pgproto3.PasswordMessage{Password: password})
}

func hexMD5(s string) string {
	hash := md5.New()
	io.WriteString(hash, s)
	return hex.EncodeToString(hash.Sum(nil))
}

// receiveMessage receives one message from the backend and applies the side
// effects of the asynchronous message types: ParameterStatus updates the
// session parameter map, NoticeResponse goes to the notice handler, and
// messages with an unrecognized type byte are skipped with a debug log. None
// of these are returned to the caller, and none ever advance a state
// machine.
func (c *Conn) receiveMessage() (pgproto3.BackendMessage, error) {
	for {
		msg, err := c.frontend.Receive()
		if err != nil {
			if netErrorTimeout(err) {
				err = &errTimeout{err: err}
			}
			return nil, err
		}

		if n := c.frontend.Resyncs(); n > c.resyncs {
			c.log(context.Background(), LogLevelWarn, "protocol framing resynchronized", map[string]interface{}{"discardedBytes": n - c.resyncs})
			c.resyncs = n
		}

		switch msg := msg.(type) {
		case *pgproto3.ParameterStatus:
			c.parameterStatuses[msg.Name] = msg.Value
			continue
		case *pgproto3.NoticeResponse:
			if c.config.OnNotice != nil {
				c.config.OnNotice(c, noticeResponseToNotice(msg))
			} else {
				c.log(context.Background(), LogLevelWarn, "notice", map[string]interface{}{"severity": msg.Severity, "message": msg.Message})
			}
			continue
		case *pgproto3.UnknownMessage:
			c.log(context.Background(), LogLevelDebug, "ignoring unknown message", map[string]interface{}{"type": string(msg.TypeByte)})
			continue
		case *pgproto3.ReadyForQuery:
			c.txStatus = msg.TxStatus
		}

		return msg, nil
	}
}

// CommandTag is the status tag reported by a CommandComplete message.
type CommandTag string

// Command returns the command verb: the first space separated token of the
// tag.
func (ct CommandTag) Command() string {
	s := string(ct)
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[:idx]
	}
	return s
}

// RowsAffected returns the number of rows reported by the tag. If the tag
// does not end in a number (e.g. "VACUUM") it returns 0.
func (ct CommandTag) RowsAffected() int64 {
	s := string(ct)
	idx := strings.LastIndexByte(s, ' ')
	if idx == -1 {
		return 0
	}
	n, _ := strconv.ParseInt(s[idx+1:], 10, 64)
	return n
}

// InsertOID returns the OID carried by a three token "INSERT oid rows" tag
// and whether the tag carried one. Servers report a non-zero OID only for a
// single row insert into a table with OIDs.
func (ct CommandTag) InsertOID() (uint32, bool) {
	tokens := strings.Fields(string(ct))
	if len(tokens) != 3 || !strings.EqualFold(tokens[0], "INSERT") {
		return 0, false
	}
	oid, err := strconv.ParseUint(tokens[1], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(oid), true
}

// Result is the complete response to a simple query.
//
// Rows are positional: Rows[i][j] is the raw text value of column j in row i,
// nil meaning SQL NULL. Positional storage preserves duplicate column names;
// use ColumnIndex to resolve a name to its first position.
type Result struct {
	FieldDescriptions []pgproto3.FieldDescription
	Rows              [][][]byte
	CommandTag        CommandTag
}

// ColumnIndex returns the index of the first column named name, or -1 if
// there is no such column.
func (r *Result) ColumnIndex(name string) int {
	for i := range r.FieldDescriptions {
		if r.FieldDescriptions[i].Name == name {
			return i
		}
	}
	return -1
}

// Query executes sql via the PostgreSQL simple query protocol and collects
// the entire response. sql may contain multiple statements; FieldDescriptions
// and CommandTag are those of the last statement that reported them, while
// Rows collects the rows of every statement in order.
//
// A *PgError result leaves the connection usable. Any other error is fatal:
// the frame boundary is unknown, so the connection must be closed and
// reopened.
func (c *Conn) Query(ctx context.Context, sql string) (*Result, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	c.status = ConnStatusBusy

	if ctx.Err() != nil {
		c.status = ConnStatusReady
		return nil, newContextAlreadyDoneError(ctx)
	}

	c.log(ctx, LogLevelDebug, "sending query", map[string]interface{}{"sql": sql})

	deadline := time.Now().Add(c.config.QueryTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	c.conn.SetReadDeadline(deadline)

	if err := c.frontend.Send(&pgproto3.Query{String: sql}); err != nil {
		c.hardClose()
		return nil, err
	}

	result := &Result{}
	var pgErr *PgError

	for {
		msg, err := c.receiveMessage()
		if err != nil {
			c.hardClose()
			return nil, err
		}

		switch msg := msg.(type) {
		case *pgproto3.RowDescription:
			result.FieldDescriptions = make([]pgproto3.FieldDescription, len(msg.Fields))
			copy(result.FieldDescriptions, msg.Fields)
		case *pgproto3.DataRow:
			// The flyweight values are only valid until the next receive.
			row := make([][]byte, len(msg.Values))
			for i, v := range msg.Values {
				if v != nil {
					row[i] = make([]byte, len(v))
					copy(row[i], v)
				}
			}
			result.Rows = append(result.Rows, row)
		case *pgproto3.CommandComplete:
			result.CommandTag = CommandTag(msg.CommandTag)
		case *pgproto3.EmptyQueryResponse:
			result.CommandTag = CommandTag("EMPTY")
		case *pgproto3.NoData:
			// no-op for the simple query protocol
		case *pgproto3.ErrorResponse:
			pgErr = errorResponseToPgError(msg)
			if msg.Severity == "FATAL" {
				// The server is tearing the session down and will not send a
				// ReadyForQuery.
				c.hardClose()
				return nil, pgErr
			}
		case *pgproto3.ReadyForQuery:
			c.status = ConnStatusReady
			c.conn.SetReadDeadline(time.Time{})
			if pgErr != nil {
				return nil, pgErr
			}
			if result.CommandTag == "" {
				result.CommandTag = "UNKNOWN"
			}
			return result, nil
		}
	}
}

func (c *Conn) lock() error {
	switch c.status {
	case ConnStatusReady:
		return nil
	case ConnStatusBusy:
		return &ConnLockError{status: "conn busy"}
	case ConnStatusClosed:
		return &ConnLockError{status: "conn closed"}
	case ConnStatusFailed:
		return &ConnLockError{status: "conn unusable after fatal error"}
	default:
		return &ConnLockError{status: "conn not ready for query"}
	}
}

// hardClose drops the underlying connection without the Terminate handshake.
// Used when the protocol state is unknown.
func (c *Conn) hardClose() {
	if c.status == ConnStatusClosed {
		return
	}
	c.status = ConnStatusFailed
	if c.conn != nil {
		c.conn.Close()
	}
}

// Close sends a Terminate message, half-closes the write side of the
// transport where possible, waits briefly for the server to close its side,
// and releases the connection. It is safe to call Close on an already closed
// connection.
func (c *Conn) Close(ctx context.Context) error {
	if c.status == ConnStatusClosed || c.conn == nil {
		c.status = ConnStatusClosed
		return nil
	}
	wasFailed := c.status == ConnStatusFailed
	c.status = ConnStatusClosed

	c.log(ctx, LogLevelDebug, "closing connection", nil)

	if wasFailed {
		// The frame boundary may be unknown, so skip the Terminate handshake.
		// hardClose may already have released the socket.
		c.conn.Close()
		return nil
	}

	deadline := time.Now().Add(5 * time.Second)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write([]byte{'X', 0, 0, 0, 4}); err != nil {
		return c.conn.Close()
	}

	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}

	// Drain until the server closes its side or the window expires.
	buf := make([]byte, 512)
	for {
		if _, err := c.conn.Read(buf); err != nil {
			break
		}
	}

	return c.conn.Close()
}

// Status returns the lifecycle state of the connection.
func (c *Conn) Status() ConnStatus {
	return c.status
}

// ReadyForQuery is true only between a received ReadyForQuery message and
// the next outbound query.
func (c *Conn) ReadyForQuery() bool {
	return c.status == ConnStatusReady
}

// PID returns the backend PID.
func (c *Conn) PID() uint32 {
	return c.pid
}

// SecretKey returns the key that would be used to send a cancel request to
// the server.
func (c *Conn) SecretKey() uint32 {
	return c.secretKey
}

// TxStatus returns the transaction status byte of the last ReadyForQuery:
// 'I' idle, 'T' in transaction, 'E' failed transaction.
func (c *Conn) TxStatus() byte {
	return c.txStatus
}

// ParameterStatus returns the value of a parameter reported by the server
// (e.g. server_version, client_encoding, DateStyle). Returns an empty string
// for unknown parameters. Values are updated whenever the server reports a
// change, last write wins.
func (c *Conn) ParameterStatus(key string) string {
	return c.parameterStatuses[key]
}

func (c *Conn) shouldLog(lvl LogLevel) bool {
	return c.config.Logger != nil && c.config.LogLevel >= lvl
}

func (c *Conn) log(ctx context.Context, lvl LogLevel, msg string, data map[string]interface{}) {
	if !c.shouldLog(lvl) {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	if c.pid != 0 {
		data["pid"] = c.pid
	}
	c.config.Logger.Log(ctx, lvl, msg, data)
}

func errorResponseToPgError(msg *pgproto3.ErrorResponse) *PgError {
	return &PgError{
		Severity:         msg.Severity,
		Code:             msg.Code,
		Message:          msg.Message,
		Detail:           msg.Detail,
		Hint:             msg.Hint,
		Position:         msg.Position,
		InternalPosition: msg.InternalPosition,
		InternalQuery:    msg.InternalQuery,
		Where:            msg.Where,
		SchemaName:       msg.SchemaName,
		TableName:        msg.TableName,
		ColumnName:       msg.ColumnName,
		DataTypeName:     msg.DataTypeName,
		ConstraintName:   msg.ConstraintName,
		File:             msg.File,
		Line:             msg.Line,
		Routine:          msg.Routine,
	}
}

func noticeResponseToNotice(msg *pgproto3.NoticeResponse) *Notice {
	pgerr := errorResponseToPgError((*pgproto3.ErrorResponse)(msg))
	return (*Notice)(pgerr)
}
