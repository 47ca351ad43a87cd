package loonypg

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// SQLSTATE codes the client itself inspects.
const (
	PgErrorConnectionExceptionCode               = "08000"
	PgErrorConnectionFailureCode                 = "08006"
	PgErrorProtocolViolationCode                 = "08P01"
	PgErrorInvalidAuthorizationSpecificationCode = "28000"
	PgErrorInvalidPasswordCode                   = "28P01"
	PgErrorUndefinedTableCode                    = "42P01"
	PgErrorQueryCanceledCode                     = "57014"
	PgErrorAdminShutdownCode                     = "57P01"
)

// SafeToRetry checks if the err is guaranteed to have occurred before sending
// any data to the server.
func SafeToRetry(err error) bool {
	if e, ok := err.(interface{ SafeToRetry() bool }); ok {
		return e.SafeToRetry()
	}
	return false
}

// Timeout checks if err was caused by a timeout. To be specific, it is true
// if err was caused within loonypg by a context that was already done
// (canceled or past its deadline) when the operation started, or by an
// implementer of net.Error where Timeout() is true.
func Timeout(err error) bool {
	var timeoutErr *errTimeout
	return errors.As(err, &timeoutErr)
}

// PgError represents an error reported by the PostgreSQL server. The fields
// mirror the single character field codes of the ErrorResponse message. See
// http://www.postgresql.org/docs/current/protocol-error-fields.html for
// detailed field description.
type PgError struct {
	Severity         string
	Code             string
	Message          string
	Detail           string
	Hint             string
	Position         int32
	InternalPosition int32
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             int32
	Routine          string
}

func (pgErr *PgError) Error() string {
	return pgErr.Severity + ": " + pgErr.Message + " (SQLSTATE " + pgErr.Code + ")"
}

// SQLState returns the SQLSTATE error code.
func (pgErr *PgError) SQLState() string {
	return pgErr.Code
}

// ConnectError is the error returned when a connection attempt fails. Unwrap
// exposes the underlying cause, which may be a *PgError, an *AuthError, or a
// transport error.
type ConnectError struct {
	Config *Config
	msg    string
	err    error
}

func (e *ConnectError) Error() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "failed to connect to `host=%s user=%s database=%s`: %s", e.Config.Host, e.Config.User, e.Config.Database, e.msg)
	if e.err != nil {
		fmt.Fprintf(sb, " (%s)", e.err.Error())
	}
	return sb.String()
}

func (e *ConnectError) Unwrap() error {
	return e.err
}

// AuthError is an authentication failure: bad credentials, an unsupported
// mechanism, or a server signature that did not verify. It is always fatal to
// the connection attempt.
type AuthError struct {
	msg string
	err error
}

func (e *AuthError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.err.Error())
}

func (e *AuthError) Unwrap() error {
	return e.err
}

// ConnLockError is returned when an operation is attempted while the
// connection cannot accept one (busy with another query, still
// authenticating, closed, or failed).
type ConnLockError struct {
	status string
}

func (e *ConnLockError) Error() string {
	return e.status
}

// SafeToRetry returns true. A lock failure by definition occurs before
// anything is sent to the server.
func (e *ConnLockError) SafeToRetry() bool {
	return true
}

type parseConfigError struct {
	connString string
	msg        string
	err        error
}

func (e *parseConfigError) Error() string {
	connString := redactPW(e.connString)
	if e.err == nil {
		return fmt.Sprintf("cannot parse `%s`: %s", connString, e.msg)
	}
	return fmt.Sprintf("cannot parse `%s`: %s (%s)", connString, e.msg, e.err.Error())
}

func (e *parseConfigError) Unwrap() error {
	return e.err
}

type errTimeout struct {
	err error
}

func (e *errTimeout) Error() string {
	return fmt.Sprintf("timeout: %s", e.err.Error())
}

func (e *errTimeout) SafeToRetry() bool {
	return SafeToRetry(e.err)
}

func (e *errTimeout) Unwrap() error {
	return e.err
}

func newContextAlreadyDoneError(ctx context.Context) error {
	return &errTimeout{&contextAlreadyDoneError{err: ctx.Err()}}
}

type contextAlreadyDoneError struct {
	err error
}

func (e *contextAlreadyDoneError) Error() string {
	return fmt.Sprintf("context already done: %s", e.err.Error())
}

func (e *contextAlreadyDoneError) SafeToRetry() bool {
	return true
}

func (e *contextAlreadyDoneError) Unwrap() error {
	return e.err
}

func redactPW(connString string) string {
	if strings.HasPrefix(connString, "postgres://") || strings.HasPrefix(connString, "postgresql://") {
		if u, err := url.Parse(connString); err == nil {
			return redactURL(u)
		}
	}
	quotedDSN := regexp.MustCompile(`password='[^']*'`)
	connString = quotedDSN.ReplaceAllLiteralString(connString, "password=xxxxx")
	plainDSN := regexp.MustCompile(`password=[^ ]*`)
	connString = plainDSN.ReplaceAllLiteralString(connString, "password=xxxxx")
	return connString
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if _, pwSet := u.User.Password(); pwSet {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// netErrorTimeout reports whether err is a net.Error that timed out.
func netErrorTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
