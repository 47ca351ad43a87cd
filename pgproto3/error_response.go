package pgproto3

import (
	"strconv"

	"github.com/jackc/pgio"
)

// ErrorResponse reports an error from the backend. The body is a sequence of
// single character field codes followed by NUL terminated string values. The
// commonly used codes are decoded into named fields; anything else lands in
// UnknownFields.
type ErrorResponse struct {
	Severity            string
	SeverityUnlocalized string
	Code                string
	Message             string
	Detail              string
	Hint                string
	Position            int32
	InternalPosition    int32
	InternalQuery       string
	Where               string
	SchemaName          string
	TableName           string
	ColumnName          string
	DataTypeName        string
	ConstraintName      string
	File                string
	Line                int32
	Routine             string

	UnknownFields map[byte]string
}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*ErrorResponse) Backend() {}

// Decode decodes src into dst. src must contain the complete message with the
// exception of the initial 1 byte message type identifier and 4 byte message
// length.
func (dst *ErrorResponse) Decode(src []byte) error {
	*dst = ErrorResponse{}

	buf := newReadBuf(src)

	for {
		k, ok := buf.byte()
		if !ok || k == 0 {
			break
		}

		v, ok := buf.cstring()
		if !ok {
			break
		}

		switch k {
		case 'S':
			dst.Severity = v
		case 'V':
			dst.SeverityUnlocalized = v
		case 'C':
			dst.Code = v
		case 'M':
			dst.Message = v
		case 'D':
			dst.Detail = v
		case 'H':
			dst.Hint = v
		case 'P':
			s := v
			n, _ := strconv.ParseInt(s, 10, 32)
			dst.Position = int32(n)
		case 'p':
			s := v
			n, _ := strconv.ParseInt(s, 10, 32)
			dst.InternalPosition = int32(n)
		case 'q':
			dst.InternalQuery = v
		case 'W':
			dst.Where = v
		case 's':
			dst.SchemaName = v
		case 't':
			dst.TableName = v
		case 'c':
			dst.ColumnName = v
		case 'd':
			dst.DataTypeName = v
		case 'n':
			dst.ConstraintName = v
		case 'F':
			dst.File = v
		case 'L':
			s := v
			n, _ := strconv.ParseInt(s, 10, 32)
			dst.Line = int32(n)
		case 'R':
			dst.Routine = v
		default:
			if dst.UnknownFields == nil {
				dst.UnknownFields = make(map[byte]string)
			}
			dst.UnknownFields[k] = v
		}
	}

	return nil
}

// Encode encodes src into dst. dst will include the 1 byte message type
// identifier and the 4 byte message length.
func (src *ErrorResponse) Encode(dst []byte) []byte {
	return src.appendFields(dst, 'E')
}

func (src *ErrorResponse) appendFields(dst []byte, typeByte byte) []byte {
	dst = append(dst, typeByte)
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	appendField := func(k byte, v string) {
		if v != "" {
			dst = append(dst, k)
			dst = append(dst, v...)
			dst = append(dst, 0)
		}
	}

	appendField('S', src.Severity)
	appendField('V', src.SeverityUnlocalized)
	appendField('C', src.Code)
	appendField('M', src.Message)
	appendField('D', src.Detail)
	appendField('H', src.Hint)
	if src.Position != 0 {
		appendField('P', strconv.Itoa(int(src.Position)))
	}
	if src.InternalPosition != 0 {
		appendField('p', strconv.Itoa(int(src.InternalPosition)))
	}
	appendField('q', src.InternalQuery)
	appendField('W', src.Where)
	appendField('s', src.SchemaName)
	appendField('t', src.TableName)
	appendField('c', src.ColumnName)
	appendField('d', src.DataTypeName)
	appendField('n', src.ConstraintName)
	appendField('F', src.File)
	if src.Line != 0 {
		appendField('L', strconv.Itoa(int(src.Line)))
	}
	appendField('R', src.Routine)

	for k, v := range src.UnknownFields {
		appendField(k, v)
	}

	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))

	return dst
}
