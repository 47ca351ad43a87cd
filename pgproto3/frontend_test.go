package pgproto3_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loony-js/loony-postgres/pgproto3"
)

// chunkedReader yields the underlying buffer at most chunkSize bytes at a
// time, simulating arbitrary TCP segmentation.
type chunkedReader struct {
	buf       []byte
	pos       int
	chunkSize int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}

	n := r.chunkSize
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.buf) {
		n = len(r.buf) - r.pos
	}

	copy(p, r.buf[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

func wellFormedStream() []byte {
	var buf []byte
	buf = (&pgproto3.AuthenticationOk{}).Encode(buf)
	buf = (&pgproto3.ParameterStatus{Name: "server_version", Value: "14.5"}).Encode(buf)
	buf = (&pgproto3.BackendKeyData{ProcessID: 42, SecretKey: 4242}).Encode(buf)
	buf = (&pgproto3.ReadyForQuery{TxStatus: 'I'}).Encode(buf)
	buf = (&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
		{Name: "n", TableOID: 0, TableAttributeNumber: 0, DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1, Format: 0},
	}}).Encode(buf)
	buf = (&pgproto3.DataRow{Values: [][]byte{[]byte("1")}}).Encode(buf)
	buf = (&pgproto3.NoticeResponse{Severity: "NOTICE", Message: "hi"}).Encode(buf)
	buf = (&pgproto3.DataRow{Values: [][]byte{nil}}).Encode(buf)
	buf = (&pgproto3.CommandComplete{CommandTag: []byte("SELECT 2")}).Encode(buf)
	buf = (&pgproto3.ReadyForQuery{TxStatus: 'I'}).Encode(buf)
	return buf
}

// For every chunk partitioning of a stream of N well formed messages the
// receiver must yield exactly N messages in order.
func TestFrontendReceiveArbitraryChunking(t *testing.T) {
	stream := wellFormedStream()

	for chunkSize := 1; chunkSize <= len(stream); chunkSize++ {
		frontend := pgproto3.NewFrontend(&chunkedReader{buf: stream, chunkSize: chunkSize}, nil)

		expected := []interface{}{
			&pgproto3.AuthenticationOk{},
			&pgproto3.ParameterStatus{},
			&pgproto3.BackendKeyData{},
			&pgproto3.ReadyForQuery{},
			&pgproto3.RowDescription{},
			&pgproto3.DataRow{},
			&pgproto3.NoticeResponse{},
			&pgproto3.DataRow{},
			&pgproto3.CommandComplete{},
			&pgproto3.ReadyForQuery{},
		}

		for i, want := range expected {
			msg, err := frontend.Receive()
			require.NoErrorf(t, err, "chunkSize=%d message=%d", chunkSize, i)
			require.IsTypef(t, want, msg, "chunkSize=%d message=%d", chunkSize, i)
		}

		// Stream exhausted.
		_, err := frontend.Receive()
		require.Error(t, err)
	}
}

func TestFrontendReceivePreservesMessageContents(t *testing.T) {
	stream := wellFormedStream()
	frontend := pgproto3.NewFrontend(&chunkedReader{buf: stream, chunkSize: 3}, nil)

	msg, err := frontend.Receive()
	require.NoError(t, err)
	require.IsType(t, &pgproto3.AuthenticationOk{}, msg)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	ps := msg.(*pgproto3.ParameterStatus)
	assert.Equal(t, "server_version", ps.Name)
	assert.Equal(t, "14.5", ps.Value)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	keyData := msg.(*pgproto3.BackendKeyData)
	assert.Equal(t, uint32(42), keyData.ProcessID)
	assert.Equal(t, uint32(4242), keyData.SecretKey)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	assert.Equal(t, byte('I'), msg.(*pgproto3.ReadyForQuery).TxStatus)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	rowDesc := msg.(*pgproto3.RowDescription)
	require.Len(t, rowDesc.Fields, 1)
	assert.Equal(t, "n", rowDesc.Fields[0].Name)
	assert.Equal(t, uint32(23), rowDesc.Fields[0].DataTypeOID)
	assert.Equal(t, int32(-1), rowDesc.Fields[0].TypeModifier)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1")}, msg.(*pgproto3.DataRow).Values)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	notice := msg.(*pgproto3.NoticeResponse)
	assert.Equal(t, "NOTICE", notice.Severity)
	assert.Equal(t, "hi", notice.Message)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	require.Len(t, msg.(*pgproto3.DataRow).Values, 1)
	assert.Nil(t, msg.(*pgproto3.DataRow).Values[0])

	msg, err = frontend.Receive()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", string(msg.(*pgproto3.CommandComplete).CommandTag))
}

// A declared length under 4 causes a one byte resynchronization instead of a
// crash.
func TestFrontendReceiveResyncOnShortLength(t *testing.T) {
	stream := []byte{'X', 0, 0, 0, 1}
	stream = (&pgproto3.ReadyForQuery{TxStatus: 'I'}).Encode(stream)

	frontend := pgproto3.NewFrontend(&chunkedReader{buf: stream, chunkSize: 1}, nil)

	// The stream is garbage after the dropped byte; all that is required is
	// an error rather than a panic, and that the resync was counted.
	_, err := frontend.Receive()
	require.Error(t, err)
	assert.GreaterOrEqual(t, frontend.Resyncs(), 1)
}

func TestFrontendReceiveResyncRunOfZeros(t *testing.T) {
	stream := make([]byte, 16)

	frontend := pgproto3.NewFrontend(&chunkedReader{buf: stream, chunkSize: 1}, nil)

	_, err := frontend.Receive()
	require.Error(t, err)
	assert.GreaterOrEqual(t, frontend.Resyncs(), 3)
}

// A message whose declared length exceeds the bytes available must never be
// dispatched.
func TestFrontendReceiveWaitsForWholeMessage(t *testing.T) {
	full := (&pgproto3.ParameterStatus{Name: "DateStyle", Value: "ISO, MDY"}).Encode(nil)
	truncated := full[:len(full)-3]

	frontend := pgproto3.NewFrontend(&chunkedReader{buf: truncated, chunkSize: 2}, nil)
	_, err := frontend.Receive()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrontendReceiveUnknownMessageType(t *testing.T) {
	var stream []byte
	stream = append(stream, 'A', 0, 0, 0, 8, 0, 0, 0, 7) // NotificationResponse-ish
	stream = (&pgproto3.ReadyForQuery{TxStatus: 'I'}).Encode(stream)

	frontend := pgproto3.NewFrontend(&chunkedReader{buf: stream, chunkSize: len(stream)}, nil)

	msg, err := frontend.Receive()
	require.NoError(t, err)
	unknown := msg.(*pgproto3.UnknownMessage)
	assert.Equal(t, byte('A'), unknown.TypeByte)
	assert.Len(t, unknown.Body, 4)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	require.IsType(t, &pgproto3.ReadyForQuery{}, msg)
}
