package pgproto3_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loony-js/loony-postgres/pgproto3"
)

func TestStartupMessageRoundTrip(t *testing.T) {
	src := &pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters: map[string]string{
			"user":            "postgres",
			"database":        "app",
			"client_encoding": "UTF8",
		},
	}

	encoded := src.Encode(nil)

	// The startup frame has no type byte; the first 4 bytes are the length of
	// the entire frame including itself.
	require.GreaterOrEqual(t, len(encoded), 8)
	assert.Equal(t, byte(len(encoded)>>8), encoded[2])
	assert.Equal(t, byte(len(encoded)), encoded[3])

	dst := &pgproto3.StartupMessage{}
	require.NoError(t, dst.Decode(encoded[4:]))

	assert.Equal(t, src.ProtocolVersion, dst.ProtocolVersion)
	assert.Equal(t, src.Parameters, dst.Parameters)
}

func TestQueryEncode(t *testing.T) {
	encoded := (&pgproto3.Query{String: "SELECT 1"}).Encode(nil)

	assert.Equal(t, byte('Q'), encoded[0])
	// length covers itself and the NUL terminated SQL but not the type byte
	assert.Equal(t, []byte{0, 0, 0, 13}, encoded[1:5])
	assert.Equal(t, "SELECT 1", string(encoded[5:len(encoded)-1]))
	assert.Equal(t, byte(0), encoded[len(encoded)-1])
}

func TestTerminateEncode(t *testing.T) {
	assert.Equal(t, []byte{0x58, 0, 0, 0, 4}, (&pgproto3.Terminate{}).Encode(nil))
}

func TestPasswordMessageEncode(t *testing.T) {
	encoded := (&pgproto3.PasswordMessage{Password: "secret"}).Encode(nil)

	assert.Equal(t, byte('p'), encoded[0])
	assert.Equal(t, []byte{0, 0, 0, 11}, encoded[1:5])
	assert.Equal(t, byte(0), encoded[len(encoded)-1])

	dst := &pgproto3.PasswordMessage{}
	require.NoError(t, dst.Decode(encoded[5:]))
	assert.Equal(t, "secret", dst.Password)
}

func TestSASLInitialResponseRoundTrip(t *testing.T) {
	src := &pgproto3.SASLInitialResponse{
		AuthMechanism: "SCRAM-SHA-256",
		Data:          []byte("n,,n=user,r=nonce"),
	}

	encoded := src.Encode(nil)
	assert.Equal(t, byte('p'), encoded[0])
	// body: mechanism NUL, int32 data length, data, no trailing NUL
	assert.NotEqual(t, byte(0), encoded[len(encoded)-1])

	dst := &pgproto3.SASLInitialResponse{}
	require.NoError(t, dst.Decode(encoded[5:]))
	assert.Equal(t, src.AuthMechanism, dst.AuthMechanism)
	assert.Equal(t, src.Data, dst.Data)
}

func TestSASLResponseHasNoTerminator(t *testing.T) {
	encoded := (&pgproto3.SASLResponse{Data: []byte("c=biws,r=x,p=y")}).Encode(nil)

	assert.Equal(t, byte('p'), encoded[0])
	assert.Equal(t, "c=biws,r=x,p=y", string(encoded[5:]))
}

func TestDataRowRoundTrip(t *testing.T) {
	src := &pgproto3.DataRow{Values: [][]byte{
		[]byte("hello"),
		nil,
		[]byte(""),
		[]byte("\xe4\xb8\x96\xe7\x95\x8c"), // arbitrary UTF-8 bytes
	}}

	encoded := src.Encode(nil)

	dst := &pgproto3.DataRow{}
	require.NoError(t, dst.Decode(encoded[5:]))

	require.Len(t, dst.Values, 4)
	assert.Equal(t, []byte("hello"), dst.Values[0])
	assert.Nil(t, dst.Values[1])
	assert.NotNil(t, dst.Values[2])
	assert.Len(t, dst.Values[2], 0)
	assert.Equal(t, "世界", string(dst.Values[3]))
}

func TestDataRowDecodeTruncated(t *testing.T) {
	encoded := (&pgproto3.DataRow{Values: [][]byte{[]byte("hello")}}).Encode(nil)

	dst := &pgproto3.DataRow{}
	err := dst.Decode(encoded[5 : len(encoded)-2])
	require.Error(t, err)
}

func TestAuthenticationSASLDecode(t *testing.T) {
	src := &pgproto3.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256-PLUS", "SCRAM-SHA-256"}}
	encoded := src.Encode(nil)

	dst := &pgproto3.AuthenticationSASL{}
	require.NoError(t, dst.Decode(encoded[5:]))
	assert.Equal(t, src.AuthMechanisms, dst.AuthMechanisms)
}

func TestAuthenticationMD5PasswordDecode(t *testing.T) {
	src := &pgproto3.AuthenticationMD5Password{Salt: [4]byte{1, 2, 3, 4}}
	encoded := src.Encode(nil)

	dst := &pgproto3.AuthenticationMD5Password{}
	require.NoError(t, dst.Decode(encoded[5:]))
	assert.Equal(t, [4]byte{1, 2, 3, 4}, dst.Salt)
}

func TestErrorResponseDecode(t *testing.T) {
	src := &pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     "42P01",
		Message:  `relation "widgets" does not exist`,
		Detail:   "some detail",
		Hint:     "some hint",
		Position: 15,
		UnknownFields: map[byte]string{
			'Y': "custom",
		},
	}

	encoded := src.Encode(nil)

	dst := &pgproto3.ErrorResponse{}
	require.NoError(t, dst.Decode(encoded[5:]))

	assert.Equal(t, "ERROR", dst.Severity)
	assert.Equal(t, "42P01", dst.Code)
	assert.Equal(t, `relation "widgets" does not exist`, dst.Message)
	assert.Equal(t, "some detail", dst.Detail)
	assert.Equal(t, "some hint", dst.Hint)
	assert.Equal(t, int32(15), dst.Position)
	assert.Equal(t, "custom", dst.UnknownFields['Y'])
}

func TestRowDescriptionDecodeTruncatedStopsCleanly(t *testing.T) {
	src := &pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
		{Name: "a", DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1},
		{Name: "b", DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1},
	}}
	encoded := src.Encode(nil)

	dst := &pgproto3.RowDescription{}
	require.NoError(t, dst.Decode(encoded[5:len(encoded)-10]))
	// The second field is truncated; only the first survives.
	require.Len(t, dst.Fields, 1)
	assert.Equal(t, "a", dst.Fields[0].Name)
}

func TestBackendReceiveStartupMessage(t *testing.T) {
	src := &pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      map[string]string{"user": "postgres"},
	}
	encoded := src.Encode(nil)

	backend := pgproto3.NewBackend(&chunkedReader{buf: encoded, chunkSize: 1}, nil)
	msg, err := backend.ReceiveStartupMessage()
	require.NoError(t, err)
	assert.Equal(t, src.Parameters, msg.Parameters)
}

func TestBackendReceiveOverloadedPasswordType(t *testing.T) {
	var stream []byte
	stream = (&pgproto3.SASLInitialResponse{AuthMechanism: "SCRAM-SHA-256", Data: []byte("n,,n=,r=abc")}).Encode(stream)
	stream = (&pgproto3.SASLResponse{Data: []byte("c=biws,r=abc,p=x")}).Encode(stream)
	stream = (&pgproto3.PasswordMessage{Password: "secret"}).Encode(stream)

	backend := pgproto3.NewBackend(&chunkedReader{buf: stream, chunkSize: len(stream)}, nil)

	require.NoError(t, backend.SetAuthType(pgproto3.AuthTypeSASL))
	msg, err := backend.Receive()
	require.NoError(t, err)
	require.IsType(t, &pgproto3.SASLInitialResponse{}, msg)

	require.NoError(t, backend.SetAuthType(pgproto3.AuthTypeSASLContinue))
	msg, err = backend.Receive()
	require.NoError(t, err)
	require.IsType(t, &pgproto3.SASLResponse{}, msg)

	require.NoError(t, backend.SetAuthType(pgproto3.AuthTypeCleartextPassword))
	msg, err = backend.Receive()
	require.NoError(t, err)
	require.IsType(t, &pgproto3.PasswordMessage{}, msg)
	assert.Equal(t, "secret", msg.(*pgproto3.PasswordMessage).Password)
}
