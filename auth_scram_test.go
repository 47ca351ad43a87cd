package loonypg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test vector from RFC 7677 section 3: user "user", password "pencil",
// client nonce "rOprNGfwEbeRWgbNEkqO".
func rfc7677Client() *scramClient {
	return &scramClient{
		serverAuthMechanisms:   []string{"SCRAM-SHA-256"},
		password:               []byte("pencil"),
		clientNonce:            []byte("rOprNGfwEbeRWgbNEkqO"),
		clientFirstMessageBare: []byte("n=user,r=rOprNGfwEbeRWgbNEkqO"),
	}
}

const rfc7677ServerFirst = "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"

func TestScramClientFirstMessage(t *testing.T) {
	sc := rfc7677Client()
	assert.Equal(t, "n,,n=user,r=rOprNGfwEbeRWgbNEkqO", string(sc.clientFirstMessage()))
}

func TestScramExchangeRFC7677Vector(t *testing.T) {
	sc := rfc7677Client()

	err := sc.recvServerFirstMessage([]byte(rfc7677ServerFirst))
	require.NoError(t, err)

	assert.Equal(t, "rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0", string(sc.clientAndServerNonce))
	assert.Equal(t, 4096, sc.iterations)

	clientFinal := sc.clientFinalMessage()
	assert.Equal(t,
		"c=biws,r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ=",
		clientFinal)

	err = sc.recvServerFinalMessage([]byte("v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4="))
	require.NoError(t, err)
}

func TestScramServerFirstValidation(t *testing.T) {
	tests := []struct {
		name        string
		serverFirst string
	}{
		{"nonce not prefixed by client nonce", "r=deadbeefdeadbeefdeadbeef,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"},
		{"nonce not extended", "r=rOprNGfwEbeRWgbNEkqO,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"},
		{"missing nonce", "s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"},
		{"missing salt", "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,i=4096"},
		{"missing iterations", "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ=="},
		{"malformed salt", "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=!!!,i=4096"},
		{"malformed iterations", "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := rfc7677Client()
			err := sc.recvServerFirstMessage([]byte(tt.serverFirst))
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
		})
	}
}

func TestScramServerFinalValidation(t *testing.T) {
	sc := rfc7677Client()
	require.NoError(t, sc.recvServerFirstMessage([]byte(rfc7677ServerFirst)))
	_ = sc.clientFinalMessage()

	t.Run("server error", func(t *testing.T) {
		err := sc.recvServerFinalMessage([]byte("e=invalid-proof"))
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, err.Error(), "invalid-proof")
	})

	t.Run("missing v", func(t *testing.T) {
		err := sc.recvServerFinalMessage([]byte("x=whatever"))
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
	})

	t.Run("mismatched signature", func(t *testing.T) {
		err := sc.recvServerFinalMessage([]byte("v=AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="))
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
	})

	t.Run("correct signature", func(t *testing.T) {
		err := sc.recvServerFinalMessage([]byte("v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4="))
		require.NoError(t, err)
	})
}

func TestNewScramClientRequiresSCRAMSHA256(t *testing.T) {
	_, err := newScramClient([]string{"SCRAM-SHA-256-PLUS", "OAUTHBEARER"}, "postgres", "secret")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "SCRAM-SHA-256-PLUS")

	sc, err := newScramClient([]string{"SCRAM-SHA-256"}, "postgres", "secret")
	require.NoError(t, err)
	// 18 random bytes base64 encode to 24 characters.
	assert.Len(t, sc.clientNonce, 24)
}

func TestSaslName(t *testing.T) {
	assert.Equal(t, "user", saslName("user"))
	assert.Equal(t, "a=3Db=2Cc", saslName("a=b,c"))
}

func TestParseSCRAMAttributes(t *testing.T) {
	attrs := parseSCRAMAttributes("r=abc,s=AA==,i=4096,v=x=y")
	assert.Equal(t, "abc", attrs["r"])
	assert.Equal(t, "AA==", attrs["s"])
	assert.Equal(t, "4096", attrs["i"])
	// values may contain '='; only the first one splits
	assert.Equal(t, "x=y", attrs["v"])
}
