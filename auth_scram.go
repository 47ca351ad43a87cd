// SCRAM-SHA-256 authentication
//
// Resources:
//
//	https://tools.ietf.org/html/rfc5802
//	https://tools.ietf.org/html/rfc7677
//	https://www.postgresql.org/docs/current/sasl-authentication.html
//
// Limitation: the password is normalized with NFKC only. Full SASLprep
// (RFC 4013) additionally prohibits control characters and maps certain
// spaces; passwords containing such characters may fail to authenticate.
// Printable ASCII passwords are unaffected.
package loonypg

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/loony-js/loony-postgres/pgproto3"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const clientNonceLen = 18

func (c *Conn) scramAuth(serverAuthMechanisms []string) error {
	sc, err := newScramClient(serverAuthMechanisms, c.config.User, c.config.Password)
	if err != nil {
		return err
	}

	// Send client-first-message in a SASLInitialResponse
	saslInitialResponse := &pgproto3.SASLInitialResponse{
		AuthMechanism: "SCRAM-SHA-256",
		Data:          sc.clientFirstMessage(),
	}
	err = c.frontend.Send(saslInitialResponse)
	if err != nil {
		return err
	}

	// Receive server-first-message payload in an AuthenticationSASLContinue.
	saslContinue, err := c.rxSASLContinue()
	if err != nil {
		return err
	}
	err = sc.recvServerFirstMessage(saslContinue.Data)
	if err != nil {
		return err
	}

	// Send client-final-message in a SASLResponse. Unlike the cleartext and
	// MD5 responses the body carries no NUL terminator.
	saslResponse := &pgproto3.SASLResponse{
		Data: []byte(sc.clientFinalMessage()),
	}
	err = c.frontend.Send(saslResponse)
	if err != nil {
		return err
	}

	// Receive server-final-message payload in an AuthenticationSASLFinal.
	saslFinal, err := c.rxSASLFinal()
	if err != nil {
		return err
	}
	return sc.recvServerFinalMessage(saslFinal.Data)
}

func (c *Conn) rxSASLContinue() (*pgproto3.AuthenticationSASLContinue, error) {
	msg, err := c.receiveMessage()
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case *pgproto3.AuthenticationSASLContinue:
		return m, nil
	case *pgproto3.ErrorResponse:
		return nil, errorResponseToPgError(m)
	}

	return nil, fmt.Errorf("expected AuthenticationSASLContinue message but received unexpected message %T", msg)
}

func (c *Conn) rxSASLFinal() (*pgproto3.AuthenticationSASLFinal, error) {
	msg, err := c.receiveMessage()
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case *pgproto3.AuthenticationSASLFinal:
		return m, nil
	case *pgproto3.ErrorResponse:
		return nil, errorResponseToPgError(m)
	}

	return nil, fmt.Errorf("expected AuthenticationSASLFinal message but received unexpected message %T", msg)
}

// scramClient holds the state of one SCRAM exchange. It is single use: once
// the server-first-message has been consumed salt, iterations, and the
// combined nonce are never mutated again.
type scramClient struct {
	serverAuthMechanisms []string
	password             []byte
	clientNonce          []byte

	clientFirstMessageBare []byte

	serverFirstMessage   []byte
	clientAndServerNonce []byte
	salt                 []byte
	iterations           int

	saltedPassword []byte
	authMessage    []byte
}

func newScramClient(serverAuthMechanisms []string, user, password string) (*scramClient, error) {
	sc := &scramClient{
		serverAuthMechanisms: serverAuthMechanisms,
	}

	// Ensure the server supports SCRAM-SHA-256
	hasScramSHA256 := false
	for _, mech := range sc.serverAuthMechanisms {
		if mech == "SCRAM-SHA-256" {
			hasScramSHA256 = true
			break
		}
	}
	if !hasScramSHA256 {
		return nil, &AuthError{msg: fmt.Sprintf("server does not support SCRAM-SHA-256 (offered mechanisms: %s)", strings.Join(serverAuthMechanisms, ", "))}
	}

	// NFKC only; see the package comment for the SASLprep limitation.
	sc.password = norm.NFKC.Bytes([]byte(password))

	buf := make([]byte, clientNonceLen)
	_, err := rand.Read(buf)
	if err != nil {
		return nil, err
	}
	sc.clientNonce = make([]byte, base64.RawStdEncoding.EncodedLen(len(buf)))
	base64.RawStdEncoding.Encode(sc.clientNonce, buf)

	sc.clientFirstMessageBare = []byte("n=" + saslName(user) + ",r=" + string(sc.clientNonce))

	return sc, nil
}

// saslName escapes a name for inclusion in a SCRAM message per RFC 5802:
// '=' becomes "=3D" and ',' becomes "=2C".
func saslName(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

// clientFirstMessage prepends the GS2 header "n,," (no channel binding, no
// authzid) to the bare client-first-message.
func (sc *scramClient) clientFirstMessage() []byte {
	return []byte("n,," + string(sc.clientFirstMessageBare))
}

func (sc *scramClient) recvServerFirstMessage(serverFirstMessage []byte) error {
	sc.serverFirstMessage = serverFirstMessage

	attrs := parseSCRAMAttributes(string(serverFirstMessage))

	r, present := attrs["r"]
	if !present {
		return &AuthError{msg: "invalid SCRAM server-first-message: did not include r="}
	}
	if !strings.HasPrefix(r, string(sc.clientNonce)) {
		return &AuthError{msg: "invalid SCRAM nonce: did not start with client nonce"}
	}
	if len(r) == len(sc.clientNonce) {
		return &AuthError{msg: "invalid SCRAM nonce: did not extend client nonce"}
	}
	sc.clientAndServerNonce = []byte(r)

	s, present := attrs["s"]
	if !present {
		return &AuthError{msg: "invalid SCRAM server-first-message: did not include s="}
	}
	salt, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return &AuthError{msg: "invalid SCRAM salt", err: err}
	}
	sc.salt = salt

	i, present := attrs["i"]
	if !present {
		return &AuthError{msg: "invalid SCRAM server-first-message: did not include i="}
	}
	iterations, err := strconv.Atoi(i)
	if err != nil || iterations <= 0 {
		return &AuthError{msg: "invalid SCRAM iteration count", err: err}
	}
	sc.iterations = iterations

	return nil
}

// parseSCRAMAttributes splits a SCRAM parameter string on "," and each token
// on the first "=" (values may themselves contain "=").
func parseSCRAMAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, token := range strings.Split(s, ",") {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			continue
		}
		attrs[parts[0]] = parts[1]
	}
	return attrs
}

func (sc *scramClient) clientFinalMessage() string {
	// "biws" is the base64 encoding of the GS2 header "n,,".
	clientFinalMessageWithoutProof := []byte("c=biws,r=" + string(sc.clientAndServerNonce))

	sc.saltedPassword = pbkdf2.Key(sc.password, sc.salt, sc.iterations, 32, sha256.New)
	sc.authMessage = bytes.Join([][]byte{sc.clientFirstMessageBare, sc.serverFirstMessage, clientFinalMessageWithoutProof}, []byte(","))

	clientProof := computeClientProof(sc.saltedPassword, sc.authMessage)

	return string(clientFinalMessageWithoutProof) + ",p=" + string(clientProof)
}

func (sc *scramClient) recvServerFinalMessage(serverFinalMessage []byte) error {
	if bytes.HasPrefix(serverFinalMessage, []byte("e=")) {
		return &AuthError{msg: fmt.Sprintf("SCRAM authentication failed: %s", serverFinalMessage[2:])}
	}

	attrs := parseSCRAMAttributes(string(serverFinalMessage))
	v, present := attrs["v"]
	if !present {
		return &AuthError{msg: "invalid SCRAM server-final-message: did not include v="}
	}

	serverSignature, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return &AuthError{msg: "invalid SCRAM server signature", err: err}
	}

	if subtle.ConstantTimeCompare(serverSignature, computeServerSignature(sc.saltedPassword, sc.authMessage)) != 1 {
		return &AuthError{msg: "invalid SCRAM ServerSignature received from server"}
	}

	return nil
}

func computeHMAC(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

func computeClientProof(saltedPassword, authMessage []byte) []byte {
	clientKey := computeHMAC(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := computeHMAC(storedKey[:], authMessage)

	clientProof := make([]byte, len(clientSignature))
	for i := 0; i < len(clientProof); i++ {
		clientProof[i] = clientKey[i] ^ clientSignature[i]
	}

	buf := make([]byte, base64.StdEncoding.EncodedLen(len(clientProof)))
	base64.StdEncoding.Encode(buf, clientProof)
	return buf
}

func computeServerSignature(saltedPassword, authMessage []byte) []byte {
	serverKey := computeHMAC(saltedPassword, []byte("Server Key"))
	return computeHMAC(serverKey, authMessage)
}
