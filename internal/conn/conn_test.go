package conn

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/receptionist/internal/config"
	"github.com/coregx/receptionist/internal/cryptostream"
	"github.com/coregx/receptionist/internal/protocol"
	"github.com/coregx/receptionist/internal/transfer"
)

func testConfig() *config.Config {
	return &config.Config{
		ListenAddr:         "0.0.0.0:25565",
		TargetInstanceName: "survival-1",
		MCTargetPort:       25565,
		MCTargetMOTD:       "A Receptionist Server",
		MCVersionName:      "1.21.8",
		MCProtocolVersion:  773,
		MaxPlayers:         20,
		LogLevel:           "info",
	}
}

// fakeHandler lets each test script exactly what OnJoin/OnTransferReady
// return, and records that they were called.
type fakeHandler struct {
	onJoin          func() (*protocol.Transfer, error)
	onTransferReady func() (*protocol.Transfer, error)
	joinCalls       atomic.Int32
	readyCalls      atomic.Int32
}

func (f *fakeHandler) OnJoin(ctx context.Context, login transfer.Login) (*protocol.Transfer, error) {
	f.joinCalls.Add(1)
	if f.onJoin == nil {
		return nil, nil
	}
	return f.onJoin()
}

func (f *fakeHandler) OnTransferReady(ctx context.Context) (*protocol.Transfer, error) {
	f.readyCalls.Add(1)
	if f.onTransferReady == nil {
		return nil, nil
	}
	return f.onTransferReady()
}

// runServer starts Connection.Run in a goroutine over serverSide and
// returns a channel that receives its final error.
func runServer(c *Connection) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background())
	}()
	return done
}

func TestConnection_StatusPing(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	c := New(serverSide, testConfig(), &fakeHandler{}, nil, zerolog.Nop())
	done := runServer(c)

	require.NoError(t, protocol.WriteFrame(clientSide, protocol.Handshake{
		ProtocolVersion: 773,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		Intent:          protocol.IntentStatus,
	}))
	require.NoError(t, protocol.WriteFrame(clientSide, protocol.StatusRequest{}))

	statusMsg, err := protocol.ReadFrame(clientSide, protocol.PhaseStatus)
	require.NoError(t, err)
	status, ok := statusMsg.(protocol.StatusResponse)
	require.True(t, ok)
	assert.Contains(t, status.JSON, "A Receptionist Server")

	require.NoError(t, protocol.WriteFrame(clientSide, protocol.PingRequest{Timestamp: 0xDEADBEEF}))

	pingMsg, err := protocol.ReadFrame(clientSide, protocol.PhaseStatus)
	require.NoError(t, err)
	ping, ok := pingMsg.(protocol.PingResponse)
	require.True(t, ok)
	assert.Equal(t, uint64(0xDEADBEEF), ping.Timestamp)

	clientSide.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server did not exit after client close")
	}
}

// loginClient drives a client-side Login-phase handshake up through
// encryption enablement and returns the plaintext reader/writer
// upgraded to their encrypted counterparts, ready for further
// exchanges.
func loginClient(t *testing.T, clientSide net.Conn, username string) (decReader io.Reader, encWriter io.Writer) {
	t.Helper()

	require.NoError(t, protocol.WriteFrame(clientSide, protocol.Handshake{
		ProtocolVersion: 773,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		Intent:          protocol.IntentLogin,
	}))

	uuid := [16]byte{}
	require.NoError(t, protocol.WriteFrame(clientSide, protocol.LoginStart{Username: username, UUID: uuid}))

	encReqMsg, err := protocol.ReadFrame(clientSide, protocol.PhaseLogin)
	require.NoError(t, err)
	encReq, ok := encReqMsg.(protocol.EncryptionRequest)
	require.True(t, ok)

	pub, err := x509.ParsePKIXPublicKey(encReq.PublicKeyDER)
	require.NoError(t, err)
	rsaPub, ok := pub.(*rsa.PublicKey)
	require.True(t, ok)

	sharedSecret := make([]byte, 16)
	_, err = rand.Read(sharedSecret)
	require.NoError(t, err)

	sharedSecretEnc, err := rsa.EncryptPKCS1v15(rand.Reader, rsaPub, sharedSecret)
	require.NoError(t, err)
	verifyTokenEnc, err := rsa.EncryptPKCS1v15(rand.Reader, rsaPub, encReq.VerifyToken)
	require.NoError(t, err)

	require.NoError(t, protocol.WriteFrame(clientSide, protocol.EncryptionResponse{
		SharedSecretEnc: sharedSecretEnc,
		VerifyTokenEnc:  verifyTokenEnc,
	}))

	encBlock, err := aes.NewCipher(sharedSecret)
	require.NoError(t, err)
	decBlock, err := aes.NewCipher(sharedSecret)
	require.NoError(t, err)

	dr := cryptostream.NewDecryptReader(clientSide, cryptostream.NewCFB8Decrypter(decBlock, sharedSecret))
	ew := cryptostream.NewEncryptWriter(clientSide, cryptostream.NewCFB8Encrypter(encBlock, sharedSecret))

	return dr, ew
}

func TestConnection_LoginAndTransfer_HappyPath(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	handler := &fakeHandler{
		onJoin: func() (*protocol.Transfer, error) {
			return &protocol.Transfer{Hostname: "203.0.113.5", Port: 25565}, nil
		},
	}
	c := New(serverSide, testConfig(), handler, nil, zerolog.Nop())
	done := runServer(c)

	dr, ew := loginClient(t, clientSide, "Notch")

	successMsg, err := protocol.ReadFrame(dr, protocol.PhaseLogin)
	require.NoError(t, err)
	success, ok := successMsg.(protocol.LoginSuccess)
	require.True(t, ok)
	assert.Equal(t, "Notch", success.Username)

	require.NoError(t, protocol.WriteFrame(ew, protocol.LoginAcknowledged{}))

	transferMsg, err := protocol.ReadFrame(dr, protocol.PhaseConfiguration)
	require.NoError(t, err)
	tr, ok := transferMsg.(protocol.Transfer)
	require.True(t, ok)
	assert.Equal(t, "203.0.113.5", tr.Hostname)
	assert.Equal(t, uint16(25565), tr.Port)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server did not close connection after Transfer")
	}
	assert.Equal(t, int32(1), handler.joinCalls.Load())
	assert.Equal(t, int32(0), handler.readyCalls.Load())
}

func TestConnection_TransferDeferred(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	handler := &fakeHandler{}
	c := New(serverSide, testConfig(), handler, nil, zerolog.Nop())
	done := runServer(c)

	dr, ew := loginClient(t, clientSide, "jeb_")

	successMsg, err := protocol.ReadFrame(dr, protocol.PhaseLogin)
	require.NoError(t, err)
	_, ok := successMsg.(protocol.LoginSuccess)
	require.True(t, ok)

	require.NoError(t, protocol.WriteFrame(ew, protocol.LoginAcknowledged{}))

	// No Transfer should arrive; the connection should stay open until
	// the client closes it.
	select {
	case <-done:
		t.Fatal("server closed connection even though no transfer was ready")
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, int32(1), handler.joinCalls.Load())
	assert.Equal(t, int32(1), handler.readyCalls.Load())

	clientSide.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server did not exit after client close")
	}
}

func TestConnection_UnknownPacketID_ContinuesToLoginStart(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	handler := &fakeHandler{}
	c := New(serverSide, testConfig(), handler, nil, zerolog.Nop())
	done := runServer(c)

	require.NoError(t, protocol.WriteFrame(clientSide, protocol.Handshake{
		ProtocolVersion: 773,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		Intent:          protocol.IntentLogin,
	}))

	// Write a zero-length-body frame for id 0x7f, unknown in Login phase.
	var frame bytes.Buffer
	frame.Write([]byte{0x01, 0x7f}) // length=1 (just the id byte), id=0x7f
	_, err := clientSide.Write(frame.Bytes())
	require.NoError(t, err)

	require.NoError(t, protocol.WriteFrame(clientSide, protocol.LoginStart{Username: "Dinnerbone", UUID: [16]byte{}}))

	encReqMsg, err := protocol.ReadFrame(clientSide, protocol.PhaseLogin)
	require.NoError(t, err)
	_, ok := encReqMsg.(protocol.EncryptionRequest)
	require.True(t, ok)

	clientSide.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server did not exit after client close")
	}
}

func TestConnection_VerifyTokenMismatch_TerminatesWithNoLoginSuccess(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	handler := &fakeHandler{}
	c := New(serverSide, testConfig(), handler, nil, zerolog.Nop())
	done := runServer(c)

	require.NoError(t, protocol.WriteFrame(clientSide, protocol.Handshake{
		ProtocolVersion: 773,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		Intent:          protocol.IntentLogin,
	}))
	require.NoError(t, protocol.WriteFrame(clientSide, protocol.LoginStart{Username: "Herobrine", UUID: [16]byte{}}))

	encReqMsg, err := protocol.ReadFrame(clientSide, protocol.PhaseLogin)
	require.NoError(t, err)
	encReq := encReqMsg.(protocol.EncryptionRequest)

	pub, err := x509.ParsePKIXPublicKey(encReq.PublicKeyDER)
	require.NoError(t, err)
	rsaPub := pub.(*rsa.PublicKey)

	sharedSecret := make([]byte, 16)
	_, err = rand.Read(sharedSecret)
	require.NoError(t, err)
	sharedSecretEnc, err := rsa.EncryptPKCS1v15(rand.Reader, rsaPub, sharedSecret)
	require.NoError(t, err)

	wrongToken := make([]byte, len(encReq.VerifyToken))
	copy(wrongToken, encReq.VerifyToken)
	wrongToken[0] ^= 0xFF

	wrongTokenEnc, err := rsa.EncryptPKCS1v15(rand.Reader, rsaPub, wrongToken)
	require.NoError(t, err)

	require.NoError(t, protocol.WriteFrame(clientSide, protocol.EncryptionResponse{
		SharedSecretEnc: sharedSecretEnc,
		VerifyTokenEnc:  wrongTokenEnc,
	}))

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not terminate after verify token mismatch")
	}

	// No further bytes (a LoginSuccess frame) should be readable.
	clientSide.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 1)
	_, err = clientSide.Read(buf)
	assert.Error(t, err)
}
