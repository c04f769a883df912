// Package conn implements the per-connection protocol state machine:
// the frame-driven read/dispatch loop, the Login-phase key exchange,
// the atomic enablement of the symmetric cipher, and the two calls out
// to the transfer handler collaborator.
package conn

import (
	"bufio"
	"bytes"
	"context"
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/coregx/receptionist/internal/config"
	"github.com/coregx/receptionist/internal/cryptostream"
	"github.com/coregx/receptionist/internal/login"
	"github.com/coregx/receptionist/internal/protocol"
	"github.com/coregx/receptionist/internal/transfer"
)

// rsaKeyBits is the per-connection asymmetric keypair size. It mirrors
// the wire protocol's historical choice; callers that need stronger
// keys and can tolerate breaking compatibility with existing clients
// can raise it without any other change to this package.
const rsaKeyBits = 1024

// state is the connection's position in the Login sub-machine described
// by spec.md §4.5, layered under the coarser protocol.Phase the frame
// layer dispatches against.
type state int

const (
	stateHandshaking state = iota
	stateStatus
	stateAwaitingLoginStart
	stateAwaitingEncryptionResponse
	stateAwaitingLoginAcknowledged
	stateConfiguring
	stateTerminal
)

// Connection owns one accepted TCP stream end to end: its byte stream
// (plaintext, then encrypted once key exchange completes), its
// per-connection RSA keypair and verify token, and its FIFO outbound
// send queue. Nothing about a Connection is safe to touch from any
// goroutine other than the one running Run.
type Connection struct {
	raw    net.Conn
	peek   *peekReader
	bufW   *bufio.Writer
	writer io.Writer

	phase protocol.Phase
	state state

	cfg         *config.Config
	handler     transfer.Handler
	onlineCount *atomic.Int32
	log         zerolog.Logger

	privateKey  *rsa.PrivateKey
	verifyToken []byte

	username string
	uuid     [16]byte

	pendingTransfer *protocol.Transfer
	outbox          []protocol.Message
}

// New builds a Connection around an accepted net.Conn. handler is
// shared (not owned) across every Connection; onlineCount, if non-nil,
// is a shared counter that Run increments when it starts and
// decrements when it returns, used to enforce cfg.MaxPlayers.
func New(raw net.Conn, cfg *config.Config, handler transfer.Handler, onlineCount *atomic.Int32, log zerolog.Logger) *Connection {
	bufW := bufio.NewWriter(raw)
	return &Connection{
		raw:         raw,
		peek:        newPeekReader(raw),
		bufW:        bufW,
		writer:      bufW,
		phase:       protocol.PhaseHandshaking,
		state:       stateHandshaking,
		cfg:         cfg,
		handler:     handler,
		onlineCount: onlineCount,
		log:         log.With().Str("peer", raw.RemoteAddr().String()).Logger(),
	}
}

// Run drives the connection until it reaches a terminal state, the
// peer closes, ctx is cancelled, or a fatal error occurs. Cancelling
// ctx closes the underlying connection, which aborts a blocked read or
// write. It always closes the underlying connection before returning.
//
// Loop shape follows spec.md §4.5 exactly: drain the send queue, peek
// one byte to detect peer-close, read and dispatch one frame.
func (c *Connection) Run(ctx context.Context) error {
	defer c.raw.Close()
	stopOnCancel := context.AfterFunc(ctx, func() { c.raw.Close() })
	defer stopOnCancel()
	if c.onlineCount != nil {
		c.onlineCount.Add(1)
		defer c.onlineCount.Add(-1)
	}

	for {
		if err := c.drainOutbox(); err != nil {
			c.log.Warn().Err(err).Msg("write failed")
			return err
		}
		if c.state == stateTerminal {
			return nil
		}

		available, err := c.peek.awaitByte()
		if !available {
			if errors.Is(err, io.EOF) {
				c.log.Debug().Msg("peer closed connection")
				return nil
			}
			return err
		}

		msg, err := protocol.ReadFrame(c.peek, c.phase)
		if err != nil {
			var unsupported *protocol.UnsupportedError
			if errors.As(err, &unsupported) {
				c.log.Debug().
					Int32("id", unsupported.ID).
					Str("phase", unsupported.Phase.String()).
					Msg("unsupported packet id, skipping")
				continue
			}
			c.log.Warn().Err(err).Msg("fatal protocol error")
			return err
		}

		if err := c.dispatch(ctx, msg); err != nil {
			c.log.Warn().Err(err).Msg("fatal connection error")
			return err
		}
	}
}

func (c *Connection) enqueue(m protocol.Message) {
	c.outbox = append(c.outbox, m)
}

func (c *Connection) drainOutbox() error {
	for _, m := range c.outbox {
		if err := protocol.WriteFrame(c.writer, m); err != nil {
			return err
		}
	}
	c.outbox = c.outbox[:0]
	return c.bufW.Flush()
}

func (c *Connection) dispatch(ctx context.Context, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.Handshake:
		return c.handleHandshake(m)
	case protocol.StatusRequest:
		return c.handleStatusRequest()
	case protocol.PingRequest:
		return c.handlePingRequest(m)
	case protocol.LoginStart:
		return c.handleLoginStart(m)
	case protocol.EncryptionResponse:
		return c.handleEncryptionResponse(ctx, m)
	case protocol.LoginAcknowledged:
		return c.handleLoginAcknowledged(ctx)
	default:
		return fmt.Errorf("%w: unexpected message %T in phase %s", protocol.ErrInvalidData, msg, c.phase)
	}
}

// handleHandshake records intent and selects the next phase. Intent
// Transfer is treated identically to Login for initial credentialing,
// per the open question in spec.md §9.
func (c *Connection) handleHandshake(m protocol.Handshake) error {
	if c.state != stateHandshaking {
		return fmt.Errorf("%w: duplicate handshake", protocol.ErrInvalidData)
	}

	switch m.Intent {
	case protocol.IntentStatus:
		c.phase = protocol.PhaseStatus
		c.state = stateStatus
	case protocol.IntentLogin, protocol.IntentTransfer:
		c.phase = protocol.PhaseLogin
		c.state = stateAwaitingLoginStart
	default:
		return fmt.Errorf("%w: unknown handshake intent %d", protocol.ErrInvalidData, m.Intent)
	}
	return nil
}

func (c *Connection) handleStatusRequest() error {
	if c.state != stateStatus {
		return fmt.Errorf("%w: unexpected statusRequest", protocol.ErrInvalidData)
	}

	resp, err := protocol.BuildStatusResponse(
		c.cfg.MCVersionName,
		c.cfg.MCProtocolVersion,
		c.cfg.MaxPlayers,
		c.currentOnline(),
		c.cfg.MCTargetMOTD,
		c.cfg.LoadFavicon(),
	)
	if err != nil {
		return err
	}
	c.enqueue(resp)
	return nil
}

func (c *Connection) currentOnline() int {
	if c.onlineCount == nil {
		return 0
	}
	return int(c.onlineCount.Load())
}

// handlePingRequest echoes the timestamp. The peer is expected to close
// after receiving PingResponse; the connection does not terminate
// proactively.
func (c *Connection) handlePingRequest(m protocol.PingRequest) error {
	if c.state != stateStatus {
		return fmt.Errorf("%w: unexpected pingRequest", protocol.ErrInvalidData)
	}
	c.enqueue(protocol.PingResponse{Timestamp: m.Timestamp})
	return nil
}

func (c *Connection) handleLoginStart(m protocol.LoginStart) error {
	if c.state != stateAwaitingLoginStart {
		return fmt.Errorf("%w: unexpected loginStart", protocol.ErrInvalidData)
	}

	if !login.ValidateUsername(m.Username) {
		c.enqueue(protocol.LoginDisconnect{Reason: "Invalid username."})
		c.state = stateTerminal
		return nil
	}
	if c.cfg.MaxPlayers > 0 && c.currentOnline() > c.cfg.MaxPlayers {
		c.enqueue(protocol.LoginDisconnect{Reason: "The server is full."})
		c.state = stateTerminal
		return nil
	}

	c.username = m.Username
	c.uuid = login.OfflineUUID(m.Username)

	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	verifyToken := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, verifyToken); err != nil {
		return fmt.Errorf("generate verify token: %w", err)
	}

	c.privateKey = privateKey
	c.verifyToken = verifyToken

	c.enqueue(protocol.EncryptionRequest{
		ServerID:           "",
		PublicKeyDER:       publicKeyDER,
		VerifyToken:        verifyToken,
		ShouldAuthenticate: true,
	})
	c.state = stateAwaitingEncryptionResponse
	return nil
}

func (c *Connection) handleEncryptionResponse(ctx context.Context, m protocol.EncryptionResponse) error {
	if c.state != stateAwaitingEncryptionResponse {
		return fmt.Errorf("%w: unexpected encryptionResponse", protocol.ErrInvalidData)
	}

	sharedSecret, err := rsa.DecryptPKCS1v15(rand.Reader, c.privateKey, m.SharedSecretEnc)
	if err != nil {
		return fmt.Errorf("%w: shared secret decryption failed", protocol.ErrInvalidData)
	}
	verifyToken, err := rsa.DecryptPKCS1v15(rand.Reader, c.privateKey, m.VerifyTokenEnc)
	if err != nil {
		return fmt.Errorf("%w: verify token decryption failed", protocol.ErrInvalidData)
	}
	if !bytes.Equal(verifyToken, c.verifyToken) {
		return fmt.Errorf("%w: verify token mismatch", protocol.ErrInvalidData)
	}
	if len(sharedSecret) != 16 {
		return fmt.Errorf("%w: shared secret must be 16 bytes, got %d", protocol.ErrInvalidData, len(sharedSecret))
	}

	if err := c.enableEncryption(sharedSecret); err != nil {
		return err
	}

	// Encryption is now active; LoginSuccess below is the first
	// encrypted outbound frame (spec.md §3 invariant).
	tr, err := c.handler.OnJoin(ctx, transfer.Login{Username: c.username, UUID: c.uuid})
	if err != nil {
		return fmt.Errorf("transfer handler onJoin: %w", err)
	}
	c.pendingTransfer = tr

	c.enqueue(protocol.LoginSuccess{UUID: c.uuid, Username: c.username})
	c.state = stateAwaitingLoginAcknowledged
	return nil
}

// enableEncryption initializes both CFB8 ciphers from sharedSecret
// (used as both key and IV) and atomically swaps the connection's read
// and write paths onto them. It must only be called between frames, so
// that peek's pending-byte buffer is guaranteed empty (see peek.go).
func (c *Connection) enableEncryption(sharedSecret []byte) error {
	encBlock, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return fmt.Errorf("%w: aes cipher: %v", protocol.ErrInvalidData, err)
	}
	decBlock, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return fmt.Errorf("%w: aes cipher: %v", protocol.ErrInvalidData, err)
	}

	encStream := cryptostream.NewCFB8Encrypter(encBlock, sharedSecret)
	decStream := cryptostream.NewCFB8Decrypter(decBlock, sharedSecret)

	c.peek.setUnderlying(cryptostream.NewDecryptReader(c.raw, decStream))
	c.writer = cryptostream.NewEncryptWriter(c.bufW, encStream)
	return nil
}

func (c *Connection) handleLoginAcknowledged(ctx context.Context) error {
	if c.state != stateAwaitingLoginAcknowledged {
		return fmt.Errorf("%w: unexpected loginAcknowledged", protocol.ErrInvalidData)
	}

	c.phase = protocol.PhaseConfiguration
	c.state = stateConfiguring

	tr := c.pendingTransfer
	if tr == nil {
		var err error
		tr, err = c.handler.OnTransferReady(ctx)
		if err != nil {
			return fmt.Errorf("transfer handler onTransferReady: %w", err)
		}
	}

	if tr != nil {
		c.enqueue(*tr)
		c.state = stateTerminal
	}
	return nil
}
